package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skycoin/datalink/cmd/datalink-cli/internal"
	"github.com/skycoin/datalink/internal/pathutil"
	"github.com/skycoin/datalink/pkg/arq"
	"github.com/skycoin/datalink/pkg/frame"
	"github.com/skycoin/datalink/pkg/node"
	"github.com/skycoin/datalink/pkg/store"
)

func init() {
	rootCmd.AddCommand(genConfigCmd)
}

var (
	output        string
	replace       bool
	configLocType = pathutil.WorkingDirLoc
	genMode       = string(arq.SlidingWindow)
	legacy        bool
)

func init() {
	genConfigCmd.Flags().StringVarP(&output, "output", "o", "", "path of output config file. Uses default of 'type' flag if unspecified.")
	genConfigCmd.Flags().BoolVarP(&replace, "replace", "r", false, "whether to allow rewrite of a file that already exists.")
	genConfigCmd.Flags().VarP(&configLocType, "type", "m", fmt.Sprintf("config generation mode. Valid values: %v", pathutil.AllConfigLocationTypes()))
	genConfigCmd.Flags().StringVar(&genMode, "arq", genMode, "ARQ mode: stop-and-wait, go-back-n, selective-repeat or sliding-window")
	genConfigCmd.Flags().BoolVar(&legacy, "legacy", false, "use untagged frames told apart by length")
}

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Generates a node config file",
	PreRun: func(_ *cobra.Command, _ []string) {
		if output == "" {
			output = pathutil.NodeDefaults()[configLocType]
			log.Infof("No 'output' set; using default path: %s", output)
		}
		var err error
		output, err = filepath.Abs(output)
		internal.Catch(err, "invalid output provided:")
	},
	Run: func(_ *cobra.Command, _ []string) {
		conf := node.DefaultConfig()
		switch configLocType {
		case pathutil.HomeLoc:
			conf.Store.Type = store.BoltDBType
			conf.Store.Location = filepath.Join(pathutil.HomeDir(), ".skycoin", "datalink", "runs.db")
		case pathutil.LocalLoc:
			conf.Store.Type = store.BoltDBType
			conf.Store.Location = "/usr/local/skycoin/datalink/runs.db"
		}
		if legacy {
			conf.Link.Framing = frame.Legacy
		}
		conf.ARQ = node.NewARQConfig(modeDefaults(arq.Mode(genMode), conf.ARQ.Config()))
		internal.Catch(conf.Validate(), "invalid config:")
		internal.Catch(pathutil.WriteJSONConfig(conf, output, replace))
	},
}

// modeDefaults adjusts the window parameters so that mode is valid.
func modeDefaults(mode arq.Mode, c arq.Config) arq.Config {
	c.Mode = mode
	switch mode {
	case arq.StopAndWait:
		c.Window = 1
		c.SeqModulus = 2
		c.FrameDelay = 1
	case arq.GoBackN:
		c.FrameDelay = 1
	case arq.SelectiveRepeat:
		c.Window = c.SeqModulus / 2
		c.FrameDelay = 1
	}
	return c
}
