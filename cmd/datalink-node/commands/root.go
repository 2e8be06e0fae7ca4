package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"log/syslog"
	"net/http"
	_ "net/http/pprof" // no_lint
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/datalink/internal/pathutil"
	"github.com/skycoin/datalink/pkg/node"
)

const configEnv = "DL_CONFIG"
const defaultShutdownTimeout = node.Duration(10 * time.Second)

type runCfg struct {
	syslogAddr   string
	tag          string
	cfgFromStdin bool
	profileMode  string
	port         string
	args         []string

	profileStop  func()
	logger       *logging.Logger
	masterLogger *logging.MasterLogger
	conf         *node.Config
	node         *node.Node
	cancel       context.CancelFunc
}

var cfg *runCfg

var rootCmd = &cobra.Command{
	Use:   "datalink-node [config-path]",
	Short: "Sends the configured message to every connecting peer over ARQ",
	Run: func(_ *cobra.Command, args []string) {
		cfg.args = args

		cfg.startProfiler().
			startLogger().
			readConfig().
			runNode().
			waitOsSignals().
			stopNode()
	},
	Version: node.ConfigVersion,
}

func init() {
	cfg = &runCfg{}
	rootCmd.Flags().StringVarP(&cfg.syslogAddr, "syslog", "", "none", "syslog server address. E.g. localhost:514")
	rootCmd.Flags().StringVarP(&cfg.tag, "tag", "", "datalink", "logging tag")
	rootCmd.Flags().BoolVarP(&cfg.cfgFromStdin, "stdin", "i", false, "read config from STDIN")
	rootCmd.Flags().StringVarP(&cfg.profileMode, "profile", "p", "none", "enable profiling with pprof. Mode:  none or one of: [cpu, mem, mutex, block, trace, http]")
	rootCmd.Flags().StringVarP(&cfg.port, "port", "", "6060", "port for http-mode of pprof")
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func (cfg *runCfg) startProfiler() *runCfg {
	var option func(*profile.Profile)
	switch cfg.profileMode {
	case "none":
		cfg.profileStop = func() {}
		return cfg
	case "http":
		go func() {
			log.Println(http.ListenAndServe(fmt.Sprintf("localhost:%v", cfg.port), nil))
		}()
		cfg.profileStop = func() {}
		return cfg
	case "cpu":
		option = profile.CPUProfile
	case "mem":
		option = profile.MemProfile
	case "mutex":
		option = profile.MutexProfile
	case "block":
		option = profile.BlockProfile
	case "trace":
		option = profile.TraceProfile
	default:
		log.Fatalf("unknown profile mode %q", cfg.profileMode)
	}
	cfg.profileStop = profile.Start(profile.ProfilePath("./logs/"+cfg.tag), option).Stop
	return cfg
}

func (cfg *runCfg) startLogger() *runCfg {
	cfg.masterLogger = logging.NewMasterLogger()
	cfg.logger = cfg.masterLogger.PackageLogger(cfg.tag)

	if cfg.syslogAddr != "none" {
		hook, err := logrus_syslog.NewSyslogHook("udp", cfg.syslogAddr, syslog.LOG_INFO, cfg.tag)
		if err != nil {
			cfg.logger.Error("Unable to connect to syslog daemon:", err)
		} else {
			cfg.masterLogger.AddHook(hook)
			cfg.masterLogger.Out = ioutil.Discard
		}
	}
	return cfg
}

func (cfg *runCfg) readConfig() *runCfg {
	var rdr io.Reader
	if !cfg.cfgFromStdin {
		configPath, err := pathutil.FindConfigPath(cfg.args, 0, configEnv, pathutil.NodeDefaults())
		if err != nil {
			cfg.logger.Fatal(err)
		}
		f, err := os.Open(configPath) // nolint: gosec
		if err != nil {
			cfg.logger.Fatalf("Failed to open config: %s", err)
		}
		defer func() { _ = f.Close() }() //nolint:errcheck
		rdr = f
	} else {
		cfg.logger.Info("Reading config from STDIN")
		rdr = bufio.NewReader(os.Stdin)
	}

	conf, err := node.ReadConfig(rdr)
	if err != nil {
		cfg.logger.Fatalf("Failed to read config: %s", err)
	}
	cfg.conf = conf

	if lvl, err := logging.LevelFromString(conf.LogLevel); err != nil {
		cfg.logger.WithError(err).Warnf("Invalid log level %q, keeping default", conf.LogLevel)
	} else {
		cfg.masterLogger.SetLevel(lvl)
	}
	return cfg
}

func (cfg *runCfg) runNode() *runCfg {
	n, err := node.New(cfg.conf)
	if err != nil {
		cfg.logger.Fatal("Failed to initialize node: ", err)
	}

	var ctx context.Context
	ctx, cfg.cancel = context.WithCancel(context.Background())
	go func() {
		if err := n.Start(ctx); err != nil && err != context.Canceled {
			cfg.logger.Fatal("Failed to start node: ", err)
		}
	}()

	if cfg.conf.ShutdownTimeout == 0 {
		cfg.conf.ShutdownTimeout = defaultShutdownTimeout
	}
	cfg.node = n
	cfg.logger.Infof("Listening for peers on %s", n.Addr())
	return cfg
}

func (cfg *runCfg) stopNode() *runCfg {
	defer cfg.profileStop()
	cfg.cancel()
	if err := cfg.node.Close(); err != nil {
		cfg.logger.Fatal("Failed to close node: ", err)
	}
	return cfg
}

func (cfg *runCfg) waitOsSignals() *runCfg {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}...)
	<-ch
	go func() {
		select {
		case <-time.After(time.Duration(cfg.conf.ShutdownTimeout)):
			cfg.logger.Fatal("Timeout reached: terminating")
		case s := <-ch:
			cfg.logger.Fatalf("Received signal %s: terminating", s)
		}
	}()
	return cfg
}
