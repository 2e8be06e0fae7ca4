package commands

import (
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"
)

var log = logging.MustGetLogger("datalink-cli")

var apiAddr string

var rootCmd = &cobra.Command{
	Use:   "datalink-cli",
	Short: "Command Line Interface for datalink",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&apiAddr, "api", "a", "localhost:6654", "HTTP API address of the node")
}

// Execute executes root CLI command.
func Execute() {
	rootCmd.Execute() //nolint:errcheck
}
