// pmgraph inspects kernel suspend/resume logs from the command line.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "pmgraph",
	Short: "Kernel suspend/resume timeline analyzer",
	Long: `pmgraph reconstructs a suspend/resume cycle from a kernel console log,
optionally enriches it with function trace call graphs, and renders the
device timeline as a standalone HTML report.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
