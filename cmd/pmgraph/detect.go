package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/i72421/pm-graph/internal/parser"
)

var detectCmd = &cobra.Command{
	Use:   "detect file [file ...]",
	Short: "Classify log files as console or function trace logs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		failed := false
		for _, path := range args {
			kind, err := parser.DetectKind(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("%s: %s\n", path, kind)
		}
		if failed {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
