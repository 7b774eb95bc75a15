package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/i72421/pm-graph/internal/history"
)

var historyOpts struct {
	dbPath string
	limit  int
	family string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the run history database",
}

var historyRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recently recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.RecentRuns(cmd.Context(), historyOpts.limit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tHOST\tMODE\tSUSPEND MS\tRESUME MS\tDEVICES\tWARNINGS")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%.1f\t%d\t%d\n",
				r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				r.Host, r.Mode, r.SuspendMs, r.ResumeMs, r.DeviceCount, r.WarningCount)
		}
		return w.Flush()
	},
}

var historySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize recorded runs per suspend mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		summaries, err := store.ModeSummaries(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to summarize runs: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
		fmt.Fprintln(w, "MODE\tRUNS\tSUSPEND AVG/MIN/MAX MS\tRESUME AVG/MIN/MAX MS")
		for _, m := range summaries {
			mode := m.Mode
			if mode == "" {
				mode = "(unknown)"
			}
			fmt.Fprintf(w, "%s\t%d\t%.1f / %.1f / %.1f\t%.1f / %.1f / %.1f\n",
				mode, m.Runs,
				m.AvgSuspendMs, m.MinSuspendMs, m.MaxSuspendMs,
				m.AvgResumeMs, m.MinResumeMs, m.MaxResumeMs)
		}
		return w.Flush()
	},
}

var historySlowestCmd = &cobra.Command{
	Use:   "slowest",
	Short: "List the devices with the highest average callback time across runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		switch historyOpts.family {
		case "", "suspend", "resume":
		default:
			return fmt.Errorf("invalid family %q: must be suspend or resume", historyOpts.family)
		}
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		devices, err := store.SlowestDevices(cmd.Context(), historyOpts.family, historyOpts.limit)
		if err != nil {
			return fmt.Errorf("failed to query devices: %w", err)
		}
		if len(devices) == 0 {
			fmt.Println("No device timings recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSAMPLES\tAVG MS\tMAX MS")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%d\t%.3f\t%.3f\n", d.Name, d.Samples, d.AvgUs/1000, d.MaxUs/1000)
		}
		return w.Flush()
	},
}

func openHistory() (*history.Store, error) {
	if _, err := os.Stat(historyOpts.dbPath); err != nil {
		return nil, fmt.Errorf("no history database at %s", historyOpts.dbPath)
	}
	store, err := history.Open(historyOpts.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return store, nil
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyOpts.dbPath, "db", "./data/history.db", "history database path")
	historyRunsCmd.Flags().IntVarP(&historyOpts.limit, "top", "n", 20, "number of runs to list")
	historySlowestCmd.Flags().IntVarP(&historyOpts.limit, "top", "n", 20, "number of devices to list")
	historySlowestCmd.Flags().StringVarP(&historyOpts.family, "family", "f", "", "restrict to the suspend or resume half")
	historyCmd.AddCommand(historyRunsCmd)
	historyCmd.AddCommand(historySummaryCmd)
	historyCmd.AddCommand(historySlowestCmd)
	rootCmd.AddCommand(historyCmd)
}
