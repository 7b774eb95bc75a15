package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i72421/pm-graph/internal/history"
	"github.com/i72421/pm-graph/internal/models"
	"github.com/i72421/pm-graph/internal/parser"
	"github.com/i72421/pm-graph/internal/render"
)

var analyzeOpts struct {
	ftrace  string
	output  string
	top     int
	workers int
	record  bool
	dbPath  string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze console.log",
	Short: "Analyze a suspend/resume cycle and write an HTML report",
	Long: `analyze parses a kernel console log captured across a suspend/resume
cycle, reconstructs the phase and device timeline, and writes a standalone
HTML report next to the input. A function_graph trace from the same cycle
can be supplied to attach call graphs to the devices it covers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runAnalyze(args[0])
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOpts.ftrace, "ftrace", "t", "", "function_graph trace log from the same cycle")
	analyzeCmd.Flags().StringVarP(&analyzeOpts.output, "output", "o", "", "report path (default: input name with .html)")
	analyzeCmd.Flags().IntVarP(&analyzeOpts.top, "top", "n", 5, "number of slowest devices to list per half")
	analyzeCmd.Flags().IntVarP(&analyzeOpts.workers, "workers", "j", 0, "parallel call graph reconstruction workers (0 = serial)")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.record, "record", false, "record the run in the history database")
	analyzeCmd.Flags().StringVar(&analyzeOpts.dbPath, "db", "./data/history.db", "history database path")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(dmesgPath string) error {
	if kind, err := parser.DetectKind(dmesgPath); err == nil && kind == parser.KindFtrace {
		logrus.Warnf("%s looks like a function trace log, not a console log", dmesgPath)
	}

	analyzer := parser.NewAnalyzer()
	analyzer.Workers = analyzeOpts.workers
	data, warnings, err := analyzer.Analyze(dmesgPath, analyzeOpts.ftrace)
	if err != nil {
		return fmt.Errorf("failed to analyze %s: %w", dmesgPath, err)
	}

	out := analyzeOpts.output
	if out == "" {
		out = strings.TrimSuffix(dmesgPath, filepath.Ext(dmesgPath)) + ".html"
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := render.Report(f, data, warnings); err != nil {
		f.Close()
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	printSummary(data, warnings, out)

	if analyzeOpts.record {
		return recordRun(data, warnings)
	}
	return nil
}

func printSummary(data *models.Data, warnings []models.ParseError, reportPath string) {
	if data.Stamp != nil {
		fmt.Printf("Host:      %s\n", data.Stamp.Host)
		fmt.Printf("Mode:      %s\n", data.Stamp.Mode)
		fmt.Printf("Captured:  %s\n", data.Stamp.Label())
	}
	fmt.Printf("Suspend:   %.3f ms\n", data.SuspendTime())
	fmt.Printf("Resume:    %.3f ms\n", data.ResumeTime())
	fmt.Printf("Devices:   %d (%d with call graphs)\n", data.DeviceCount(), data.GraphCount())
	if len(warnings) > 0 {
		fmt.Printf("Warnings:  %d (listed at the bottom of the report)\n", len(warnings))
	}
	fmt.Printf("Report:    %s\n", reportPath)

	printSlowest(data, "suspend")
	printSlowest(data, "resume")
}

type deviceTiming struct {
	name  string
	phase string
	ms    float64
}

func printSlowest(data *models.Data, family string) {
	var timings []deviceTiming
	for _, p := range data.Phases {
		if p.SuspendFamily() != (family == "suspend") {
			continue
		}
		for name, dev := range p.Devices {
			if dev.Length <= 0 {
				continue
			}
			timings = append(timings, deviceTiming{name: name, phase: p.Name, ms: dev.Length / 1000})
		}
	}
	if len(timings) == 0 {
		return
	}
	sort.Slice(timings, func(i, j int) bool { return timings[i].ms > timings[j].ms })
	if len(timings) > analyzeOpts.top {
		timings = timings[:analyzeOpts.top]
	}

	fmt.Printf("\nSlowest %s devices:\n", family)
	w := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tPHASE\tTIME MS")
	for _, t := range timings {
		fmt.Fprintf(w, "  %s\t%s\t%.3f\n", t.name, t.phase, t.ms)
	}
	w.Flush()
}

func recordRun(data *models.Data, warnings []models.ParseError) error {
	store, err := history.Open(analyzeOpts.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	sess := &models.AnalysisSession{
		ID:     uuid.NewString(),
		Status: models.SessionStatusComplete,
		Errors: warnings,
	}
	if err := store.RecordRun(sess, data); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	fmt.Printf("\nRecorded run %s in %s\n", sess.ID, analyzeOpts.dbPath)
	return nil
}
