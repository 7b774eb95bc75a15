package parser

import (
	"errors"
	"path/filepath"
	"testing"
)

func fullCycleTrace(t *testing.T) string {
	return writeLog(t,
		"# suspend-050216-100455 tbird mem",
		traceLine(1.4, 123, "", "/* SUSPEND START */"),
		traceLine(1.4999, 123, "", "dpm_run_callback() {"),
		traceLine(1.5005, 123, "0.500", "clk_enable();"),
		traceLine(1.5025, 123, "2600.000", "} /* dpm_run_callback */"),
		traceLine(4.6, 123, "", "/* RESUME COMPLETE */"),
	)
}

func TestAnalyzeEndToEnd(t *testing.T) {
	data, errs, err := NewAnalyzer().Analyze(fullCycleLog(t), fullCycleTrace(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if data.DeviceCount() != 4 {
		t.Errorf("DeviceCount = %d, want 4", data.DeviceCount())
	}
	if data.GraphCount() != 1 {
		t.Errorf("GraphCount = %d, want 1", data.GraphCount())
	}
	foo := data.PhaseByName("suspend_general").Devices["foo"]
	if foo.Graph == nil {
		t.Fatal("trace graph not attached to foo")
	}
	if foo.Graph.Lines[0].Name != "dpm_run_callback" {
		t.Errorf("graph root = %q", foo.Graph.Lines[0].Name)
	}
	if foo.Row != 0 {
		t.Errorf("foo row = %d, want 0", foo.Row)
	}
	for _, name := range []string{"suspend_general", "suspend_cpu", "resume_cpu", "resume_general"} {
		if rows := data.PhaseByName(name).Rows; rows != 1 {
			t.Errorf("%s rows = %d, want 1", name, rows)
		}
	}
}

func TestAnalyzeWithoutTrace(t *testing.T) {
	data, errs, err := NewAnalyzer().Analyze(fullCycleLog(t), "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if data.GraphCount() != 0 {
		t.Errorf("GraphCount = %d without a trace log", data.GraphCount())
	}
	if data.DeviceCount() != 4 {
		t.Errorf("DeviceCount = %d, want 4", data.DeviceCount())
	}
}

func TestAnalyzeOverlappingCallbacksStack(t *testing.T) {
	path := writeLog(t,
		"# stamp",
		"[    1.000000] PM: Syncing filesystems ... done.",
		"[    1.200000] calling  a+ @ 1, parent: x",
		"[    1.300000] calling  b+ @ 2, parent: x",
		"[    1.400000] call a+ returned 0 after 200000 usecs",
		"[    1.450000] call b+ returned 0 after 150000 usecs",
		"[    2.000000] PM: suspend of devices complete after 500.000 msecs",
		"[    2.200000] PM: late suspend of devices complete after 100.000 msecs",
		"[    2.400000] ACPI: Preparing to enter system sleep state S3",
		"[    3.000000] ACPI: Low-level resume complete",
		"[    3.500000] ACPI: Waking up from system sleep state S3",
		"[    3.700000] PM: noirq resume of devices complete after 50.000 msecs",
		"[    3.900000] PM: early resume of devices complete after 20.000 msecs",
		"[    4.500000] Restarting tasks ... done.",
	)
	data, _, err := NewAnalyzer().Analyze(path, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	sg := data.PhaseByName("suspend_general")
	if sg.Rows != 2 {
		t.Errorf("rows = %d, want 2 for overlapping callbacks", sg.Rows)
	}
	if sg.Devices["a"].Row == sg.Devices["b"].Row {
		t.Error("overlapping callbacks share a row")
	}
}

func TestAnalyzeNoCycle(t *testing.T) {
	path := writeLog(t,
		"# stamp",
		"[    1.000000] usual boot chatter",
	)
	_, _, err := NewAnalyzer().Analyze(path, "")
	if !errors.Is(err, ErrNoCycle) {
		t.Errorf("err = %v, want ErrNoCycle", err)
	}
}

func TestAnalyzeMissingConsoleLog(t *testing.T) {
	_, _, err := NewAnalyzer().Analyze(filepath.Join(t.TempDir(), "absent.txt"), "")
	if err == nil {
		t.Error("expected error for missing console log")
	}
}

func TestAnalyzeProgressStages(t *testing.T) {
	// small fixtures never cross the reporting interval; the callback just
	// must be safe to pass
	stages := make(map[string]bool)
	progress := func(stage string, lines int, bytes, total int64) {
		stages[stage] = true
	}
	if _, _, err := NewAnalyzer().AnalyzeWithProgress(fullCycleLog(t), fullCycleTrace(t), progress); err != nil {
		t.Fatalf("AnalyzeWithProgress: %v", err)
	}
	for stage := range stages {
		if stage != StageDmesg && stage != StageFtrace {
			t.Errorf("unknown stage %q reported", stage)
		}
	}
}
