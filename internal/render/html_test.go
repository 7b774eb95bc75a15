package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/i72421/pm-graph/internal/models"
)

func reportData(t *testing.T) *models.Data {
	t.Helper()
	d := models.NewData()
	d.Start = 1.0
	d.End = 4.5
	d.Stamp = &models.Stamp{
		Time: time.Date(2016, time.May, 2, 10, 4, 55, 0, time.UTC),
		Host: "tbird",
		Mode: "mem",
	}

	windows := map[string][2]float64{
		"suspend_general": {1.0, 2.0},
		"suspend_early":   {2.0, 2.2},
		"suspend_noirq":   {2.2, 2.4},
		"suspend_cpu":     {2.4, 3.0},
		"resume_cpu":      {3.0, 3.5},
		"resume_noirq":    {3.5, 3.7},
		"resume_early":    {3.7, 3.9},
		"resume_general":  {3.9, 4.5},
	}
	for name, w := range windows {
		p := d.PhaseByName(name)
		p.Start, p.End = w[0], w[1]
		p.Rows = 1
	}

	sg := d.PhaseByName("suspend_general")
	d.NewDevice(sg, "platform", 1, "", 1.1, 1.3)
	i915 := d.NewDevice(sg, "i915", 123, "platform", 1.5, 1.502)

	g := models.NewCallGraph()
	g.Start, g.End = 1.5, 1.502
	g.Lines = []*models.CallGraphLine{
		{Time: 1.5, Name: "dpm_run_callback", Depth: 0, IsCall: true, Length: 2000},
		{Time: 1.5005, Name: "usleep_range", Depth: 1, IsCall: true, IsReturn: true, Length: 500},
		{Time: 1.502, Msg: "}", Depth: 0, IsReturn: true},
	}
	i915.Graph = g

	rg := d.PhaseByName("resume_general")
	d.NewDevice(rg, "i915", 123, "platform", 4.0, 4.1)
	return d
}

func renderReport(t *testing.T, d *models.Data, warnings []models.ParseError) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Report(&buf, d, warnings); err != nil {
		t.Fatalf("Report: %v", err)
	}
	return buf.String()
}

func TestReportHeadline(t *testing.T) {
	out := renderReport(t, reportData(t), nil)

	for _, want := range []string{
		"tbird",
		"(mem)",
		"May 2 2016, 10:04:55 AM",
		"2000.000 ms",
		"1500.000 ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestReportPhaseBandsAndLegend(t *testing.T) {
	out := renderReport(t, reportData(t), nil)

	if !strings.Contains(out, "background:#CCFFCC") {
		t.Error("suspend_general band color missing")
	}
	if !strings.Contains(out, "background:#FFFFCC") {
		t.Error("resume_general band color missing")
	}
	for _, name := range []string{
		"suspend_general", "suspend_early", "suspend_noirq", "suspend_cpu",
		"resume_cpu", "resume_noirq", "resume_early", "resume_general",
	} {
		if !strings.Contains(out, name) {
			t.Errorf("legend missing phase %s", name)
		}
	}
	// suspend_general covers [1.0, 2.0] of a 3.5s cycle.
	if !strings.Contains(out, `left:0.000%;width:28.571%`) {
		t.Error("suspend_general band not positioned at 0%/28.571%")
	}
}

func TestReportDeviceBars(t *testing.T) {
	out := renderReport(t, reportData(t), nil)

	if !strings.Contains(out, `id="dc2"`) {
		t.Error("i915 device div missing")
	}
	if !strings.Contains(out, "i915 (2000 us) parent: platform") {
		t.Error("i915 tooltip missing")
	}
	if !strings.Contains(out, `data-pm-tree="i915,platform"`) {
		t.Error("device tree attribute missing")
	}
	if !strings.Contains(out, `data-pm-ids="dc1,dc2,dc3"`) {
		t.Error("device tree id attribute missing")
	}
}

func TestReportEscapesDeviceNames(t *testing.T) {
	d := reportData(t)
	sg := d.PhaseByName("suspend_general")
	d.NewDevice(sg, "bad<script>alert(1)</script>", 9, "", 1.6, 1.7)

	out := renderReport(t, d, nil)
	if strings.Contains(out, "<script>alert") {
		t.Error("device name not escaped")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Error("escaped device name missing")
	}
}

func TestReportCallGraphSection(t *testing.T) {
	out := renderReport(t, reportData(t), nil)

	if !strings.Contains(out, `id="graph-dc2"`) {
		t.Error("call graph article missing")
	}
	if !strings.Contains(out, "dpm_run_callback") {
		t.Error("root call missing")
	}
	if !strings.Contains(out, "(2000.0 us)") {
		t.Error("root call duration missing")
	}
	if !strings.Contains(out, "padding-left:16px") {
		t.Error("nested leaf not indented")
	}
	// The pure return carries no duration and is not listed.
	if got := strings.Count(out, `class="gline"`); got != 2 {
		t.Errorf("graph lines = %d, want 2", got)
	}
}

func TestReportWarningsTable(t *testing.T) {
	warnings := []models.ParseError{
		{Line: 5, Content: "[ bad line", Reason: "malformed timestamp"},
	}
	out := renderReport(t, reportData(t), warnings)
	if !strings.Contains(out, "malformed timestamp") {
		t.Error("warning reason missing")
	}

	out = renderReport(t, reportData(t), nil)
	if strings.Contains(out, "Parse warnings") {
		t.Error("warnings section rendered with no warnings")
	}
}

func TestReportEmptyData(t *testing.T) {
	out := renderReport(t, models.NewData(), nil)

	if !strings.Contains(out, "<html") {
		t.Error("not an HTML document")
	}
	if strings.Contains(out, `class="phase"`) {
		t.Error("unopened phases should not render bands")
	}
}

func TestTimeScale(t *testing.T) {
	ticks := timeScale(3.5)
	if len(ticks) != 6 {
		t.Fatalf("ticks = %d, want 6", len(ticks))
	}
	if ticks[0].Label != "0.5s" || ticks[5].Label != "3.0s" {
		t.Errorf("labels = %s .. %s, want 0.5s .. 3.0s", ticks[0].Label, ticks[5].Label)
	}

	ticks = timeScale(0.045)
	if len(ticks) != 4 {
		t.Fatalf("ticks = %d, want 4", len(ticks))
	}
	if ticks[0].Label != "10ms" {
		t.Errorf("first label = %s, want 10ms", ticks[0].Label)
	}

	ticks = timeScale(12)
	if len(ticks) != 11 {
		t.Fatalf("ticks = %d, want 11", len(ticks))
	}
	if ticks[10].Label != "11s" {
		t.Errorf("last label = %s, want 11s", ticks[10].Label)
	}
}
