package parser

import (
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/i72421/pm-graph/internal/models"
)

// phaseTransitions maps the kernel's phase boundary markers to the phase
// each one opens. The table is evaluated in order against every in-cycle
// line; a match closes the active phase and opens the target at the line's
// timestamp, wherever the state machine currently is.
var phaseTransitions = []struct {
	re   *regexp.Regexp
	next string
}{
	{regexp.MustCompile(`^PM: suspend of devices complete after`), "suspend_early"},
	{regexp.MustCompile(`^PM: late suspend of devices complete after`), "suspend_noirq"},
	{regexp.MustCompile(`^ACPI: Preparing to enter system sleep state`), "suspend_cpu"},
	{regexp.MustCompile(`^ACPI: Low-level resume complete`), "resume_cpu"},
	{regexp.MustCompile(`^ACPI: Waking up from system sleep state`), "resume_noirq"},
	{regexp.MustCompile(`^PM: noirq resume of devices complete after`), "resume_early"},
	{regexp.MustCompile(`^PM: early resume of devices complete after`), "resume_general"},
}

var (
	suspendStartRe  = regexp.MustCompile(`^PM: Syncing filesystems`)
	resumeDoneRe    = regexp.MustCompile(`Restarting tasks .* done`)
	disablingCPUsRe = regexp.MustCompile(`^Disabling non-boot CPUs`)
	cpuOfflineRe    = regexp.MustCompile(`^smpboot: CPU ([0-9]+) is now offline`)
	cpuBootRe       = regexp.MustCompile(`^smpboot: Booting Node ([0-9]+) Processor ([0-9]+)`)
	cpuUpRe         = regexp.MustCompile(`^CPU([0-9]+) is up`)
)

// maxParseErrors caps the advisory diagnostics kept per pass.
const maxParseErrors = 1000

// DmesgParser reconstructs the phase and device timeline from the kernel
// console log.
type DmesgParser struct{}

// NewDmesgParser creates a console log parser.
func NewDmesgParser() *DmesgParser {
	return &DmesgParser{}
}

// dmesgState carries the mutable state of one parsing pass: the active
// phase, the CPU transition cursor, and the accumulated non-fatal errors.
// Nothing outlives the pass.
type dmesgState struct {
	data      *models.Data
	phase     *models.Phase // nil outside the suspend/resume cycle
	cpuCursor float64
	errors    []models.ParseError
}

func (st *dmesgState) addError(line ConsoleLine, reason string) {
	if len(st.errors) >= maxParseErrors {
		return
	}
	st.errors = append(st.errors, models.ParseError{
		Line:    line.LineNo,
		Content: line.Msg,
		Reason:  reason,
	})
}

// Parse reads, orders, and interprets the console log, returning the
// reconstructed phase and device model. Unresolved callbacks are clamped
// before returning; row assignment and the trace pass run separately.
func (p *DmesgParser) Parse(path string) (*models.Data, []models.ParseError, error) {
	return p.ParseWithProgress(path, nil)
}

// ParseWithProgress is Parse with a periodic progress callback.
func (p *DmesgParser) ParseWithProgress(path string, progress ProgressCallback) (*models.Data, []models.ParseError, error) {
	stampLine, lines, err := SortConsoleLog(path)
	if err != nil {
		return nil, nil, err
	}
	data := models.NewData()
	data.Stamp = ParseStamp(stampLine)

	st := &dmesgState{data: data}
	for i, line := range lines {
		if p.handleLine(st, line) {
			break
		}
		if progress != nil && (i+1)%5000 == 0 {
			progress(i+1, int64(i+1), int64(len(lines)))
		}
	}
	data.FixupUnresolved()
	return data, st.errors, nil
}

// handleLine dispatches one ordered console line through the recognized
// shapes, first match wins. It reports true when the cycle is over and the
// remaining lines need no examination.
func (p *DmesgParser) handleLine(st *dmesgState, line ConsoleLine) bool {
	ktime, msg := line.Time, line.Msg

	// nothing but the suspend entry marker counts until the cycle starts
	if st.phase == nil {
		if suspendStartRe.MatchString(msg) {
			st.phase = st.data.PhaseByName("suspend_general")
			st.phase.Start = ktime
			st.data.Start = ktime
		}
		return false
	}

	for _, tr := range phaseTransitions {
		if tr.re.MatchString(msg) {
			st.phase.End = ktime
			st.phase = st.data.PhaseByName(tr.next)
			st.phase.Start = ktime
			return false
		}
	}

	if resumeDoneRe.MatchString(msg) {
		st.phase.End = ktime
		st.data.End = ktime
		st.phase = nil
		return true
	}

	if m := callingRe.FindStringSubmatch(msg); m != nil {
		pid, err := strconv.Atoi(m[2])
		if err != nil || m[3] == "" {
			st.addError(line, "malformed callback entry")
			return false
		}
		st.data.NewDevice(st.phase, m[1], pid, m[3], ktime, -1)
		return false
	}

	if m := returnRe.FindStringSubmatch(msg); m != nil {
		dev, ok := st.phase.Devices[m[1]]
		if !ok {
			logrus.Debugf("%s: return with no open callback in %s", m[1], st.phase.Name)
			st.addError(line, "return with no open callback")
			return false
		}
		usecs, _ := strconv.Atoi(m[2])
		dev.Length = float64(usecs)
		dev.End = ktime
		logrus.Debugf("%15s [%f - %f] %s(%d) %s",
			st.phase.Name, dev.Start, dev.End, dev.Name, dev.PID, dev.Parent)
		return false
	}

	switch st.phase.Name {
	case "suspend_cpu":
		if disablingCPUsRe.MatchString(msg) {
			st.cpuCursor = ktime
			return false
		}
		if m := cpuOfflineRe.FindStringSubmatch(msg); m != nil {
			st.data.NewDevice(st.phase, "CPU"+m[1], 0, "", st.cpuCursor, ktime)
			st.cpuCursor = ktime
			return false
		}
	case "resume_cpu":
		if m := cpuBootRe.FindStringSubmatch(msg); m != nil {
			st.data.NewDevice(st.phase, "CPU"+m[2], 0, "", ktime, ktime)
			return false
		}
		if m := cpuUpRe.FindStringSubmatch(msg); m != nil {
			name := "CPU" + m[1]
			dev, ok := st.phase.Devices[name]
			if !ok {
				logrus.Debugf("%s: up marker with no boot record", name)
				st.addError(line, "cpu up with no boot record")
				return false
			}
			dev.End = ktime
			dev.Length = (ktime - dev.Start) * 1e6
			return false
		}
	}

	// in-cycle lines matching no shape carry no timeline information
	return false
}
