package parser

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/i72421/pm-graph/internal/models"
)

// Trace window delimiters the capture tool writes into the trace marker.
const (
	suspendStartMarker   = "/* SUSPEND START */"
	resumeCompleteMarker = "/* RESUME COMPLETE */"
)

// ftraceLineRe splits a function_graph trace line into timestamp, cpu,
// process, pid, duration, and message columns.
var ftraceLineRe = regexp.MustCompile(`^ *([0-9.]+) *\| *([0-9]+)\) *(.*)-([0-9]+) *\|[ +!]*([0-9.]*) .*\|  (.*)$`)

var (
	traceReturnRe = regexp.MustCompile(`^\} *\/\* *(.*?) *\*\/$`)
	traceCallRe   = regexp.MustCompile(`^(.*?)\(`)
)

// parseTraceMsg classifies a trace message as a call, a return, a leaf
// call-and-return, or an inert line, producing the line model. Leading
// indentation is presentation only and is ignored; depth is assigned later
// while the graph is built.
func parseTraceMsg(t float64, msg string, durUsec float64) *models.CallGraphLine {
	l := &models.CallGraphLine{Time: t, Msg: msg, Length: durUsec}
	trimmed := strings.TrimSpace(msg)
	switch {
	case strings.HasPrefix(trimmed, "}"):
		l.IsReturn = true
		if m := traceReturnRe.FindStringSubmatch(trimmed); m != nil {
			l.Name = m[1]
		}
	case strings.HasSuffix(trimmed, "{"):
		l.IsCall = true
		if m := traceCallRe.FindStringSubmatch(trimmed); m != nil {
			l.Name = strings.TrimSpace(m[1])
		}
	case strings.HasSuffix(trimmed, ";"):
		l.IsCall = true
		l.IsReturn = true
		if m := traceCallRe.FindStringSubmatch(trimmed); m != nil {
			l.Name = strings.TrimSpace(m[1])
		}
	default:
		l.Name = trimmed
	}
	return l
}

// traceTask buffers the in-window lines of one task in stream order.
type traceTask struct {
	pid   int
	cpu   string
	lines []*models.CallGraphLine
}

// taskResult holds one task's completed, sanity-checked graphs.
type taskResult struct {
	pid    int
	graphs []*models.CallGraph
	errors []models.ParseError
}

// FtraceParser reconstructs per-task call graphs from the trace log and
// attaches them to the device records of an already parsed console model.
type FtraceParser struct {
	// Workers bounds the per-task reconstruction parallelism; zero or one
	// keeps the pass serial. Device correlation is always a single serial
	// pass after every graph has completed.
	Workers int
}

// NewFtraceParser creates a trace log parser.
func NewFtraceParser() *FtraceParser {
	return &FtraceParser{}
}

// Parse reads the trace log, reconstructs completed call graphs per task
// inside the suspend/resume window, and attaches each accepted graph to the
// matching device in data.
func (p *FtraceParser) Parse(path string, data *models.Data) ([]models.ParseError, error) {
	return p.ParseWithProgress(path, data, nil)
}

// ParseWithProgress is Parse with a periodic progress callback.
func (p *FtraceParser) ParseWithProgress(path string, data *models.Data, progress ProgressCallback) ([]models.ParseError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	defer f.Close()

	var totalBytes int64
	if fi, err := f.Stat(); err == nil {
		totalBytes = fi.Size()
	}

	tasks, err := p.collectWindow(f, data, totalBytes, progress)
	if err != nil {
		return nil, err
	}

	results := p.reconstruct(tasks)

	var errs []models.ParseError
	for _, res := range results {
		errs = append(errs, res.errors...)
		for _, g := range res.graphs {
			attachGraph(data, res.pid, g)
		}
	}
	if len(errs) > maxParseErrors {
		errs = errs[:maxParseErrors]
	}
	return errs, nil
}

// collectWindow scans the trace stream, grouping the lines between the
// suspend and resume markers per task id. Lines outside the window and
// lines that do not match the trace format are ignored.
func (p *FtraceParser) collectWindow(f *os.File, data *models.Data, totalBytes int64, progress ProgressCallback) ([]*traceTask, error) {
	byPID := make(map[int]*traceTask)
	var tasks []*traceTask

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	inWindow := false
	lineNo := 0
	var bytesRead int64
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		bytesRead += int64(len(line)) + 1
		if lineNo == 1 {
			if data.Stamp == nil {
				data.Stamp = ParseStamp(line)
			}
			continue
		}
		if progress != nil && lineNo%10000 == 0 {
			progress(lineNo, bytesRead, totalBytes)
		}

		m := ftraceLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		t, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		pid, err := strconv.Atoi(m[4])
		if err != nil {
			continue
		}
		dur := 0.0
		if m[5] != "" {
			dur, _ = strconv.ParseFloat(m[5], 64)
		}
		l := parseTraceMsg(t, m[6], dur)

		if !inWindow {
			if l.Name == suspendStartMarker {
				logrus.Debugf("suspend start %f at line %d", l.Time, lineNo)
				inWindow = true
			}
			continue
		}
		if l.Name == resumeCompleteMarker {
			logrus.Debugf("resume complete %f at line %d", l.Time, lineNo)
			break
		}

		task := byPID[pid]
		if task == nil {
			task = &traceTask{pid: pid}
			byPID[pid] = task
			tasks = append(tasks, task)
		}
		task.cpu = m[2]
		task.lines = append(task.lines, l)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace log: %w", err)
	}
	return tasks, nil
}

// reconstruct builds each task's graphs, on a bounded worker pool when
// Workers allows it. Tasks are independent; only the later correlation pass
// touches shared state.
func (p *FtraceParser) reconstruct(tasks []*traceTask) []taskResult {
	results := make([]taskResult, len(tasks))
	if p.Workers > 1 && len(tasks) > 1 {
		var g errgroup.Group
		g.SetLimit(p.Workers)
		for i, task := range tasks {
			i, task := i, task
			g.Go(func() error {
				results[i] = buildTaskGraphs(task)
				return nil
			})
		}
		g.Wait()
	} else {
		for i, task := range tasks {
			results[i] = buildTaskGraphs(task)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].pid < results[j].pid })
	return results
}

// buildTaskGraphs feeds one task's lines through the graph state machine,
// collecting every completed graph that survives the sanity check.
func buildTaskGraphs(task *traceTask) taskResult {
	res := taskResult{pid: task.pid}
	g := models.NewCallGraph()
	for _, l := range task.lines {
		wasInvalid := g.Invalid
		if g.AddLine(l) {
			if g.SanityCheck() {
				res.graphs = append(res.graphs, g)
			} else {
				logrus.Debugf("sanity check failed for task %d cpu %s, ignoring this callback",
					task.pid, task.cpu)
				res.errors = append(res.errors, models.ParseError{
					Content: fmt.Sprintf("task %d cpu %s [%f - %f]", task.pid, task.cpu, g.Start, g.End),
					Reason:  "unbalanced call graph",
				})
			}
			g = models.NewCallGraph()
			continue
		}
		if g.Invalid && !wasInvalid {
			logrus.Debugf("too much data for task %d cpu %s (%f - %f), ignoring this callback",
				task.pid, task.cpu, g.Start, l.Time)
			res.errors = append(res.errors, models.ParseError{
				Content: fmt.Sprintf("task %d cpu %s", task.pid, task.cpu),
				Reason:  "corrupt call graph",
			})
		}
	}
	return res
}

// attachGraph correlates one completed graph to a device: the phase whose
// window holds the graph's start, then the first same-pid device in start
// order whose window the graph's window contains. The traced dispatcher
// runs both bound printks inside itself, so the graph window encloses the
// device window, never the reverse. A later graph may replace an earlier
// match.
func attachGraph(data *models.Data, pid int, g *models.CallGraph) bool {
	if g.Start < 0 {
		return false
	}
	phase := data.PhaseAt(g.Start)
	if phase == nil {
		return false
	}
	for _, dev := range phase.SortedDevices() {
		if dev.PID == pid && g.Start <= dev.Start && g.End >= dev.End {
			logrus.Debugf("%15s [%f - %f] %s(%d)", phase.Name, g.Start, g.End, dev.Name, pid)
			dev.Graph = g
			return true
		}
	}
	return false
}
