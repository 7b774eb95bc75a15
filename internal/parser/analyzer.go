package parser

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/i72421/pm-graph/internal/models"
	"github.com/i72421/pm-graph/internal/timeline"
)

// ProgressCallback reports parsing progress while a log is consumed.
type ProgressCallback func(linesProcessed int, bytesProcessed int64, totalBytes int64)

// Analysis stages reported through StageProgress.
const (
	StageDmesg  = "dmesg"
	StageFtrace = "ftrace"
)

// StageProgress reports per-stage progress while an analysis runs.
type StageProgress func(stage string, linesProcessed int, bytesProcessed, totalBytes int64)

// ErrNoCycle is returned when the console log holds no suspend entry
// marker, so there is no timeline to reconstruct.
var ErrNoCycle = errors.New("no suspend/resume cycle found in console log")

// Analyzer runs a full analysis: the console log pass that builds the
// phase and device timeline, the optional trace log pass that attaches
// call graphs, and the final row packing.
type Analyzer struct {
	// Workers bounds the trace reconstruction parallelism.
	Workers int
}

// NewAnalyzer creates an analyzer with serial trace reconstruction.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze parses the console log at dmesgPath and, when ftracePath is
// non-empty, the trace log as well. Recoverable input problems accumulate
// as ParseErrors; the error return is reserved for unreadable files and a
// console log with no suspend cycle in it.
func (a *Analyzer) Analyze(dmesgPath, ftracePath string) (*models.Data, []models.ParseError, error) {
	return a.AnalyzeWithProgress(dmesgPath, ftracePath, nil)
}

// AnalyzeWithProgress is Analyze with a per-stage progress callback.
func (a *Analyzer) AnalyzeWithProgress(dmesgPath, ftracePath string, progress StageProgress) (*models.Data, []models.ParseError, error) {
	var dmesgProgress ProgressCallback
	if progress != nil {
		dmesgProgress = func(lines int, bytes, total int64) {
			progress(StageDmesg, lines, bytes, total)
		}
	}
	data, errs, err := NewDmesgParser().ParseWithProgress(dmesgPath, dmesgProgress)
	if err != nil {
		return nil, nil, err
	}
	if data.Start < 0 {
		return nil, errs, ErrNoCycle
	}

	if ftracePath != "" {
		fp := &FtraceParser{Workers: a.Workers}
		var ftraceProgress ProgressCallback
		if progress != nil {
			ftraceProgress = func(lines int, bytes, total int64) {
				progress(StageFtrace, lines, bytes, total)
			}
		}
		ferrs, err := fp.ParseWithProgress(ftracePath, data, ftraceProgress)
		if err != nil {
			return nil, errs, err
		}
		errs = append(errs, ferrs...)
	}

	a.finalize(data)
	logrus.WithFields(logrus.Fields{
		"devices":  data.DeviceCount(),
		"graphs":   data.GraphCount(),
		"suspend":  data.SuspendTime(),
		"resume":   data.ResumeTime(),
		"warnings": len(errs),
	}).Debug("Analysis complete")
	return data, errs, nil
}

// finalize packs each phase's devices into display rows. Devices are
// offered in start order so the packing is deterministic for a given log.
func (a *Analyzer) finalize(data *models.Data) {
	for _, phase := range data.Phases {
		devs := phase.SortedDevices()
		items := make([]timeline.Interval, len(devs))
		for i, d := range devs {
			items[i] = d
		}
		phase.Rows = timeline.AssignRows(items)
	}
}
