package parser

import (
	"regexp"
	"strconv"
	"time"

	"github.com/i72421/pm-graph/internal/models"
)

// The capture tool writes the same stamp line at the top of both logs:
// "# suspend-MMDDYY-HHMMSS host mode".
var stampRe = regexp.MustCompile(`^# suspend-([0-9]{2})([0-9]{2})([0-9]{2})-([0-9]{2})([0-9]{2})([0-9]{2}) (.*) (.*)$`)

// ParseStamp extracts the run metadata from a log's first line. It returns
// nil for any line that is not a well-formed stamp.
func ParseStamp(line string) *models.Stamp {
	m := stampRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	num := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	month, day, year := num(m[1]), num(m[2]), num(m[3])
	hour, min, sec := num(m[4]), num(m[5]), num(m[6])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || min > 59 || sec > 59 {
		return nil
	}
	return &models.Stamp{
		Time: time.Date(2000+year, time.Month(month), day, hour, min, sec, 0, time.UTC),
		Host: m[7],
		Mode: m[8],
	}
}
