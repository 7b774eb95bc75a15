package parser

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
)

// ConsoleLine is one kernel console log line with its embedded timestamp.
// LineNo is the 1-based position in the raw file, kept for diagnostics.
type ConsoleLine struct {
	Time   float64
	Msg    string
	LineNo int
}

var (
	consoleLineRe = regexp.MustCompile(`^\[ *([0-9.]+)\] (.*)$`)
	callingRe     = regexp.MustCompile(`^calling  (.+)\+ @ ([0-9]+), parent: (.*)$`)
	returnRe      = regexp.MustCompile(`^call (.+)\+ returned .* after ([0-9]+) usecs`)
)

// SortConsoleLog reads the console log, keeps only timestamped lines, and
// returns them ordered by timestamp along with the raw first line of the
// file (the stamp candidate). The sort is stable, so lines sharing a
// timestamp keep their input order except where the return/call swap repair
// applies.
func SortConsoleLog(path string) (string, []ConsoleLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open console log: %w", err)
	}
	defer f.Close()

	var stampLine string
	var lines []ConsoleLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if lineNo == 1 {
			stampLine = line
		}
		m := consoleLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		t, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		lines = append(lines, ConsoleLine{Time: t, Msg: m[2], LineNo: lineNo})
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("read console log: %w", err)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Time < lines[j].Time })
	fixupCallReturnSwaps(lines)
	return stampLine, lines, nil
}

// fixupCallReturnSwaps repairs the artifact where a callback's call and
// return are logged with the same timestamp in the wrong order, which would
// otherwise make the parser see the return before its call. Only adjacent
// pairs for the same function are swapped; each line takes part in at most
// one swap.
func fixupCallReturnSwaps(lines []ConsoleLine) {
	for i := 1; i < len(lines); i++ {
		if lines[i-1].Time != lines[i].Time {
			continue
		}
		mr := returnRe.FindStringSubmatch(lines[i-1].Msg)
		if mr == nil {
			continue
		}
		mc := callingRe.FindStringSubmatch(lines[i].Msg)
		if mc == nil || mc[1] != mr[1] {
			continue
		}
		lines[i-1], lines[i] = lines[i], lines[i-1]
		i++
	}
}
