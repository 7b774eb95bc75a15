package parser

import (
	"bufio"
	"fmt"
	"os"
)

// Kind identifies the format of an uploaded log file.
type Kind string

const (
	KindDmesg   Kind = "dmesg"
	KindFtrace  Kind = "ftrace"
	KindUnknown Kind = "unknown"
)

// detectSampleLines bounds how much of a file DetectKind examines.
const detectSampleLines = 200

// DetectKind samples the head of a log file and classifies it as a console
// log, a function_graph trace, or unknown. The first line is skipped since
// both formats may open with a capture stamp.
func DetectKind(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	console, trace := 0, 0
	lineNo := 0
	for scanner.Scan() && lineNo < detectSampleLines {
		lineNo++
		if lineNo == 1 {
			continue
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if ftraceLineRe.MatchString(line) {
			trace++
		} else if consoleLineRe.MatchString(line) {
			console++
		}
	}
	if err := scanner.Err(); err != nil {
		return KindUnknown, fmt.Errorf("read log: %w", err)
	}

	switch {
	case trace > console:
		return KindFtrace, nil
	case console > trace:
		return KindDmesg, nil
	default:
		return KindUnknown, nil
	}
}
