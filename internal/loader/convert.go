package loader

import (
	"strconv"
	"strings"
)

// lapTimeMS parses a lap time of the form "M:SS.mmm" into integer
// milliseconds. Absent or unparsable values map to nil so one bad field never
// aborts a batch.
func lapTimeMS(s string) any {
	if s == "" {
		return nil
	}
	minutes, seconds, ok := strings.Cut(s, ":")
	if !ok {
		return nil
	}
	m, err := strconv.Atoi(minutes)
	if err != nil {
		return nil
	}
	sec, err := strconv.ParseFloat(seconds, 64)
	if err != nil {
		return nil
	}
	return int64((float64(m)*60 + sec) * 1000)
}

// optInt parses an integer field, mapping absent or unparsable to nil.
func optInt(s string) any {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return n
}

// optStr maps an absent string field to nil.
func optStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// intOr0 parses an integer field, defaulting to 0.
func intOr0(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// floatOr0 parses a float field, defaulting to 0.
func floatOr0(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
