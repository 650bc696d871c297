// Package utilx holds small parsing helpers shared by the command line tools.
package utilx

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeLayouts are tried, in order, by ParseTime.
var DefaultTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses s with DefaultTimeLayouts or as a millisecond timestamp.
func ParseTime(s string) (time.Time, error) {
	return ParseTimeWithMultipleLayouts(s, DefaultTimeLayouts...)
}

// ParseTimeWithMultipleLayouts parses the time string with the provided layouts or as a numeric
// timestamp in milliseconds. The result is in UTC.
func ParseTimeWithMultipleLayouts(s string, layouts ...string) (time.Time, error) {
	s = strings.Trim(strings.TrimSpace(s), "\"")

	// First, try to parse the string as a numeric timestamp
	if timestamp, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(timestamp).UTC(), nil
	}

	errParseTime := errors.Errorf("unable to parse time '%s': no layout given", s)

	for _, layout := range layouts {
		parsedTime, err := time.Parse(layout, s)
		if err == nil {
			return parsedTime.UTC(), nil
		}

		errParseTime = errors.WithMessagef(err, "unable to parse time '%s' with provided layouts", s)
	}

	return time.Time{}, errParseTime
}

// SplitAndTrim splits s on sep, trims every element and drops the empty ones.
func SplitAndTrim(s string, sep string) []string {
	var out []string

	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
