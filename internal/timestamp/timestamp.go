// Package timestamp extracts the leading date-time from a log line.
package timestamp

import (
	"regexp"
	"time"
)

// Layout is the lexical form recognised at the start of a line.
const Layout = "2006-01-02 15:04:05"

var leadingRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`)

// Parse returns the timestamp at the start of line, interpreted in UTC.
// ok is false when the line has no leading timestamp or it does not name a
// real instant (e.g. month 13); such lines simply cannot anchor time gaps.
func Parse(line string) (t time.Time, ok bool) {
	m := leadingRe.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(Layout, m[1], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
