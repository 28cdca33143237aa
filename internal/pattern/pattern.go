// Package pattern wraps regular-expression search over a full text body.
// Case sensitivity and line anchoring are carried by each expression's own
// inline flags, e.g. "(?i)license check" or "(?im)^ERROR:".
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is a compiled, immutable search expression. It is safe for
// concurrent use.
type Pattern struct {
	re *regexp.Regexp
}

// Compile parses expr. A malformed expression is a definition-time error and
// must be surfaced before any document is evaluated.
func Compile(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("pattern: compile %q: %w", expr, err)
	}
	return &Pattern{re: re}, nil
}

// MustCompile is like Compile but panics on error. Used for built-in
// definitions only.
func MustCompile(expr string) *Pattern {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source expression.
func (p *Pattern) String() string {
	return p.re.String()
}

// NumGroups returns the number of capture groups in the expression.
func (p *Pattern) NumGroups() int {
	return p.re.NumSubexp()
}

// Matches reports whether text contains at least one match.
func (p *Pattern) Matches(text string) bool {
	return p.re.MatchString(text)
}

// FindAll returns every non-overlapping match in text, in order, with
// leading and trailing whitespace trimmed. The result is never nil.
func (p *Pattern) FindAll(text string) []string {
	raw := p.re.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		out = append(out, strings.TrimSpace(m))
	}
	return out
}

// Submatches returns the full match and capture groups of every match in
// order. Groups that did not participate are empty strings.
func (p *Pattern) Submatches(text string) [][]string {
	return p.re.FindAllStringSubmatch(text, -1)
}

// Captures returns capture group n of every match in order. Out-of-range
// groups yield an empty string per match.
func (p *Pattern) Captures(text string, n int) []string {
	matches := p.re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if n < 0 || n >= len(m) {
			out = append(out, "")
			continue
		}
		out = append(out, m[n])
	}
	return out
}

// TagValue returns the first value enclosed by <tag>...</tag> in text. The
// match is non-greedy and does not cross line boundaries. ok is false when
// the tag is absent or its value is empty.
func TagValue(text, tag string) (value string, ok bool) {
	q := regexp.QuoteMeta(tag)
	re := regexp.MustCompile("<" + q + ">(.*?)</" + q + ">")
	m := re.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}
