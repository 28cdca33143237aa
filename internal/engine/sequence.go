package engine

import (
	"strings"
	"time"

	"github.com/dshills/logcheck/internal/rule"
	"github.com/dshills/logcheck/internal/schema"
	"github.com/dshills/logcheck/internal/timestamp"
)

// sequenceBoundary separates the lines of consecutive completed attempts in
// a sequence rule's findings.
const sequenceBoundary = "---"

// sequenceWalk is the state of one in-progress attempt.
type sequenceWalk struct {
	step    int
	last    time.Time
	hasLast bool
	lines   []string
}

func (w *sequenceWalk) reset() {
	w.step = 0
	w.hasLast = false
	w.lines = nil
}

func (w *sequenceWalk) accept(line string, ts time.Time, ok bool) {
	w.lines = append(w.lines, strings.TrimSpace(line))
	w.last, w.hasLast = ts, ok
	w.step++
}

// evaluateSequence walks the document line by line looking for the rule's
// steps in order. A step whose timestamp is more than MaxTimeGap after the
// previous accepted step abandons the attempt; the same line is then tried
// as the first step of a new attempt.
func evaluateSequence(r rule.Sequence, content string) schema.Outcome {
	if len(r.Steps) == 0 {
		n := 0
		o := newOutcome(r, schema.StatusCompliant, nil)
		o.FindingCount = &n
		return o
	}

	var (
		w        sequenceWalk
		count    int
		findings []string
	)
	for _, line := range strings.Split(content, "\n") {
		if !r.Steps[w.step].Matches(line) {
			continue
		}
		ts, ok := timestamp.Parse(line)
		if w.step > 0 && ok && w.hasLast && ts.Sub(w.last) > r.MaxTimeGap {
			w.reset()
		}
		switch {
		case w.step == 0 && r.Steps[0].Matches(line):
			w.accept(line, ts, ok)
		case w.step > 0:
			w.accept(line, ts, ok)
		}
		if w.step == len(r.Steps) {
			count++
			findings = append(findings, w.lines...)
			findings = append(findings, sequenceBoundary)
			w.reset()
		}
	}
	if n := len(findings); n > 0 {
		findings = findings[:n-1]
	}

	status := schema.StatusCompliant
	if count > r.MaxOccurrences {
		status = schema.StatusNonCompliant
	}
	o := newOutcome(r, status, findings)
	o.FindingCount = &count
	return o
}
