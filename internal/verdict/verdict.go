// Package verdict provides deterministic local logic for tallying outcomes,
// scoring, and status determination. No evaluation or I/O happens here.
package verdict

import (
	"fmt"
	"strings"

	"github.com/dshills/logcheck/internal/schema"
)

// ComputeScore calculates the compliance score from outcome counts.
// Start at 100; subtract 20 per non-compliant and 7 per warning; clamp to [0, 100].
func ComputeScore(nonCompliant, warning int) int {
	score := 100 - (nonCompliant * 20) - (warning * 7)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// StatusOrdinal returns the numeric ordinal for a status, used to compare
// severity order. compliant=0, warning=1, non-compliant=2, anything else -1.
// Used by --fail-on: exit 2 if StatusOrdinal(actual) >= StatusOrdinal(threshold).
func StatusOrdinal(s schema.Status) int {
	switch s {
	case schema.StatusCompliant:
		return 0
	case schema.StatusWarning:
		return 1
	case schema.StatusNonCompliant:
		return 2
	default:
		return -1
	}
}

// ParseStatus accepts a status name as written on the command line.
func ParseStatus(s string) (schema.Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compliant":
		return schema.StatusCompliant, nil
	case "warning":
		return schema.StatusWarning, nil
	case "non-compliant", "non_compliant", "noncompliant":
		return schema.StatusNonCompliant, nil
	}
	return "", fmt.Errorf("verdict: unknown status %q (available: compliant, warning, non-compliant)", s)
}

// Reached reports whether actual is at least as severe as threshold.
func Reached(actual, threshold schema.Status) bool {
	t := StatusOrdinal(threshold)
	return t >= 0 && StatusOrdinal(actual) >= t
}

// Worst returns the more severe of a and b. Unknown statuses lose.
func Worst(a, b schema.Status) schema.Status {
	if StatusOrdinal(b) > StatusOrdinal(a) {
		return b
	}
	return a
}

// Determine returns the most severe status among outcomes; compliant when
// there are none.
func Determine(outcomes []schema.Outcome) schema.Status {
	s := schema.StatusCompliant
	for _, o := range outcomes {
		s = Worst(s, o.Status)
	}
	return s
}

// Count tallies outcomes by status.
func Count(outcomes []schema.Outcome) schema.Tally {
	var t schema.Tally
	for _, o := range outcomes {
		switch o.Status {
		case schema.StatusCompliant:
			t.Compliant++
		case schema.StatusWarning:
			t.Warning++
		case schema.StatusNonCompliant:
			t.NonCompliant++
		}
	}
	return t
}

// Escalate raises warnings to non-compliant in strict mode. Outside strict
// mode outcomes are returned unchanged. The input slice is not modified.
func Escalate(outcomes []schema.Outcome, strict bool) []schema.Outcome {
	if !strict {
		return outcomes
	}
	out := make([]schema.Outcome, len(outcomes))
	for i, o := range outcomes {
		if o.Status == schema.StatusWarning {
			o.Status = schema.StatusNonCompliant
		}
		out[i] = o
	}
	return out
}

// Standard fills the verdict fields of a rule-based standard result from
// its outcomes.
func Standard(r *schema.StandardResult) {
	r.Tally = Count(r.Outcomes)
	r.Status = Determine(r.Outcomes)
	r.Score = ComputeScore(r.Tally.NonCompliant, r.Tally.Warning)
}

// Summarize aggregates every standard result in the report into its
// Summary. Open-ended results (no Status) are informational and do not
// affect the tally, score, or status.
func Summarize(r *schema.Report) {
	sum := schema.Summary{Status: schema.StatusCompliant}
	for _, fs := range r.FileSets {
		for _, doc := range fs.Documents {
			sum.Documents++
			for _, sr := range doc.Standards {
				sum.Evaluations++
				if sr.Status == "" {
					continue
				}
				sum.Compliant += sr.Tally.Compliant
				sum.Warning += sr.Tally.Warning
				sum.NonCompliant += sr.Tally.NonCompliant
				sum.Status = Worst(sum.Status, sr.Status)
			}
		}
	}
	sum.Score = ComputeScore(sum.NonCompliant, sum.Warning)
	r.Summary = sum
}
