package engine

import (
	"fmt"
	"strings"

	"github.com/dshills/logcheck/internal/rule"
	"github.com/dshills/logcheck/internal/schema"
)

// evaluateCompound combines already-computed outcomes. An id with no
// outcome counts as not compliant. Failures carry a single summary
// sentence rather than the dependencies' findings.
func evaluateCompound(r rule.Compound, byID map[string]schema.Outcome) schema.Outcome {
	var passed, failed []string
	for _, id := range r.DependsOn {
		if o, ok := byID[id]; ok && o.Status == schema.StatusCompliant {
			passed = append(passed, id)
		} else {
			failed = append(failed, id)
		}
	}

	var msg string
	switch r.Operator {
	case rule.OperatorAND:
		if len(failed) == 0 {
			return newOutcome(r, schema.StatusCompliant, nil)
		}
		msg = fmt.Sprintf("Not all required checks passed; failing: %s.", strings.Join(failed, ", "))
	default:
		if len(passed) > 0 {
			return newOutcome(r, schema.StatusCompliant, nil)
		}
		msg = fmt.Sprintf("None of the required checks passed: %s.", strings.Join(r.DependsOn, ", "))
	}
	return newOutcome(r, schema.StatusNonCompliant, []string{msg})
}
