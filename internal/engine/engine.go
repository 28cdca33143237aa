// Package engine evaluates compliance rules against already-loaded text.
// Every function here is pure: identical inputs always produce identical
// outcomes, and every rule always produces exactly one outcome.
package engine

import (
	"fmt"

	"github.com/dshills/logcheck/internal/rule"
	"github.com/dshills/logcheck/internal/schema"
)

// Document is the text under evaluation plus an optional companion body
// (e.g. a network-status dump). An empty Auxiliary means none was supplied.
type Document struct {
	Content   string
	Auxiliary string
}

// Evaluate runs rules against doc and returns one outcome per rule in the
// order the rules were given.
//
// All non-compound rules are evaluated first, regardless of declared order;
// compound rules then read those outcomes by id. A compound rule never sees
// another compound rule's outcome.
func Evaluate(doc Document, rules []rule.Rule) []schema.Outcome {
	out := make([]schema.Outcome, len(rules))
	byID := make(map[string]schema.Outcome, len(rules))

	for i, r := range rules {
		if _, ok := r.(rule.Compound); ok {
			continue
		}
		o := evaluateOne(doc, r)
		out[i] = o
		byID[o.RuleID] = o
	}

	for i, r := range rules {
		c, ok := r.(rule.Compound)
		if !ok {
			continue
		}
		out[i] = evaluateCompound(c, byID)
	}
	return out
}

// evaluateOne dispatches a non-compound rule to its evaluator.
func evaluateOne(doc Document, r rule.Rule) schema.Outcome {
	switch v := r.(type) {
	case rule.Presence:
		return evaluatePresence(v, doc.Content)
	case rule.ConditionalPresence:
		return evaluateConditional(v, doc.Content)
	case rule.Count:
		return evaluateCount(v, doc)
	case rule.Sequence:
		return evaluateSequence(v, doc.Content)
	case rule.Completion:
		return evaluateCompletion(v, doc.Content)
	case rule.TagTimestamp:
		return evaluateTagTimestamp(v, doc.Content)
	default:
		return unrecognized(r)
	}
}

// unrecognized handles a rule value outside the
// closed set (in practice only a nil rule).
func unrecognized(r rule.Rule) schema.Outcome {
	kind := "<nil>"
	id := ""
	if r != nil {
		kind = string(r.Kind())
		id = rule.ID(r)
	}
	return schema.Outcome{
		RuleID:   id,
		Kind:     kind,
		Status:   schema.StatusNonCompliant,
		Findings: []string{fmt.Sprintf("Rule kind %q is not implemented.", kind)},
	}
}

// newOutcome fills the fields shared by every evaluator.
func newOutcome(r rule.Rule, status schema.Status, findings []string) schema.Outcome {
	if findings == nil {
		findings = []string{}
	}
	return schema.Outcome{
		RuleID:      rule.ID(r),
		Kind:        string(r.Kind()),
		Description: rule.Description(r),
		Status:      status,
		Findings:    findings,
	}
}

// failureStatus maps a declared severity to the status of a failed check.
func failureStatus(sev rule.Severity) schema.Status {
	if sev == rule.SeverityWarning {
		return schema.StatusWarning
	}
	return schema.StatusNonCompliant
}
