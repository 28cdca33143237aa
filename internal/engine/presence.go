package engine

import (
	"github.com/dshills/logcheck/internal/rule"
	"github.com/dshills/logcheck/internal/schema"
)

// notApplicable is the sole finding of a conditional check whose condition
// never occurred.
const notApplicable = "Condition for this check was not met; check is not applicable."

func evaluatePresence(r rule.Presence, content string) schema.Outcome {
	return presenceOutcome(r, r.Pattern.FindAll(content), r.ExpectPresent, r.Severity)
}

func evaluateConditional(r rule.ConditionalPresence, content string) schema.Outcome {
	if !r.Condition.Matches(content) {
		return newOutcome(r, schema.StatusCompliant, []string{notApplicable})
	}
	return presenceOutcome(r, r.Target.FindAll(content), r.ExpectPresent, r.Severity)
}

// presenceOutcome reports every match as a finding, whether or not the rule
// passed, so a reader can see what was (or should not have been) found.
func presenceOutcome(r rule.Rule, matches []string, expect bool, sev rule.Severity) schema.Outcome {
	found := len(matches) > 0
	status := schema.StatusCompliant
	if found != expect {
		status = failureStatus(sev)
	}
	return newOutcome(r, status, matches)
}
