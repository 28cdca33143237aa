package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/logcheck/internal/pattern"
	"github.com/dshills/logcheck/internal/rule"
	"github.com/dshills/logcheck/internal/schema"
)

// ChurnRuleID names the count rule that is cross-checked against the
// auxiliary network-status dump when one is supplied.
const ChurnRuleID = "rapid-peer-churn"

var (
	establishedRe = pattern.MustCompile(`(?im)^ *tcp.*ESTABLISHED`)
	closingRe     = pattern.MustCompile(`(?im)^ *tcp.*(?:TIME_WAIT|CLOSE_WAIT|FIN_WAIT_1|FIN_WAIT_2)`)
)

// Thresholds for the churn cross-check.
const (
	highChurnEvents  = 100
	unstableMinConns = 20
	sparseEstablish  = 5
)

func evaluateCount(r rule.Count, doc Document) schema.Outcome {
	matches := r.Pattern.FindAll(doc.Content)

	count := len(matches)
	if r.SumGroup > 0 {
		count = 0
		for _, g := range r.Pattern.Captures(doc.Content, r.SumGroup) {
			n, err := strconv.Atoi(strings.TrimSpace(g))
			if err != nil {
				continue
			}
			count += n
		}
	}

	status := schema.StatusCompliant
	if count > r.MaxOccurrences {
		status = schema.StatusNonCompliant
	}
	o := newOutcome(r, status, matches)
	o.FindingCount = &count

	if r.ID == ChurnRuleID && doc.Auxiliary != "" {
		if msg, bad := churnVerdict(count, doc.Auxiliary); bad {
			o.Status = schema.StatusNonCompliant
			o.Findings = []string{msg}
		}
	}
	return o
}

// churnVerdict correlates the number of connection events in the log with
// the socket states in a netstat snapshot. It returns a message and true when
// the combination indicates connection churn.
func churnVerdict(events int, netstat string) (string, bool) {
	established := len(establishedRe.FindAll(netstat))
	closing := len(closingRe.FindAll(netstat))
	total := established + closing

	highLogChurn := events > highChurnEvents
	unhealthy := closing > established && total > unstableMinConns

	switch {
	case highLogChurn && unhealthy:
		return fmt.Sprintf("Critical churn detected. The log shows %d connection events, and the netstat data reveals an unstable network state with %d connections closing and only %d fully established. This strongly indicates rapid, failed connection cycling.", events, closing, established), true
	case unhealthy:
		return fmt.Sprintf("Unstable network state detected. The netstat data shows a high number of closing connections (%d) compared to established ones (%d). This is a strong indicator of connection churn.", closing, established), true
	case highLogChurn && established < sparseEstablish && closing == 0:
		return fmt.Sprintf("High peer churn detected. The log shows %d connection events, while the netstat snapshot shows only %d established connections. This suggests highly unstable or brief sessions.", events, established), true
	}
	return "", false
}
