package engine

import (
	"fmt"
	"strconv"

	"github.com/dshills/logcheck/internal/rule"
	"github.com/dshills/logcheck/internal/schema"
)

// evaluateCompletion fails on the first progress report where the remote
// peer holds fewer pieces than the total. No report at all is compliant.
func evaluateCompletion(r rule.Completion, content string) schema.Outcome {
	for _, m := range r.PeerProgress.Submatches(content) {
		if len(m) < 3 || m[1] == "" || m[2] == "" {
			continue
		}
		possessed, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		if possessed < total {
			o := newOutcome(r, schema.StatusNonCompliant, []string{
				fmt.Sprintf("Remote peer is not a full seed. It reported possessing %d of %d pieces.", possessed, total),
			})
			o.CompletionDetails = &schema.CompletionDetails{Possessed: possessed, Total: total}
			return o
		}
	}
	return newOutcome(r, schema.StatusCompliant, nil)
}
