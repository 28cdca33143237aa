package rule

import (
	"fmt"
	"strings"
)

// Logic renders a short, human-readable description of how r is evaluated.
// Reports show it next to each outcome so a reader can audit the verdict.
func Logic(r Rule) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Type: %s\n", kindOf(r))
	switch v := r.(type) {
	case Presence:
		fmt.Fprintf(&sb, "Pattern: /%s/\n", v.Pattern)
		fmt.Fprintf(&sb, "Condition: Must be %s", presentWord(v.ExpectPresent))
	case ConditionalPresence:
		fmt.Fprintf(&sb, "Condition Pattern: /%s/\n", v.Condition)
		fmt.Fprintf(&sb, "Target Pattern: /%s/\n", v.Target)
		fmt.Fprintf(&sb, "Evaluation: If condition matches, target must be %s", presentWord(v.ExpectPresent))
	case Count:
		fmt.Fprintf(&sb, "Pattern: /%s/\n", v.Pattern)
		fmt.Fprintf(&sb, "Limit: Max %d occurrences", v.MaxOccurrences)
		if v.SumGroup > 0 {
			fmt.Fprintf(&sb, "\nMode: Sum capture group %d", v.SumGroup)
		}
	case Sequence:
		sb.WriteString("Steps:\n")
		for _, s := range v.Steps {
			fmt.Fprintf(&sb, "  - /%s/\n", s)
		}
		fmt.Fprintf(&sb, "Time Limit: %gs between steps\n", v.MaxTimeGap.Seconds())
		fmt.Fprintf(&sb, "Limit: Max %d sequences", v.MaxOccurrences)
	case Completion:
		fmt.Fprintf(&sb, "Peer Progress Pattern: /%s/", v.PeerProgress)
	case Compound:
		fmt.Fprintf(&sb, "Operator: %s\n", v.Operator)
		fmt.Fprintf(&sb, "Dependencies: [%s]", strings.Join(v.DependsOn, ", "))
	case TagTimestamp:
		fmt.Fprintf(&sb, "Start Tag: <%s>\n", v.StartTag)
		fmt.Fprintf(&sb, "End Tag: <%s>", v.EndTag)
	}
	return sb.String()
}

func presentWord(expect bool) string {
	if expect {
		return "present"
	}
	return "absent"
}

// kindOf is nil-safe.
func kindOf(r Rule) Kind {
	if r == nil {
		return "unknown"
	}
	return r.Kind()
}
