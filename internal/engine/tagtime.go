package engine

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dshills/logcheck/internal/pattern"
	"github.com/dshills/logcheck/internal/rule"
	"github.com/dshills/logcheck/internal/schema"
)

const instantLayout = "2006-01-02 15:04:05.000 UTC"

var (
	nanosPerMilli  = big.NewInt(1_000_000)
	nanosPerSecond = big.NewInt(1_000_000_000)
)

// evaluateTagTimestamp reads two nanosecond instants from XML-like tags and
// reports both instants and the elapsed time between them. Values are
// arbitrary-precision; the displayed instants are truncated to milliseconds.
func evaluateTagTimestamp(r rule.TagTimestamp, content string) schema.Outcome {
	var findings []string
	read := func(tag string) *big.Int {
		raw, ok := pattern.TagValue(content, tag)
		if !ok {
			findings = append(findings, fmt.Sprintf("Required tag <%s> not found or is empty.", tag))
			return nil
		}
		n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
		if !ok {
			findings = append(findings, fmt.Sprintf("Could not parse value from tag: <%s>", tag))
			return nil
		}
		return n
	}
	start := read(r.StartTag)
	end := read(r.EndTag)
	if len(findings) > 0 {
		return newOutcome(r, schema.StatusNonCompliant, findings)
	}

	elapsed := new(big.Rat).SetFrac(new(big.Int).Sub(end, start), nanosPerSecond)
	return newOutcome(r, schema.StatusCompliant, []string{
		"Start time: " + formatInstant(start),
		"End time: " + formatInstant(end),
		fmt.Sprintf("Calculated duration: %s seconds", elapsed.FloatString(3)),
	})
}

// formatInstant renders n as a UTC time truncated to milliseconds followed by
// the raw value. Instants beyond the int64 millisecond range keep the raw
// value only.
func formatInstant(n *big.Int) string {
	ms := new(big.Int).Quo(n, nanosPerMilli)
	if !ms.IsInt64() {
		return fmt.Sprintf("out of range (%s)", n.String())
	}
	return fmt.Sprintf("%s (%s)", time.UnixMilli(ms.Int64()).UTC().Format(instantLayout), n.String())
}
