// Package rule defines the closed set of compliance rule kinds and the
// Standard that orders them. Rules are immutable once built.
package rule

import (
	"time"

	"github.com/dshills/logcheck/internal/pattern"
)

// Kind identifies a rule variant.
type Kind string

const (
	KindPresence            Kind = "presence"
	KindConditionalPresence Kind = "conditional_presence"
	KindCount               Kind = "count"
	KindSequence            Kind = "sequence"
	KindCompletion          Kind = "completion"
	KindCompound            Kind = "compound"
	KindTagTimestamp        Kind = "tag_timestamp"
)

// Severity controls how a failed presence check is reported.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Operator combines the outcomes a compound rule depends on.
type Operator string

const (
	OperatorOR  Operator = "OR"
	OperatorAND Operator = "AND"
)

// Rule is one of the variant types in this package. The unexported method
// closes the set; evaluators dispatch on it with a type switch.
type Rule interface {
	Kind() Kind
	meta() Meta
}

// Meta is shared by every rule kind.
type Meta struct {
	ID          string
	Description string
}

func (m Meta) meta() Meta { return m }

// ID returns the rule's id.
func ID(r Rule) string { return r.meta().ID }

// Description returns the rule's human-readable description.
func Description(r Rule) string { return r.meta().Description }

// Presence asserts that Pattern does, or does not, occur in the document.
type Presence struct {
	Meta
	Pattern       *pattern.Pattern
	ExpectPresent bool
	Severity      Severity
}

// ConditionalPresence applies a presence check on Target only when
// Condition occurs in the document.
type ConditionalPresence struct {
	Meta
	Condition     *pattern.Pattern
	Target        *pattern.Pattern
	ExpectPresent bool
	Severity      Severity
}

// Count limits how often Pattern may occur. When SumGroup > 0 the integer
// values of that capture group are summed instead of counting matches.
type Count struct {
	Meta
	Pattern        *pattern.Pattern
	MaxOccurrences int
	SumGroup       int
}

// Sequence counts ordered occurrences of Steps where consecutive
// timestamped steps are no more than MaxTimeGap apart.
type Sequence struct {
	Meta
	Steps          []*pattern.Pattern
	MaxTimeGap     time.Duration
	MaxOccurrences int
}

// Completion fails on the first peer progress report with possessed < total.
// PeerProgress must capture possessed in group 1 and total in group 2.
type Completion struct {
	Meta
	PeerProgress *pattern.Pattern
}

// Compound combines the outcomes of other, non-compound rules of the same
// standard. Its failures are always errors.
type Compound struct {
	Meta
	DependsOn []string
	Operator  Operator
}

// TagTimestamp reads nanosecond instants from <StartTag> and <EndTag> and
// reports the elapsed time between them.
type TagTimestamp struct {
	Meta
	StartTag string
	EndTag   string
}

func (Presence) Kind() Kind            { return KindPresence }
func (ConditionalPresence) Kind() Kind { return KindConditionalPresence }
func (Count) Kind() Kind               { return KindCount }
func (Sequence) Kind() Kind            { return KindSequence }
func (Completion) Kind() Kind          { return KindCompletion }
func (Compound) Kind() Kind            { return KindCompound }
func (TagTimestamp) Kind() Kind        { return KindTagTimestamp }

// Standard is a named, ordered set of rules applied to one kind of document.
type Standard struct {
	ID          string
	Name        string
	Description string
	// AppliesTo is a CEL expression over the candidate document deciding
	// whether this standard runs against it. Empty means every document.
	AppliesTo string
	// OpenEnded marks the generative-summary standard; it has no rules.
	OpenEnded bool
	Rules     []Rule
}

// Rule returns the rule with the given id.
func (s Standard) Rule(id string) (Rule, bool) {
	for _, r := range s.Rules {
		if ID(r) == id {
			return r, true
		}
	}
	return nil, false
}
