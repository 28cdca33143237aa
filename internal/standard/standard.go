// Package standard loads compliance standards from YAML definitions and
// validates them. Every check that can fail does so here, before any
// document is evaluated.
package standard

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/logcheck/internal/pattern"
	"github.com/dshills/logcheck/internal/rule"
)

// File is the top-level shape of a standards document.
type File struct {
	Standards []Definition `yaml:"standards"`
}

// Definition is the declarative form of a rule.Standard.
type Definition struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	AppliesTo   string           `yaml:"applies_to"`
	OpenEnded   bool             `yaml:"open_ended"`
	Rules       []RuleDefinition `yaml:"rules"`
}

// RuleDefinition is the declarative form of one rule. Which fields apply
// depends on Kind.
type RuleDefinition struct {
	Kind        string `yaml:"kind"`
	ID          string `yaml:"id"`
	Description string `yaml:"description"`

	// presence, count
	Pattern string `yaml:"pattern"`
	// presence, conditional_presence; defaults to true
	ExpectPresent *bool  `yaml:"expect_present"`
	Severity      string `yaml:"severity"`

	ConditionPattern string `yaml:"condition_pattern"`
	TargetPattern    string `yaml:"target_pattern"`

	// count, sequence
	MaxOccurrences  int `yaml:"max_occurrences"`
	SumCaptureGroup int `yaml:"sum_capture_group"`

	Steps             []string `yaml:"steps"`
	MaxTimeGapSeconds float64  `yaml:"max_time_gap_seconds"`

	PeerProgressPattern string `yaml:"peer_progress_pattern"`

	DependsOn []string `yaml:"depends_on"`
	Operator  string   `yaml:"operator"`

	StartTag string `yaml:"start_tag"`
	EndTag   string `yaml:"end_tag"`
}

// Decode reads a standards document. Unknown keys are rejected so a typo in
// a field name does not silently disable a check.
func Decode(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("standard: decode: %w", err)
	}
	return f.Standards, nil
}

// Parse decodes and builds every standard in data.
func Parse(data []byte) ([]rule.Standard, error) {
	defs, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out := make([]rule.Standard, 0, len(defs))
	for _, d := range defs {
		s, err := Build(d)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Build validates def and compiles it into a rule.Standard. All problems
// found in the rules are reported together.
func Build(def Definition) (rule.Standard, error) {
	if def.ID == "" {
		return rule.Standard{}, errors.New("standard: definition has no id")
	}
	s := rule.Standard{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		AppliesTo:   def.AppliesTo,
		OpenEnded:   def.OpenEnded,
	}
	if s.Name == "" {
		s.Name = def.ID
	}
	if def.OpenEnded && len(def.Rules) > 0 {
		return rule.Standard{}, fmt.Errorf("standard: %s: open-ended standard cannot declare rules", def.ID)
	}

	var errs []error
	kinds := make(map[string]rule.Kind, len(def.Rules))
	for i, rd := range def.Rules {
		if rd.ID == "" {
			errs = append(errs, fmt.Errorf("rule #%d: missing id", i+1))
			continue
		}
		if _, dup := kinds[rd.ID]; dup {
			errs = append(errs, fmt.Errorf("rule %s: duplicate id", rd.ID))
			continue
		}
		kinds[rd.ID] = rule.Kind(rd.Kind)
	}

	for _, rd := range def.Rules {
		if rd.ID == "" {
			continue
		}
		r, err := buildRule(rd, kinds)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rd.ID, err))
			continue
		}
		s.Rules = append(s.Rules, r)
	}
	if len(errs) > 0 {
		return rule.Standard{}, fmt.Errorf("standard: %s: %w", def.ID, errors.Join(errs...))
	}
	return s, nil
}

func buildRule(rd RuleDefinition, kinds map[string]rule.Kind) (rule.Rule, error) {
	meta := rule.Meta{ID: rd.ID, Description: rd.Description}
	switch rule.Kind(rd.Kind) {
	case rule.KindPresence:
		p, err := compile("pattern", rd.Pattern)
		if err != nil {
			return nil, err
		}
		sev, err := parseSeverity(rd.Severity)
		if err != nil {
			return nil, err
		}
		return rule.Presence{Meta: meta, Pattern: p, ExpectPresent: expect(rd.ExpectPresent), Severity: sev}, nil

	case rule.KindConditionalPresence:
		cond, err := compile("condition_pattern", rd.ConditionPattern)
		if err != nil {
			return nil, err
		}
		target, err := compile("target_pattern", rd.TargetPattern)
		if err != nil {
			return nil, err
		}
		sev, err := parseSeverity(rd.Severity)
		if err != nil {
			return nil, err
		}
		return rule.ConditionalPresence{Meta: meta, Condition: cond, Target: target, ExpectPresent: expect(rd.ExpectPresent), Severity: sev}, nil

	case rule.KindCount:
		p, err := compile("pattern", rd.Pattern)
		if err != nil {
			return nil, err
		}
		if rd.MaxOccurrences < 0 {
			return nil, errors.New("max_occurrences must not be negative")
		}
		if rd.SumCaptureGroup < 0 || rd.SumCaptureGroup > p.NumGroups() {
			return nil, fmt.Errorf("sum_capture_group %d out of range (pattern has %d groups)", rd.SumCaptureGroup, p.NumGroups())
		}
		return rule.Count{Meta: meta, Pattern: p, MaxOccurrences: rd.MaxOccurrences, SumGroup: rd.SumCaptureGroup}, nil

	case rule.KindSequence:
		if len(rd.Steps) == 0 {
			return nil, errors.New("sequence has no steps")
		}
		if rd.MaxTimeGapSeconds < 0 || rd.MaxOccurrences < 0 {
			return nil, errors.New("max_time_gap_seconds and max_occurrences must not be negative")
		}
		steps := make([]*pattern.Pattern, 0, len(rd.Steps))
		for i, expr := range rd.Steps {
			p, err := compile(fmt.Sprintf("steps[%d]", i), expr)
			if err != nil {
				return nil, err
			}
			steps = append(steps, p)
		}
		return rule.Sequence{
			Meta:           meta,
			Steps:          steps,
			MaxTimeGap:     time.Duration(rd.MaxTimeGapSeconds * float64(time.Second)),
			MaxOccurrences: rd.MaxOccurrences,
		}, nil

	case rule.KindCompletion:
		p, err := compile("peer_progress_pattern", rd.PeerProgressPattern)
		if err != nil {
			return nil, err
		}
		if p.NumGroups() < 2 {
			return nil, fmt.Errorf("peer_progress_pattern needs two capture groups (possessed, total), has %d", p.NumGroups())
		}
		return rule.Completion{Meta: meta, PeerProgress: p}, nil

	case rule.KindCompound:
		op := rule.Operator(rd.Operator)
		switch op {
		case "":
			op = rule.OperatorOR
		case rule.OperatorOR, rule.OperatorAND:
		default:
			return nil, fmt.Errorf("unknown operator %q (available: OR, AND)", rd.Operator)
		}
		if len(rd.DependsOn) == 0 {
			return nil, errors.New("compound rule has no dependencies")
		}
		for _, dep := range rd.DependsOn {
			k, ok := kinds[dep]
			switch {
			case !ok:
				return nil, fmt.Errorf("depends on unknown rule %q", dep)
			case k == rule.KindCompound:
				return nil, fmt.Errorf("depends on compound rule %q; compound rules may only combine non-compound rules", dep)
			}
		}
		deps := append([]string(nil), rd.DependsOn...)
		return rule.Compound{Meta: meta, DependsOn: deps, Operator: op}, nil

	case rule.KindTagTimestamp:
		if rd.StartTag == "" || rd.EndTag == "" {
			return nil, errors.New("start_tag and end_tag are required")
		}
		return rule.TagTimestamp{Meta: meta, StartTag: rd.StartTag, EndTag: rd.EndTag}, nil

	default:
		return nil, fmt.Errorf("unknown kind %q", rd.Kind)
	}
}

func compile(field, expr string) (*pattern.Pattern, error) {
	if expr == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	p, err := pattern.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return p, nil
}

func parseSeverity(s string) (rule.Severity, error) {
	switch rule.Severity(s) {
	case "", rule.SeverityError:
		return rule.SeverityError, nil
	case rule.SeverityWarning:
		return rule.SeverityWarning, nil
	}
	return "", fmt.Errorf("unknown severity %q (available: warning, error)", s)
}

func expect(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}
