package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dshills/logcheck/internal/schema"
)

func sampleReport() *schema.Report {
	count := 2
	return &schema.Report{
		Tool:    "logcheck",
		Version: "0.1.0",
		RunID:   "run-1",
		Input: schema.Input{
			Root:      "testdata",
			Standards: []string{"general", "ai"},
		},
		Summary: schema.Summary{
			Status:      schema.StatusWarning,
			Score:       93,
			Documents:   1,
			Evaluations: 2,
			Tally:       schema.Tally{Compliant: 1, Warning: 1},
		},
		FileSets: []schema.FileSetResult{{
			ID: "case-a",
			Documents: []schema.DocumentResult{{
				Path:    "case-a/details.txt",
				Name:    "details.txt",
				Role:    "primary",
				Digests: schema.Digests{MD5: "md5hex", SHA1: "sha1hex", SHA256: "sha256hex"},
				Standards: []schema.StandardResult{
					{
						StandardID:   "general",
						StandardName: "General Log Health",
						Status:       schema.StatusWarning,
						Score:        93,
						Tally:        schema.Tally{Compliant: 1, Warning: 1},
						Outcomes: []schema.Outcome{
							{
								RuleID:   "no-errors",
								Kind:     "presence",
								Status:   schema.StatusCompliant,
								Findings: []string{},
								Logic:    "Type: presence\nPattern: /ERROR/",
							},
							{
								RuleID:       "retry-limit",
								Kind:         "count",
								Status:       schema.StatusWarning,
								Findings:     []string{"retry 1|a", "retry 2"},
								FindingCount: &count,
							},
						},
					},
					{
						StandardID:   "ai",
						StandardName: "AI Analysis",
						AISummary: &schema.AISummary{
							Errors:                 []string{"disk full"},
							Warnings:               []string{},
							IncompleteTransactions: []string{},
						},
					},
				},
			}},
		}},
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	report := sampleReport()
	b, err := RenderJSON(report)
	if err != nil {
		t.Fatalf("RenderJSON error: %v", err)
	}
	var got schema.Report
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if got.Summary != report.Summary {
		t.Errorf("summary mismatch: got %+v, want %+v", got.Summary, report.Summary)
	}
	if len(got.FileSets) != 1 || len(got.FileSets[0].Documents[0].Standards) != 2 {
		t.Fatalf("structure lost in round trip: %+v", got.FileSets)
	}
	o := got.FileSets[0].Documents[0].Standards[0].Outcomes[1]
	if o.FindingCount == nil || *o.FindingCount != 2 {
		t.Errorf("finding_count lost: %+v", o)
	}
	if got.FileSets[0].Documents[0].Standards[1].AISummary == nil {
		t.Error("ai_summary lost in round trip")
	}
}

func TestRenderJSON_PrettyPrinted(t *testing.T) {
	b, err := RenderJSON(sampleReport())
	if err != nil {
		t.Fatalf("RenderJSON error: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "\n") || !strings.Contains(s, "  ") {
		t.Error("expected indented, multi-line JSON output")
	}
}

func TestHash_IgnoresRunID(t *testing.T) {
	a := sampleReport()
	b := sampleReport()
	b.RunID = "run-2"
	b.Hash = "stale"

	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	hb, _ := Hash(b)
	if ha != hb {
		t.Errorf("hash depends on run id: %s vs %s", ha, hb)
	}
	if len(ha) != 64 {
		t.Errorf("hash length = %d, want 64", len(ha))
	}
	if b.RunID != "run-2" {
		t.Error("Hash modified its input")
	}

	b.Summary.Score = 80
	hc, _ := Hash(b)
	if hc == ha {
		t.Error("hash did not change with report content")
	}
}

func TestRenderMarkdown_ContainsAllRuleIDs(t *testing.T) {
	md := RenderMarkdown(sampleReport())
	for _, id := range []string{"no-errors", "retry-limit"} {
		if !strings.Contains(md, id) {
			t.Errorf("markdown output missing rule %q", id)
		}
	}
}

func TestRenderMarkdown_Summary(t *testing.T) {
	md := RenderMarkdown(sampleReport())
	if !strings.Contains(md, "**Status:** Warning") {
		t.Error("markdown missing titled status")
	}
	if !strings.Contains(md, "93/100") {
		t.Error("markdown missing score")
	}
	if !strings.Contains(md, "## File Set: case-a") {
		t.Error("markdown missing file set heading")
	}
}

func TestRenderMarkdown_DocumentDetails(t *testing.T) {
	md := RenderMarkdown(sampleReport())
	for _, want := range []string{
		"`sha256hex`",
		"Type: presence<br>Pattern: /ERROR/",
		`retry 1\|a<br>retry 2`,
		"Count: 2",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_EscapesTagNames(t *testing.T) {
	r := sampleReport()
	sr := &r.FileSets[0].Documents[0].Standards[0]
	sr.Outcomes = append(sr.Outcomes, schema.Outcome{
		RuleID:   "transfer-time",
		Kind:     "tag_timestamp",
		Status:   schema.StatusNonCompliant,
		Findings: []string{"Required tag <ended> not found or is empty."},
	})
	md := RenderMarkdown(r)
	if !strings.Contains(md, "Required tag &lt;ended&gt; not found or is empty.") {
		t.Error("markdown missing escaped tag name")
	}
	if strings.Contains(md, "<ended>") {
		t.Error("markdown contains raw tag name")
	}
}

func TestRenderMarkdown_AISummary(t *testing.T) {
	md := RenderMarkdown(sampleReport())
	if !strings.Contains(md, "#### AI Analysis") {
		t.Error("markdown missing AI heading")
	}
	if !strings.Contains(md, "- disk full") {
		t.Error("markdown missing AI error entry")
	}
	if !strings.Contains(md, "**Warnings:** none") {
		t.Error("markdown missing empty warnings marker")
	}
}

func TestRenderMarkdown_EmptyReport(t *testing.T) {
	report := &schema.Report{Summary: schema.Summary{Status: schema.StatusCompliant, Score: 100}}
	md := RenderMarkdown(report)
	if !strings.Contains(md, "Compliant") {
		t.Error("markdown missing compliant status")
	}
	if strings.Contains(md, "File Set") {
		t.Error("markdown should not contain file sets for empty report")
	}
}

func TestRenderJSON_NilReport(t *testing.T) {
	if _, err := RenderJSON(nil); err == nil {
		t.Error("expected error for nil report, got nil")
	}
	if _, err := Hash(nil); err == nil {
		t.Error("expected error for nil report hash, got nil")
	}
}

func TestRenderMarkdown_NilReport(t *testing.T) {
	if got := RenderMarkdown(nil); got != "" {
		t.Errorf("expected empty string for nil report, got %q", got)
	}
}

func TestMdEscape(t *testing.T) {
	cases := []struct{ in, want string }{
		{"no pipes", "no pipes"},
		{"a|b", `a\|b`},
		{"a|b|c", `a\|b\|c`},
		{"line\nbreak", "line break"},
		{"Required tag <started> not found", "Required tag &lt;started&gt; not found"},
		{"a & b", "a &amp; b"},
		{"", ""},
	}
	for _, c := range cases {
		got := mdEscape(c.in)
		if got != c.want {
			t.Errorf("mdEscape(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
