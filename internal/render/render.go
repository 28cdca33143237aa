// Package render produces output from a fully assembled schema.Report.
package render

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dshills/logcheck/internal/schema"
)

// RenderJSON produces a pretty-printed JSON representation of the report.
// The output round-trips through json.Unmarshal back to an equal Report.
func RenderJSON(report *schema.Report) ([]byte, error) {
	if report == nil {
		return nil, errors.New("render: nil report")
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// Hash returns the hex SHA-256 of the report's canonical JSON encoding,
// computed with RunID and Hash cleared so that two runs over the same
// inputs hash identically.
func Hash(report *schema.Report) (string, error) {
	if report == nil {
		return "", errors.New("render: nil report")
	}
	c := *report
	c.RunID = ""
	c.Hash = ""
	b, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("render: hash: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// RenderMarkdown produces a GitHub-flavoured Markdown summary of the report,
// suitable for PR comments or terminal output. Every rule id present in the
// report appears in the output.
func RenderMarkdown(report *schema.Report) string {
	if report == nil {
		return ""
	}
	var sb strings.Builder

	sb.WriteString("## Compliance Report\n\n")
	fmt.Fprintf(&sb, "**Status:** %s  \n", statusLabel(report.Summary.Status))
	fmt.Fprintf(&sb, "**Score:** %d/100  \n", report.Summary.Score)
	fmt.Fprintf(&sb, "**Documents:** %d | **Evaluations:** %d  \n", report.Summary.Documents, report.Summary.Evaluations)
	fmt.Fprintf(&sb, "**Compliant:** %d | **Warning:** %d | **Non-Compliant:** %d\n\n",
		report.Summary.Compliant, report.Summary.Warning, report.Summary.NonCompliant)
	if report.Input.Strict {
		sb.WriteString("_Strict mode: warnings are reported as non-compliant._\n\n")
	}

	for _, fs := range report.FileSets {
		fmt.Fprintf(&sb, "## File Set: %s\n\n", mdEscape(fs.ID))
		for _, doc := range fs.Documents {
			writeDocument(&sb, doc)
		}
	}
	return sb.String()
}

func writeDocument(sb *strings.Builder, doc schema.DocumentResult) {
	fmt.Fprintf(sb, "### %s (%s)\n\n", mdEscape(doc.Path), doc.Role)
	fmt.Fprintf(sb, "- MD5: `%s`\n- SHA-1: `%s`\n- SHA-256: `%s`\n\n",
		doc.Digests.MD5, doc.Digests.SHA1, doc.Digests.SHA256)

	for _, sr := range doc.Standards {
		if sr.AISummary != nil {
			fmt.Fprintf(sb, "#### %s\n\n", mdEscape(sr.StandardName))
			writeAISummary(sb, sr.AISummary)
			continue
		}
		fmt.Fprintf(sb, "#### %s: %s (%d/100)\n\n", mdEscape(sr.StandardName), statusLabel(sr.Status), sr.Score)
		if len(sr.Outcomes) == 0 {
			sb.WriteString("_No rules._\n\n")
			continue
		}
		sb.WriteString("| Rule | Status | Logic | Findings |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, o := range sr.Outcomes {
			fmt.Fprintf(sb, "| %s | %s | %s | %s |\n",
				o.RuleID, statusLabel(o.Status), cell(o.Logic), findingsCell(o))
		}
		sb.WriteString("\n")
	}
}

func writeAISummary(sb *strings.Builder, s *schema.AISummary) {
	sections := []struct {
		title string
		items []string
	}{
		{"Errors", s.Errors},
		{"Warnings", s.Warnings},
		{"Incomplete Transactions", s.IncompleteTransactions},
	}
	for _, sec := range sections {
		fmt.Fprintf(sb, "**%s:**", sec.title)
		if len(sec.items) == 0 {
			sb.WriteString(" none\n\n")
			continue
		}
		sb.WriteString("\n\n")
		for _, it := range sec.items {
			fmt.Fprintf(sb, "- %s\n", mdEscape(it))
		}
		sb.WriteString("\n")
	}
}

func findingsCell(o schema.Outcome) string {
	parts := make([]string, 0, len(o.Findings)+1)
	if o.FindingCount != nil {
		parts = append(parts, fmt.Sprintf("Count: %d", *o.FindingCount))
	}
	for _, f := range o.Findings {
		parts = append(parts, mdEscape(f))
	}
	return strings.Join(parts, "<br>")
}

// statusLabel turns "non-compliant" into "Non-Compliant".
func statusLabel(s schema.Status) string {
	if s == "" {
		return "-"
	}
	return cases.Title(language.English).String(string(s))
}

// cell escapes a multi-line value, keeping line breaks as <br>.
func cell(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = mdEscape(l)
	}
	return strings.Join(lines, "<br>")
}

var mdReplacer = strings.NewReplacer(
	"|", `\|`,
	"\n", " ",
	"\r", "",
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// mdEscape replaces characters that would break Markdown table cells or be
// taken for inline HTML.
func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}
