// Package schema defines all canonical data types for the logcheck output format.
package schema

// Status is the verdict for one rule, one standard, or a whole run.
type Status string

const (
	StatusCompliant    Status = "compliant"
	StatusWarning      Status = "warning"
	StatusNonCompliant Status = "non-compliant"
)

// CompletionDetails records the peer progress that failed a completion rule.
type CompletionDetails struct {
	Possessed int `json:"possessed"`
	Total     int `json:"total"`
}

// Outcome is the result of evaluating one rule against one document.
type Outcome struct {
	RuleID            string             `json:"rule_id"`
	Kind              string             `json:"kind"`
	Description       string             `json:"description,omitempty"`
	Status            Status             `json:"status"`
	Findings          []string           `json:"findings"`
	FindingCount      *int               `json:"finding_count,omitempty"`
	CompletionDetails *CompletionDetails `json:"completion_details,omitempty"`
	Logic             string             `json:"logic,omitempty"`
}

// AISummary is the result of the open-ended generative analysis.
type AISummary struct {
	Errors                 []string `json:"errors"`
	Warnings               []string `json:"warnings"`
	IncompleteTransactions []string `json:"incompleteTransactions"`
}

// Digests holds the hex-encoded integrity digests of one input file.
type Digests struct {
	MD5    string `json:"md5"`
	SHA1   string `json:"sha1"`
	SHA256 string `json:"sha256"`
}

// Tally counts outcomes by status.
type Tally struct {
	Compliant    int `json:"compliant"`
	Warning      int `json:"warning"`
	NonCompliant int `json:"non_compliant"`
}

// Report is the top-level output document of a batch run.
type Report struct {
	Tool     string          `json:"tool"`
	Version  string          `json:"version"`
	RunID    string          `json:"run_id,omitempty"`
	Input    Input           `json:"input"`
	Summary  Summary         `json:"summary"`
	FileSets []FileSetResult `json:"file_sets"`
	Hash     string          `json:"hash,omitempty"`
}

// Input records the parameters used for this run.
type Input struct {
	Root      string   `json:"root"`
	Standards []string `json:"standards"`
	Strict    bool     `json:"strict"`
	Offline   bool     `json:"offline"`
}

// Summary holds the aggregated verdict across every evaluated document.
type Summary struct {
	Status      Status `json:"status"`
	Score       int    `json:"score"`
	Documents   int    `json:"documents"`
	Evaluations int    `json:"evaluations"`
	Tally
}

// FileSetResult groups the documents of one logical file-set.
type FileSetResult struct {
	ID        string           `json:"id"`
	Documents []DocumentResult `json:"documents"`
}

// DocumentResult holds every standard evaluated against one document.
type DocumentResult struct {
	Path      string           `json:"path"`
	Name      string           `json:"name"`
	Role      string           `json:"role"`
	Digests   Digests          `json:"digests"`
	Standards []StandardResult `json:"standards"`
}

// StandardResult is the outcome of one (document, standard) evaluation.
// Open-ended standards carry an AISummary instead of outcomes and leave
// Status empty.
type StandardResult struct {
	StandardID   string     `json:"standard_id"`
	StandardName string     `json:"standard_name"`
	Status       Status     `json:"status,omitempty"`
	Score        int        `json:"score"`
	Tally        Tally      `json:"tally"`
	Outcomes     []Outcome  `json:"outcomes,omitempty"`
	AISummary    *AISummary `json:"ai_summary,omitempty"`
}
