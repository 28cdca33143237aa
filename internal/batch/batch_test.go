package batch

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dshills/logcheck/internal/engine"
	"github.com/dshills/logcheck/internal/ingest"
	"github.com/dshills/logcheck/internal/llm"
	"github.com/dshills/logcheck/internal/logger"
	"github.com/dshills/logcheck/internal/pattern"
	"github.com/dshills/logcheck/internal/rule"
	"github.com/dshills/logcheck/internal/schema"
	"github.com/dshills/logcheck/internal/standard"
)

type countingProvider struct {
	calls atomic.Int32
}

func (p *countingProvider) Complete(_ context.Context, _, _ string, _ int, _ float64) (string, error) {
	p.calls.Add(1)
	return `{"errors":["ERROR: tracker unreachable"],"warnings":[],"incompleteTransactions":[]}`, nil
}

func installProvider(t *testing.T, p llm.Provider) {
	t.Helper()
	orig := llm.NewProvider
	llm.NewProvider = func(_, _ string) (llm.Provider, error) { return p, nil }
	t.Cleanup(func() { llm.NewProvider = orig })
}

func fixtureSets(t *testing.T) []ingest.FileSet {
	t.Helper()
	sets, err := ingest.Walk("../../testdata")
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return sets
}

func newRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	opts.Logger = logger.Discard()
	r, err := New(standard.Builtin().List(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// find returns the result of standard id on the document at path.
func find(t *testing.T, rep *schema.Report, path, id string) schema.StandardResult {
	t.Helper()
	for _, fs := range rep.FileSets {
		for _, d := range fs.Documents {
			if d.Path != path {
				continue
			}
			for _, sr := range d.Standards {
				if sr.StandardID == id {
					return sr
				}
			}
		}
	}
	t.Fatalf("no %s result for %s", id, path)
	return schema.StandardResult{}
}

func TestRun_Fixtures(t *testing.T) {
	r := newRunner(t, Options{Offline: true})
	rep, err := r.Run(context.Background(), "testdata", fixtureSets(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rep.FileSets) != 2 || rep.FileSets[0].ID != "clean" || rep.FileSets[1].ID != "failing/peer-b" {
		t.Fatalf("file sets = %+v", rep.FileSets)
	}
	// clean: primary (general, bittorrent, security, ai) + report (xml-tdr);
	// failing: primary only.
	if rep.Summary.Documents != 3 || rep.Summary.Evaluations != 9 {
		t.Errorf("documents/evaluations = %d/%d, want 3/9", rep.Summary.Documents, rep.Summary.Evaluations)
	}

	clean := rep.FileSets[0].Documents
	if clean[0].Role != "primary" || clean[1].Role != "report" {
		t.Errorf("document order = %s, %s", clean[0].Role, clean[1].Role)
	}
	var ids []string
	for _, sr := range clean[0].Standards {
		ids = append(ids, sr.StandardID)
	}
	if strings.Join(ids, ",") != "general,bittorrent,security,ai" {
		t.Errorf("primary standards = %v", ids)
	}

	if sr := find(t, rep, "clean/details.txt", "general"); sr.Status != schema.StatusCompliant {
		t.Errorf("clean general = %s: %+v", sr.Status, sr.Outcomes)
	}
	if sr := find(t, rep, "clean/details.txt", "bittorrent"); sr.Status != schema.StatusWarning {
		t.Errorf("clean bittorrent = %s", sr.Status)
	}
	if sr := find(t, rep, "clean/downloadstatus.xml", "xml-tdr"); sr.Status != schema.StatusCompliant {
		t.Errorf("clean xml-tdr = %s: %+v", sr.Status, sr.Outcomes)
	}
	if sr := find(t, rep, "failing/peer-b/details.txt", "general"); sr.Status != schema.StatusNonCompliant {
		t.Errorf("failing general = %s", sr.Status)
	}
	if rep.Summary.Status != schema.StatusNonCompliant {
		t.Errorf("summary status = %s", rep.Summary.Status)
	}

	ai := find(t, rep, "clean/details.txt", "ai")
	if ai.AISummary == nil || len(ai.AISummary.Warnings) != 1 || ai.AISummary.Warnings[0] != OfflineNotice {
		t.Errorf("offline ai summary = %+v", ai.AISummary)
	}
	if ai.Status != "" {
		t.Errorf("open-ended status = %q, want empty", ai.Status)
	}

	if rep.RunID == "" || len(rep.Hash) != 64 {
		t.Errorf("run id %q hash %q", rep.RunID, rep.Hash)
	}
	if o := find(t, rep, "clean/details.txt", "general").Outcomes[0]; !strings.HasPrefix(o.Logic, "Type: presence") {
		t.Errorf("logic = %q", o.Logic)
	}
}

func TestRun_DeterministicHash(t *testing.T) {
	r := newRunner(t, Options{Offline: true, Workers: 3})
	a, err := r.Run(context.Background(), "testdata", fixtureSets(t))
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Run(context.Background(), "testdata", fixtureSets(t))
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash != b.Hash {
		t.Errorf("hashes differ across runs: %s vs %s", a.Hash, b.Hash)
	}
	if a.RunID == b.RunID {
		t.Error("run ids should be unique")
	}
}

func TestRun_Strict(t *testing.T) {
	r := newRunner(t, Options{Offline: true, Strict: true})
	rep, err := r.Run(context.Background(), "testdata", fixtureSets(t))
	if err != nil {
		t.Fatal(err)
	}
	if sr := find(t, rep, "clean/details.txt", "bittorrent"); sr.Status != schema.StatusNonCompliant {
		t.Errorf("strict bittorrent = %s", sr.Status)
	}
	if rep.Summary.Warning != 0 {
		t.Errorf("strict run still has %d warnings", rep.Summary.Warning)
	}
}

func TestRun_OnlineCallsProviderOncePerPrimary(t *testing.T) {
	p := &countingProvider{}
	installProvider(t, p)

	r := newRunner(t, Options{})
	rep, err := r.Run(context.Background(), "testdata", fixtureSets(t))
	if err != nil {
		t.Fatal(err)
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
	ai := find(t, rep, "failing/peer-b/details.txt", "ai")
	if ai.AISummary == nil || len(ai.AISummary.Errors) != 1 {
		t.Errorf("ai summary = %+v", ai.AISummary)
	}
}

func TestRun_OpenEndedStandardsShareOneCall(t *testing.T) {
	p := &countingProvider{}
	installProvider(t, p)

	extra := rule.Standard{ID: "ai-extra", Name: "Second AI Pass", OpenEnded: true, AppliesTo: `file.role == "primary"`}
	r, err := New(append(standard.Builtin().List(), extra), Options{Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep, err := r.Run(context.Background(), "testdata", fixtureSets(t))
	if err != nil {
		t.Fatal(err)
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
	for _, id := range []string{"ai", "ai-extra"} {
		sr := find(t, rep, "failing/peer-b/details.txt", id)
		if sr.AISummary == nil || len(sr.AISummary.Errors) != 1 {
			t.Errorf("%s summary = %+v", id, sr.AISummary)
		}
	}
}

func TestRun_AuxiliaryOnlyForPrimary(t *testing.T) {
	churn := rule.Count{
		Meta:           rule.Meta{ID: engine.ChurnRuleID},
		Pattern:        pattern.MustCompile(`peer session`),
		MaxOccurrences: 100,
	}
	std := rule.Standard{ID: "churn", Name: "churn", Rules: []rule.Rule{churn}}
	r, err := New([]rule.Standard{std}, Options{Logger: logger.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	// 0 established, 30 closing: unstable regardless of the log.
	aux := strings.Repeat("tcp 0 0 a b TIME_WAIT\n", 30)
	set := ingest.FileSet{
		ID:        "x",
		Primary:   &ingest.File{Name: "details.txt", Path: "x/details.txt", Role: ingest.RolePrimary, Content: "peer session"},
		Report:    &ingest.File{Name: "downloadstatus.xml", Path: "x/downloadstatus.xml", Role: ingest.RoleReport, Content: "peer session"},
		Auxiliary: &ingest.File{Name: "netstat.txt", Role: ingest.RoleAuxiliary, Content: aux},
	}
	rep, err := r.Run(context.Background(), "x", []ingest.FileSet{set})
	if err != nil {
		t.Fatal(err)
	}
	if sr := find(t, rep, "x/details.txt", "churn"); sr.Status != schema.StatusNonCompliant {
		t.Errorf("primary with netstat = %s", sr.Status)
	}
	if sr := find(t, rep, "x/downloadstatus.xml", "churn"); sr.Status != schema.StatusCompliant {
		t.Errorf("report without netstat = %s", sr.Status)
	}
}

func TestNew_InvalidAppliesTo(t *testing.T) {
	cases := []string{
		`file.role ==`,
		`file.role`,
		`missing.var == "x"`,
	}
	for _, expr := range cases {
		std := rule.Standard{ID: "bad", AppliesTo: expr}
		if _, err := New([]rule.Standard{std}, Options{}); err == nil {
			t.Errorf("New accepted applies_to %q", expr)
		}
	}
}

func TestNew_AppliesToBySet(t *testing.T) {
	std := rule.Standard{ID: "only-clean", Name: "x", AppliesTo: `file.set == "clean" && file.name.endsWith(".txt")`}
	r := newRunnerWith(t, std)
	rep, err := r.Run(context.Background(), "testdata", fixtureSets(t))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Summary.Evaluations != 1 {
		t.Errorf("evaluations = %d, want 1", rep.Summary.Evaluations)
	}
}

func newRunnerWith(t *testing.T, stds ...rule.Standard) *Runner {
	t.Helper()
	r, err := New(stds, Options{Logger: logger.Discard(), Offline: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}
