// Package batch runs every applicable standard against every document of a
// set of file-sets and assembles the results into one report.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/logcheck/internal/engine"
	"github.com/dshills/logcheck/internal/ingest"
	"github.com/dshills/logcheck/internal/llm"
	"github.com/dshills/logcheck/internal/logger"
	"github.com/dshills/logcheck/internal/render"
	"github.com/dshills/logcheck/internal/rule"
	"github.com/dshills/logcheck/internal/schema"
	"github.com/dshills/logcheck/internal/verdict"
)

// Tool and Version identify the producer in every report.
const Tool = "logcheck"

var Version = "0.1.0"

// OfflineNotice is the single warning recorded for an open-ended standard
// when generative analysis is disabled.
const OfflineNotice = "AI analysis skipped: offline mode is enabled."

// celCostLimit bounds the work a single applies_to expression may do.
const celCostLimit = 100_000

// Options configures a Runner.
type Options struct {
	// Strict escalates warnings to non-compliant.
	Strict bool
	// Offline skips generative analysis for open-ended standards.
	Offline bool
	// Workers bounds concurrent jobs; zero means GOMAXPROCS.
	Workers int
	LLM     llm.Options
	Logger  *slog.Logger
}

type selector struct {
	std  rule.Standard
	prog cel.Program // nil applies to every document
}

// Runner evaluates a fixed list of standards. It is safe for concurrent use.
type Runner struct {
	selectors []selector
	opts      Options
	log       *slog.Logger
}

// New compiles each standard's applies_to expression. The expression sees a
// single variable, file, a map with keys name, path, role and set.
func New(stds []rule.Standard, opts Options) (*Runner, error) {
	env, err := cel.NewEnv(cel.Variable("file", cel.MapType(cel.StringType, cel.StringType)))
	if err != nil {
		return nil, fmt.Errorf("batch: cel environment: %w", err)
	}
	r := &Runner{opts: opts, log: logger.OrDefault(opts.Logger)}
	if r.opts.Workers <= 0 {
		r.opts.Workers = runtime.GOMAXPROCS(0)
	}
	r.opts.LLM.Logger = r.log
	for _, s := range stds {
		sel := selector{std: s}
		if s.AppliesTo != "" {
			prog, err := compileSelector(env, s.AppliesTo)
			if err != nil {
				return nil, fmt.Errorf("batch: standard %s: applies_to: %w", s.ID, err)
			}
			sel.prog = prog
		}
		r.selectors = append(r.selectors, sel)
	}
	return r, nil
}

func compileSelector(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must be boolean, got %s", ast.OutputType())
	}
	return env.Program(ast, cel.CostLimit(celCostLimit))
}

// Standards returns the ids of the configured standards in order.
func (r *Runner) Standards() []string {
	ids := make([]string, len(r.selectors))
	for i, s := range r.selectors {
		ids[i] = s.std.ID
	}
	return ids
}

// applies reports whether sel runs against f. Evaluation errors are logged
// and treated as not applicable.
func (r *Runner) applies(sel selector, setID string, f *ingest.File) bool {
	if sel.prog == nil {
		return true
	}
	vars := map[string]any{"file": map[string]string{
		"name": f.Name,
		"path": f.Path,
		"role": string(f.Role),
		"set":  setID,
	}}
	out, _, err := sel.prog.Eval(vars)
	if err != nil {
		r.log.Warn("applies_to evaluation failed", "standard", sel.std.ID, "path", f.Path, "error", err)
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

type job struct {
	std  rule.Standard
	doc  engine.Document
	path string
	slot *schema.StandardResult
	memo *summaryMemo
}

// summaryMemo holds the generative summary of one document so that several
// open-ended standards share a single call.
type summaryMemo struct {
	once sync.Once
	s    schema.AISummary
}

func (m *summaryMemo) get(fn func() schema.AISummary) schema.AISummary {
	m.once.Do(func() { m.s = fn() })
	return m.s
}

// Run evaluates sets and returns the assembled report. Results are ordered
// by file-set, then document (primary before report), then standard in the
// order given to New, regardless of completion order.
func (r *Runner) Run(ctx context.Context, root string, sets []ingest.FileSet) (*schema.Report, error) {
	report := &schema.Report{
		Tool:    Tool,
		Version: Version,
		Input: schema.Input{
			Root:      root,
			Standards: r.Standards(),
			Strict:    r.opts.Strict,
			Offline:   r.opts.Offline,
		},
		FileSets: make([]schema.FileSetResult, len(sets)),
	}

	var jobs []job
	for i, set := range sets {
		files := set.Documents()
		fsr := &report.FileSets[i]
		fsr.ID = set.ID
		fsr.Documents = make([]schema.DocumentResult, len(files))

		for j, f := range files {
			var chosen []rule.Standard
			for _, sel := range r.selectors {
				if r.applies(sel, set.ID, f) {
					chosen = append(chosen, sel.std)
				}
			}
			dr := &fsr.Documents[j]
			*dr = schema.DocumentResult{
				Path:      f.Path,
				Name:      f.Name,
				Role:      string(f.Role),
				Digests:   f.Digests,
				Standards: make([]schema.StandardResult, len(chosen)),
			}
			doc := engine.Document{Content: f.Content}
			if f.Role == ingest.RolePrimary && set.Auxiliary != nil {
				doc.Auxiliary = set.Auxiliary.Content
			}
			memo := &summaryMemo{}
			for k, std := range chosen {
				jobs = append(jobs, job{std: std, doc: doc, path: f.Path, slot: &dr.Standards[k], memo: memo})
			}
		}
	}

	r.log.Info("batch started", "file_sets", len(sets), "jobs", len(jobs), "workers", r.opts.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			*j.slot = r.evaluate(gctx, j.std, j.doc, j.memo)
			logger.Trace(r.log, "job done", "path", j.path, "standard", j.std.ID, "status", j.slot.Status)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}

	verdict.Summarize(report)
	hash, err := render.Hash(report)
	if err != nil {
		return nil, err
	}
	report.Hash = hash
	report.RunID = uuid.NewString()

	r.log.Info("batch finished",
		"run_id", report.RunID,
		"status", report.Summary.Status,
		"score", report.Summary.Score,
		"documents", report.Summary.Documents)
	return report, nil
}

// Evaluate runs one standard against one document. Open-ended standards
// produce an AI summary; all others produce outcomes with verdict fields
// filled in.
func (r *Runner) Evaluate(ctx context.Context, std rule.Standard, doc engine.Document) schema.StandardResult {
	return r.evaluate(ctx, std, doc, &summaryMemo{})
}

func (r *Runner) evaluate(ctx context.Context, std rule.Standard, doc engine.Document, memo *summaryMemo) schema.StandardResult {
	res := schema.StandardResult{StandardID: std.ID, StandardName: std.Name}
	if std.OpenEnded {
		s := memo.get(func() schema.AISummary { return r.summarize(ctx, doc.Content) })
		res.AISummary = &s
		return res
	}

	outcomes := engine.Evaluate(doc, std.Rules)
	for i := range outcomes {
		outcomes[i].Logic = rule.Logic(std.Rules[i])
	}
	res.Outcomes = verdict.Escalate(outcomes, r.opts.Strict)
	verdict.Standard(&res)
	return res
}

func (r *Runner) summarize(ctx context.Context, content string) schema.AISummary {
	if r.opts.Offline {
		return schema.AISummary{
			Errors:                 []string{},
			Warnings:               []string{OfflineNotice},
			IncompleteTransactions: []string{},
		}
	}
	return llm.Summarize(ctx, content, r.opts.LLM)
}
