package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/logcheck/internal/batch"
	"github.com/dshills/logcheck/internal/ingest"
	"github.com/dshills/logcheck/internal/llm"
	"github.com/dshills/logcheck/internal/render"
	"github.com/dshills/logcheck/internal/schema"
	"github.com/dshills/logcheck/internal/standard"
	"github.com/dshills/logcheck/internal/store"
	"github.com/dshills/logcheck/internal/verdict"
)

// llmFlags are shared by every command that may run an open-ended standard.
type llmFlags struct {
	offline     bool
	provider    string
	model       string
	maxTokens   int
	temperature float64
}

func (l *llmFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.BoolVar(&l.offline, "offline", false, "skip generative analysis")
	fs.StringVar(&l.provider, "provider", envOr("LOGCHECK_PROVIDER", llm.DefaultProvider), "AI provider: google, anthropic, openai")
	fs.StringVar(&l.model, "model", envOr("LOGCHECK_MODEL", ""), "AI model (default depends on provider)")
	fs.IntVar(&l.maxTokens, "max-tokens", 0, "maximum response tokens")
	fs.Float64Var(&l.temperature, "temperature", 0, "sampling temperature")
}

func (l llmFlags) options() llm.Options {
	return llm.Options{
		Provider:    l.provider,
		Model:       l.model,
		MaxTokens:   l.maxTokens,
		Temperature: l.temperature,
	}
}

type checkFlags struct {
	root          string
	format        string
	out           string
	standardsFile string
	only          []string
	strict        bool
	failOn        string
	db            string
	workers       int
	llm           llmFlags
}

func newCheckCmd() *cobra.Command {
	var f checkFlags
	cmd := &cobra.Command{
		Use:   "check <dir>",
		Short: "Evaluate every file-set under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.root = args[0]
			return runCheck(cmd.Context(), f, cmd.OutOrStdout())
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.format, "format", "json", "output format: json or markdown")
	fs.StringVar(&f.out, "out", "", "write the report to this file instead of stdout")
	fs.StringVar(&f.standardsFile, "standards", "", "YAML file with custom standards")
	fs.StringSliceVar(&f.only, "only", nil, "run only these standard ids")
	fs.BoolVar(&f.strict, "strict", false, "treat warnings as non-compliant")
	fs.StringVar(&f.failOn, "fail-on", "", "exit 2 when the overall status is at least this severe")
	fs.StringVar(&f.db, "db", envOr("LOGCHECK_DB", ""), "save the run to this database (SQLite path or postgres:// URL)")
	fs.IntVar(&f.workers, "workers", 0, "concurrent evaluations (default GOMAXPROCS)")
	f.llm.register(cmd)
	return cmd
}

func runCheck(ctx context.Context, f checkFlags, stdout io.Writer) error {
	log := slog.Default()

	if err := checkFormat(f.format); err != nil {
		return badInput(err)
	}
	threshold, err := parseFailOn(f.failOn)
	if err != nil {
		return badInput(err)
	}
	if info, err := os.Stat(f.root); err != nil || !info.IsDir() {
		return badInput(fmt.Errorf("%s is not a readable directory", f.root))
	}

	cat, err := loadCatalog(f.standardsFile)
	if err != nil {
		return badInput(err)
	}
	stds, err := cat.Select(f.only)
	if err != nil {
		return badInput(err)
	}
	runner, err := batch.New(stds, batch.Options{
		Strict:  f.strict,
		Offline: f.llm.offline,
		Workers: f.workers,
		LLM:     f.llm.options(),
		Logger:  log,
	})
	if err != nil {
		return badInput(err)
	}

	sets, err := ingest.Walk(f.root)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return badInput(fmt.Errorf("no details.txt or downloadstatus.xml found under %s", f.root))
	}

	report, err := runner.Run(ctx, f.root, sets)
	if err != nil {
		return err
	}
	if err := writeReport(report, f.format, f.out, stdout); err != nil {
		return err
	}
	if f.db != "" {
		if err := saveRun(ctx, f.db, report); err != nil {
			return err
		}
		log.Info("run saved", "run_id", report.RunID)
	}
	return failOnError(report.Summary.Status, threshold)
}

func checkFormat(format string) error {
	switch format {
	case "json", "markdown", "md":
		return nil
	}
	return fmt.Errorf("unknown format %q (available: json, markdown)", format)
}

func parseFailOn(s string) (schema.Status, error) {
	if s == "" {
		return "", nil
	}
	return verdict.ParseStatus(s)
}

func failOnError(status, threshold schema.Status) error {
	if threshold == "" || !verdict.Reached(status, threshold) {
		return nil
	}
	return &exitError{
		code: exitCodeFailOn,
		err:  fmt.Errorf("status %s reached --fail-on %s", status, threshold),
	}
}

// loadCatalog returns the built-in catalog, extended by path when given.
func loadCatalog(path string) (*standard.Catalog, error) {
	cat := standard.Builtin()
	if path == "" {
		return cat, nil
	}
	extra, err := standard.Load(path)
	if err != nil {
		return nil, err
	}
	return cat.Merge(extra...), nil
}

func writeReport(report *schema.Report, format, out string, stdout io.Writer) error {
	var data []byte
	switch strings.ToLower(format) {
	case "markdown", "md":
		data = []byte(render.RenderMarkdown(report))
	default:
		b, err := render.RenderJSON(report)
		if err != nil {
			return err
		}
		data = append(b, '\n')
	}
	if out == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func saveRun(ctx context.Context, dsn string, report *schema.Report) error {
	st, err := store.Open(dsn)
	if err != nil {
		return err
	}
	return errors.Join(st.SaveReport(ctx, report), st.Close())
}
