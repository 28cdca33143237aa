package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/logcheck/internal/batch"
	"github.com/dshills/logcheck/internal/engine"
	"github.com/dshills/logcheck/internal/ingest"
	"github.com/dshills/logcheck/internal/render"
	"github.com/dshills/logcheck/internal/schema"
	"github.com/dshills/logcheck/internal/server"
	"github.com/dshills/logcheck/internal/store"
	"github.com/dshills/logcheck/internal/verdict"
)

type evalFlags struct {
	file          string
	standard      string
	standardsFile string
	aux           string
	format        string
	strict        bool
	failOn        string
	llm           llmFlags
}

func newEvalCmd() *cobra.Command {
	var f evalFlags
	cmd := &cobra.Command{
		Use:   "eval <file>",
		Short: "Evaluate one file against one standard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.file = args[0]
			return runEval(cmd.Context(), f, cmd.OutOrStdout())
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.standard, "standard", "general", "standard id")
	fs.StringVar(&f.standardsFile, "standards", "", "YAML file with custom standards")
	fs.StringVar(&f.aux, "aux", "", "network-status snapshot accompanying the log")
	fs.StringVar(&f.format, "format", "json", "output format: json or markdown")
	fs.BoolVar(&f.strict, "strict", false, "treat warnings as non-compliant")
	fs.StringVar(&f.failOn, "fail-on", "", "exit 2 when the status is at least this severe")
	f.llm.register(cmd)
	return cmd
}

func runEval(ctx context.Context, f evalFlags, stdout io.Writer) error {
	if err := checkFormat(f.format); err != nil {
		return badInput(err)
	}
	threshold, err := parseFailOn(f.failOn)
	if err != nil {
		return badInput(err)
	}
	cat, err := loadCatalog(f.standardsFile)
	if err != nil {
		return badInput(err)
	}
	std, err := cat.Get(f.standard)
	if err != nil {
		return badInput(err)
	}
	runner, err := batch.New(nil, batch.Options{
		Strict:  f.strict,
		Offline: f.llm.offline,
		LLM:     f.llm.options(),
		Logger:  slog.Default(),
	})
	if err != nil {
		return err
	}

	file, err := ingest.ReadFile(f.file)
	if err != nil {
		return badInput(err)
	}
	doc := engine.Document{Content: file.Content}
	if f.aux != "" {
		aux, err := ingest.ReadFile(f.aux)
		if err != nil {
			return badInput(err)
		}
		doc.Auxiliary = aux.Content
	}

	res := runner.Evaluate(ctx, std, doc)
	report := &schema.Report{
		Tool:    batch.Tool,
		Version: batch.Version,
		Input:   schema.Input{Root: f.file, Standards: []string{std.ID}, Strict: f.strict, Offline: f.llm.offline},
		FileSets: []schema.FileSetResult{{
			ID: ingest.RootSetID,
			Documents: []schema.DocumentResult{{
				Path:      file.Path,
				Name:      file.Name,
				Role:      string(file.Role),
				Digests:   file.Digests,
				Standards: []schema.StandardResult{res},
			}},
		}},
	}
	verdict.Summarize(report)
	if report.Hash, err = render.Hash(report); err != nil {
		return err
	}
	if err := writeReport(report, f.format, "", stdout); err != nil {
		return err
	}
	return failOnError(report.Summary.Status, threshold)
}

func newStandardsCmd() *cobra.Command {
	var standardsFile, format string
	cmd := &cobra.Command{
		Use:   "standards",
		Short: "List the available standards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(standardsFile)
			if err != nil {
				return badInput(err)
			}
			out := cmd.OutOrStdout()
			if format == "json" {
				type entry struct {
					ID        string `json:"id"`
					Name      string `json:"name"`
					Rules     int    `json:"rules"`
					AppliesTo string `json:"applies_to,omitempty"`
					OpenEnded bool   `json:"open_ended"`
				}
				var list []entry
				for _, s := range cat.List() {
					list = append(list, entry{s.ID, s.Name, len(s.Rules), s.AppliesTo, s.OpenEnded})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tRULES\tAPPLIES TO")
			for _, s := range cat.List() {
				rules := fmt.Sprint(len(s.Rules))
				if s.OpenEnded {
					rules = "open-ended"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, rules, s.AppliesTo)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&standardsFile, "standards", "", "YAML file with custom standards")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var dsn, format string
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored runs, or print one stored report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return badInput(errors.New("--db is required (or set LOGCHECK_DB)"))
			}
			st, err := store.Open(dsn)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				if err := checkFormat(format); err != nil {
					return badInput(err)
				}
				report, err := st.Report(cmd.Context(), args[0])
				if errors.Is(err, store.ErrNotFound) {
					return badInput(err)
				}
				if err != nil {
					return err
				}
				return writeReport(report, format, "", cmd.OutOrStdout())
			}
			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().StringVar(&dsn, "db", envOr("LOGCHECK_DB", ""), "database (SQLite path or postgres:// URL)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&format, "format", "json", "report format when a run id is given: json or markdown")
	return cmd
}

func printRuns(w io.Writer, runs []store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tCREATED\tSTATUS\tSCORE\tDOCS\tROOT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Status, r.Score, r.Documents, r.Root)
	}
	return tw.Flush()
}

func newServeCmd() *cobra.Command {
	var (
		addr, dsn, standardsFile string
		strict                   bool
		lf                       llmFlags
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(standardsFile)
			if err != nil {
				return badInput(err)
			}
			var st *store.Store
			if dsn != "" {
				if st, err = store.Open(dsn); err != nil {
					return err
				}
				defer st.Close()
			}
			srv, err := server.New(cat, batch.Options{
				Strict:  strict,
				Offline: lf.offline,
				LLM:     lf.options(),
				Logger:  slog.Default(),
			}, st)
			if err != nil {
				return badInput(err)
			}
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("LOGCHECK_ADDR", ":8080"), "listen address")
	cmd.Flags().StringVar(&dsn, "db", envOr("LOGCHECK_DB", ""), "run history database (optional)")
	cmd.Flags().StringVar(&standardsFile, "standards", "", "YAML file with custom standards")
	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as non-compliant")
	lf.register(cmd)
	return cmd
}
