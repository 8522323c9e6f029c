package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_isnad/internal/bootstrap"
	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/anatolykoptev/go_isnad/internal/isnad/sources"
	"github.com/anatolykoptev/go_isnad/internal/isnad/store"
)

// tableFlags override the table sources of the environment configuration.
type tableFlags struct {
	registry     []string
	groundTruth  []string
	contextRules []string
	nameMappings []string
	scope        string
	workers      int
}

func (f *tableFlags) apply(cmd *cobra.Command, cfg *bootstrap.Config) {
	fl := cmd.Flags()
	if fl.Changed("registry") {
		cfg.RegistryPaths = f.registry
	}
	if fl.Changed("ground-truth") {
		cfg.GroundTruthPaths = f.groundTruth
	}
	if fl.Changed("context-rules") {
		cfg.ContextRulesPaths = f.contextRules
	}
	if fl.Changed("name-mappings") {
		cfg.NameMappingPaths = f.nameMappings
	}
	if fl.Changed("scope") {
		cfg.ContentScope = f.scope
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
}

func newRootCmd() *cobra.Command {
	var tf tableFlags
	rootCmd := &cobra.Command{
		Use:          "isnad",
		Short:        "Resolve hadith narrator names to registry identifiers",
		Long:         "Batch tools for isnad narrator resolution. Table sources default to the REGISTRY_PATHS, GROUND_TRUTH_PATHS, CONTEXT_RULES_PATHS and NAME_MAPPING_PATHS environment variables.",
		Version:      version,
		SilenceUsage: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringSliceVar(&tf.registry, "registry", nil, "Narrator registry files (JSON or YAML: id -> [names])")
	pf.StringSliceVar(&tf.groundTruth, "ground-truth", nil, "Ground-truth Shamela JSONL files")
	pf.StringSliceVar(&tf.contextRules, "context-rules", nil, "Context rule files")
	pf.StringSliceVar(&tf.nameMappings, "name-mappings", nil, "Name mapping files")
	pf.StringVar(&tf.scope, "scope", "global", "Content index scope: global or source")
	pf.IntVar(&tf.workers, "workers", 0, "Chains processed concurrently per pass (0 = GOMAXPROCS)")

	rootCmd.AddCommand(resolveCmd(&tf))
	rootCmd.AddCommand(normalizeCmd())
	rootCmd.AddCommand(lookupCmd(&tf))
	rootCmd.AddCommand(scrapeCmd(&tf))
	rootCmd.AddCommand(coverageCmd(&tf))
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(rulesCmd(&tf))
	rootCmd.AddCommand(publishCmd(&tf))
	return rootCmd
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func resolveCmd(tf *tableFlags) *cobra.Command {
	var corpus, output string
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "resolve",
		Short:   "Resolve every narrator mention of a corpus",
		Long:    "Run the exact, context rule, name mapping and matn chain passes over a corpus JSON, write the resolved corpus and record the run.",
		Example: "  isnad resolve --corpus data/bukhari.json --output data/bukhari_resolved.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cfg := bootstrap.FromEnv()
			tf.apply(cmd, &cfg)
			app, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			rep, run, err := app.ResolveCorpus(ctx, corpus, output)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, rep)
			}
			fmt.Fprint(out, rep.Summary())
			for _, d := range rep.Diagnostics {
				fmt.Fprintf(out, "skipped: %v\n", d)
			}
			if run.ID != "" {
				fmt.Fprintf(out, "run: %s\n", run.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&corpus, "corpus", "", "Corpus JSON to resolve (default: CORPUS_PATH)")
	cmd.Flags().StringVar(&output, "output", "", "Resolved corpus path (default: OUTPUT_PATH, else the input)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	return cmd
}

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <text>...",
		Short: "Print the normalized form of each argument",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				fmt.Fprintln(cmd.OutOrStdout(), isnad.Normalize(a))
			}
			return nil
		},
	}
}

func lookupCmd(tf *tableFlags) *cobra.Command {
	var neighbor string
	cmd := &cobra.Command{
		Use:     "lookup <name>",
		Short:   "Resolve a single narrator name",
		Example: "  isnad lookup سفيان --neighbor الحميدي",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := bootstrap.FromEnv()
			tf.apply(cmd, &cfg)
			t, err := bootstrap.LoadTables(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			r := isnad.NewResolver(t.Lookup, t.Context, t.Mapping, t.Index, isnad.Options{})
			m, method := r.ResolveName(args[0], neighbor)
			return writeJSON(cmd.OutOrStdout(), lookupResult{
				Name:       args[0],
				Normalized: isnad.Normalize(args[0]),
				NarratorID: m.ID,
				Method:     method,
				Outcome:    m.Outcome.String(),
				Key:        m.Key,
				Candidates: m.Candidates,
			})
		},
	}
	cmd.Flags().StringVar(&neighbor, "neighbor", "", "Raw name of the preceding narrator in the chain")
	return cmd
}

type lookupResult struct {
	Name       string       `json:"name"`
	Normalized string       `json:"normalized"`
	NarratorID int64        `json:"narrator_id,omitempty"`
	Method     isnad.Method `json:"method"`
	Outcome    string       `json:"outcome"`
	Key        string       `json:"key,omitempty"`
	Candidates []int64      `json:"candidates,omitempty"`
}

func scrapeCmd(tf *tableFlags) *cobra.Command {
	var book, from, to int
	var output string
	cmd := &cobra.Command{
		Use:     "scrape",
		Short:   "Scrape Shamela book pages into ground-truth JSONL",
		Example: "  isnad scrape --book 1681 --from 1 --to 200 --output data/shamela_1681.jsonl",
		RunE: func(cmd *cobra.Command, args []string) error {
			if book <= 0 || from <= 0 {
				return errors.New("--book and --from are required")
			}
			if to == 0 {
				to = from
			}
			if output == "" {
				output = fmt.Sprintf("shamela_%d.jsonl", book)
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cfg := bootstrap.FromEnv()
			tf.apply(cmd, &cfg)
			// scraping does not need the resolution tables
			cfg.RegistryPaths, cfg.GroundTruthPaths, cfg.ContextRulesPaths, cfg.NameMappingPaths = nil, nil, nil, nil
			app, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			sum, err := app.Scraper.ScrapeRange(ctx, book, from, to, output)
			if sum != nil {
				if werr := writeJSON(cmd.OutOrStdout(), sum); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&book, "book", 0, "Shamela book id")
	cmd.Flags().IntVar(&from, "from", 0, "First page")
	cmd.Flags().IntVar(&to, "to", 0, "Last page (default: --from)")
	cmd.Flags().StringVar(&output, "output", "", "JSONL output (default: shamela_<book>.jsonl)")
	return cmd
}

func coverageCmd(tf *tableFlags) *cobra.Command {
	var book, from, to int
	var input string
	var rescrape bool
	cmd := &cobra.Command{
		Use:     "coverage",
		Short:   "Check a Shamela scrape JSONL for failed, missing and duplicated pages and hadith numbers",
		Long:    "Report the pages of a range that succeeded, failed or are missing, the pages to scrape again, and the hadith numbers present, missing or duplicated. With --rescrape the pages to scrape again are fetched into the same file and the check is repeated.",
		Example: "  isnad coverage --book 1681 --from 10 --to 11208 --input data/shamela_1681.jsonl --rescrape",
		RunE: func(cmd *cobra.Command, args []string) error {
			if book <= 0 || from <= 0 || to <= 0 {
				return errors.New("--book, --from and --to are required")
			}
			if input == "" {
				input = fmt.Sprintf("shamela_%d.jsonl", book)
			}
			rep, err := sources.Coverage(input, book, from, to)
			if err != nil {
				return err
			}
			if rescrape && len(rep.PagesToRescrape) > 0 {
				ctx, cancel := signalContext(cmd)
				defer cancel()

				cfg := bootstrap.FromEnv()
				tf.apply(cmd, &cfg)
				cfg.RegistryPaths, cfg.GroundTruthPaths, cfg.ContextRulesPaths, cfg.NameMappingPaths = nil, nil, nil, nil
				app, err := bootstrap.Build(ctx, cfg)
				if err != nil {
					return err
				}
				defer app.Close()

				sum, err := app.Scraper.ScrapePages(ctx, book, rep.PagesToRescrape, input)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "rescraped %d pages: %d succeeded\n", sum.Requested-sum.Skipped, sum.Succeeded)
				if rep, err = sources.Coverage(input, book, from, to); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().IntVar(&book, "book", 0, "Shamela book id")
	cmd.Flags().IntVar(&from, "from", 0, "First page")
	cmd.Flags().IntVar(&to, "to", 0, "Last page")
	cmd.Flags().StringVar(&input, "input", "", "Scrape JSONL to check (default: shamela_<book>.jsonl)")
	cmd.Flags().BoolVar(&rescrape, "rescrape", false, "Scrape the failed and missing pages, then check again")
	return cmd
}

func runsCmd() *cobra.Command {
	var limit int
	var dbPath string
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded resolution runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = bootstrap.FromEnv().RunsDBPath
			}
			runs, err := store.OpenRunLog(dbPath)
			if err != nil {
				return err
			}
			defer runs.Close()

			if len(args) == 1 {
				r, err := runs.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), r)
			}
			list, err := runs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().StringVar(&dbPath, "db", "", "Run log path (default: RUNS_DB_PATH)")
	return cmd
}

func printRuns(w io.Writer, runs []store.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tCORPUS\tRESOLVED\tTOTAL\tTOOK\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, r.Started.Format(time.DateTime), r.Corpus, r.Resolved, r.Total,
			r.Finished.Sub(r.Started).Round(time.Millisecond), r.Error)
	}
	tw.Flush()
}

func rulesCmd(tf *tableFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect context rule and name mapping tables",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load the rule tables and report malformed entries and conflicting keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := bootstrap.FromEnv()
			tf.apply(cmd, &cfg)
			ctxRules, mapRules, err := bootstrap.LoadRules(cfg)
			if ctxRules == nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "context rules : %d\n", ctxRules.Len())
			fmt.Fprintf(out, "name mappings : %d\n", mapRules.Len())
			problems := flatten(err)
			for _, p := range problems {
				fmt.Fprintf(out, "  %v\n", p)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d rule problems", len(problems))
			}
			return nil
		},
	})
	return cmd
}

// flatten expands joined errors into their leaves.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

func publishCmd(tf *tableFlags) *cobra.Command {
	var corpus, runID string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upsert a resolved corpus into PostgreSQL (DATABASE_URL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cfg := bootstrap.FromEnv()
			tf.apply(cmd, &cfg)
			cfg.GroundTruthPaths, cfg.ContextRulesPaths, cfg.NameMappingPaths = nil, nil, nil
			if strings.TrimSpace(cfg.DatabaseURL) == "" {
				return errors.New("DATABASE_URL is required")
			}
			app, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if runID == "" {
				runID = uuid.NewString()
			}
			n, err := app.Publish(ctx, corpus, runID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d mentions (run %s)\n", n, runID)
			return nil
		},
	}
	cmd.Flags().StringVar(&corpus, "corpus", "", "Resolved corpus JSON (default: OUTPUT_PATH)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id stored with each row (default: new UUID)")
	return cmd
}
