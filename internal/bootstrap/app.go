package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"
	"github.com/anatolykoptev/go_isnad/internal/fetch"
	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/anatolykoptev/go_isnad/internal/isnad/sources"
	"github.com/anatolykoptev/go_isnad/internal/isnad/store"
	"github.com/anatolykoptev/go_isnad/internal/toolutil"
)

// App is the wired service. Tables are immutable after Build.
type App struct {
	Config   Config
	Resolver *isnad.Resolver
	Index    *isnad.ContentIndex
	Runs     *store.RunLog   // nil when RUNS_DB_PATH is empty or unusable
	DB       *store.Postgres // nil without DATABASE_URL
	Cache    *fetch.Cache
	Fetcher  *fetch.Fetcher
	Scraper  *sources.Scraper

	// Warnings aggregates recoverable load diagnostics: malformed records
	// and conflicting rule keys.
	Warnings error
}

// Tables bundles the loaded resolution inputs.
type Tables struct {
	Lookup      *isnad.Lookup
	Context     *isnad.ContextRules
	Mapping     *isnad.MappingRules
	Index       *isnad.ContentIndex
	GroundTruth int

	// Warnings joins malformed entries and rule conflicts. The tables are
	// usable regardless.
	Warnings error
}

// Build loads every table and connects the optional backends. Unreadable
// inputs fail the build; malformed entries only land in App.Warnings.
func Build(ctx context.Context, cfg Config) (*App, error) {
	app := &App{Config: cfg}

	if cfg.DatabaseURL != "" {
		db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("postgres init failed, registry table and publishing disabled", slog.Any("error", err))
		} else {
			app.DB = db
		}
	}

	t, err := LoadTables(ctx, cfg, app.DB)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Warnings = t.Warnings
	app.Index = t.Index
	app.Resolver = isnad.NewResolver(t.Lookup, t.Context, t.Mapping, t.Index, isnad.Options{Workers: cfg.Workers})

	if cfg.RunsDBPath != "" {
		runs, err := store.OpenRunLog(cfg.RunsDBPath)
		if err != nil {
			slog.Warn("run log init failed, runs will not be recorded", slog.Any("error", err))
		} else {
			app.Runs = runs
		}
	}

	app.Cache = fetch.NewCache(fetch.CacheConfig{
		RedisURL:        cfg.RedisURL,
		TTL:             cfg.CacheTTL,
		MaxEntries:      cfg.CacheMaxEntries,
		CleanupInterval: cfg.CacheCleanupInterval,
	})
	app.Fetcher = fetch.New(newGetter(cfg), fetch.Options{
		RPS:       cfg.FetchRPS,
		Burst:     1,
		Cache:     app.Cache,
		Challenge: sources.IsChallenge,
		Referer:   strings.TrimRight(cfg.ShamelaBaseURL, "/") + "/",
	})
	app.Scraper = sources.NewScraper(app.Fetcher, sources.ScrapeOptions{
		BaseURL: cfg.ShamelaBaseURL,
		Workers: cfg.ScrapeWorkers,
		Cache:   app.Cache,
	})

	unique, collisions, narrators := t.Lookup.Stats()
	slog.Info("isnad tables ready",
		slog.Int("narrators", narrators),
		slog.Int("unique_names", unique),
		slog.Int("colliding_names", collisions),
		slog.Int("context_rules", t.Context.Len()),
		slog.Int("name_mappings", t.Mapping.Len()),
		slog.Int("reference_chains", t.GroundTruth),
		slog.Int("content_keys", t.Index.Len()),
	)
	if t.Warnings != nil {
		slog.Warn("isnad tables loaded with diagnostics", slog.Any("error", t.Warnings))
	}
	return app, nil
}

// LoadTables reads the registry, ground truth and rule files named by cfg.
// db, when non-nil, contributes its narrator_names table to the registry.
func LoadTables(ctx context.Context, cfg Config, db *store.Postgres) (*Tables, error) {
	var warns []error
	keep := func(err error) error {
		if err == nil {
			return nil
		}
		var conflict *isnad.RuleConflictError
		if errors.Is(err, isnad.ErrMalformed) || errors.As(err, &conflict) {
			warns = append(warns, err)
			return nil
		}
		return err
	}

	var records []isnad.Record
	for _, path := range paths(cfg.RegistryPaths) {
		recs, err := sources.LoadRegistry(path)
		if err := keep(err); err != nil {
			return nil, fmt.Errorf("bootstrap: registry: %w", err)
		}
		records = append(records, recs...)
	}
	if db != nil {
		recs, err := db.LoadRegistry(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: registry: %w", err)
		}
		records = append(records, recs...)
	}

	corpus, err := sources.LoadGroundTruth(paths(cfg.GroundTruthPaths)...)
	if err := keep(err); err != nil {
		return nil, fmt.Errorf("bootstrap: ground truth: %w", err)
	}
	records = append(records, isnad.RecordsFromGroundTruth(corpus)...)

	ctxRules, mapRules, err := LoadRules(cfg)
	if err := keep(err); err != nil {
		return nil, err
	}

	t := &Tables{
		Lookup:  isnad.BuildLookup(records),
		Context: ctxRules,
		Mapping: mapRules,
		Index: isnad.BuildContentIndex(corpus, isnad.ContentOptions{
			KeyChars:    cfg.ContentKeyChars,
			MinKeyChars: cfg.ContentKeyMinChars,
			Scope:       isnad.IndexScope(toolutil.NormScope(cfg.ContentScope)),
		}),
		GroundTruth: len(corpus),
		Warnings:    errors.Join(warns...),
	}
	return t, nil
}

// LoadRules reads and builds both rule tables. An error wrapping
// isnad.ErrMalformed or holding *isnad.RuleConflictError leaves usable
// tables; any other error is fatal and the tables are nil.
func LoadRules(cfg Config) (*isnad.ContextRules, *isnad.MappingRules, error) {
	var errs []error

	ctxList, err := sources.LoadContextRules(paths(cfg.ContextRulesPaths)...)
	if err != nil && !errors.Is(err, isnad.ErrMalformed) {
		return nil, nil, fmt.Errorf("bootstrap: context rules: %w", err)
	}
	errs = append(errs, err)
	mapList, err := sources.LoadNameMappings(paths(cfg.NameMappingPaths)...)
	if err != nil && !errors.Is(err, isnad.ErrMalformed) {
		return nil, nil, fmt.Errorf("bootstrap: name mappings: %w", err)
	}
	errs = append(errs, err)

	ctxRules, err := isnad.NewContextRules(ctxList)
	errs = append(errs, err)
	mapRules, err := isnad.NewMappingRules(mapList)
	errs = append(errs, err)
	return ctxRules, mapRules, errors.Join(errs...)
}

func paths(list []string) []string {
	var out []string
	for _, p := range list {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newGetter(cfg Config) fetch.Getter {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cfg.FetchBackend == "http" {
		return fetch.HTTPGetter(&http.Client{Timeout: timeout})
	}

	opts := []stealth.ClientOption{stealth.WithTimeout(int(timeout.Seconds()))}
	if cfg.WebshareAPIKey != "" {
		pool, err := proxypool.NewWebshare(cfg.WebshareAPIKey)
		if err != nil {
			slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}
	bc, err := stealth.NewClient(opts...)
	if err != nil {
		slog.Warn("stealth client init failed, falling back to net/http", slog.Any("error", err))
		return fetch.HTTPGetter(&http.Client{Timeout: timeout})
	}
	slog.Info("stealth browser client initialized")
	return fetch.StealthGetter(bc)
}

// ResolveCorpus runs the passes over the corpus at in and writes the
// resolved corpus to out. Empty arguments fall back to the configured
// paths; an empty output overwrites the input. The run is recorded in the
// run log whether or not it succeeds.
func (a *App) ResolveCorpus(ctx context.Context, in, out string) (*isnad.Report, store.Run, error) {
	if in == "" {
		in = a.Config.CorpusPath
	}
	if out == "" {
		out = a.Config.OutputPath
	}
	if in == "" {
		return nil, store.Run{}, errors.New("bootstrap: resolve: corpus path is required")
	}
	if out == "" {
		out = in
	}

	corpus, err := sources.LoadCorpus(in, corpusSource(in))
	if err != nil {
		return nil, store.Run{}, fmt.Errorf("bootstrap: resolve: %w", err)
	}
	chains := corpus.Chains()

	var rep *isnad.Report
	runErr := isnad.TrackOperation(ctx, "corpus_resolve", time.Minute, func(ctx context.Context) error {
		var err error
		rep, err = a.Resolver.Run(ctx, chains)
		if err != nil {
			return err
		}
		if err := corpus.Apply(chains); err != nil {
			return err
		}
		return corpus.Save(out)
	})

	var run store.Run
	if a.Runs != nil && rep != nil {
		r, err := a.Runs.Record(ctx, in, rep, runErr)
		if err != nil {
			slog.Warn("run log record failed", slog.Any("error", err))
		} else {
			run = r
		}
	}
	if runErr != nil {
		return rep, run, fmt.Errorf("bootstrap: resolve: %w", runErr)
	}
	slog.Info("corpus resolved",
		slog.String("corpus", in),
		slog.String("output", out),
		slog.Int("mentions", rep.Total),
		slog.Int("resolved", rep.Resolved()),
		slog.String("run_id", run.ID),
	)
	return rep, run, nil
}

// Publish upserts the mentions of a resolved corpus into PostgreSQL under runID.
func (a *App) Publish(ctx context.Context, path, runID string) (int, error) {
	if a.DB == nil {
		return 0, errors.New("bootstrap: publish: DATABASE_URL is not configured")
	}
	if path == "" {
		path = a.Config.OutputPath
	}
	corpus, err := sources.LoadCorpus(path, corpusSource(path))
	if err != nil {
		return 0, fmt.Errorf("bootstrap: publish: %w", err)
	}
	n, err := a.DB.PublishChains(ctx, runID, corpus.Chains())
	if err != nil {
		return n, fmt.Errorf("bootstrap: publish: %w", err)
	}
	return n, nil
}

// Close releases every backend. It is safe on a partially built App.
func (a *App) Close() {
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.Runs != nil {
		_ = a.Runs.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// corpusSource names a corpus after its file, e.g. "bukhari" for data/bukhari.json.
func corpusSource(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
