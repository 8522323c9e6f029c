// Package bootstrap turns environment configuration into a fully wired App:
// name tables, rule tables and the content index are built once and shared
// read-only by the MCP server and the batch CLI.
package bootstrap

import (
	"time"

	"github.com/anatolykoptev/go-kit/env"
)

// Config holds every tunable of the service.
type Config struct {
	Port string

	RegistryPaths     []string
	GroundTruthPaths  []string
	ContextRulesPaths []string
	NameMappingPaths  []string
	CorpusPath        string
	OutputPath        string

	ContentKeyChars    int
	ContentKeyMinChars int
	ContentScope       string
	Workers            int

	RunsDBPath  string
	DatabaseURL string

	RedisURL             string
	CacheTTL             time.Duration
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration

	ShamelaBaseURL string
	ScrapeWorkers  int
	FetchBackend   string // "stealth" or "http"
	FetchRPS       float64
	FetchTimeout   time.Duration
	WebshareAPIKey string
}

// FromEnv reads Config from the environment.
func FromEnv() Config {
	return Config{
		Port:                 env.Str("MCP_PORT", "8893"),
		RegistryPaths:        env.List("REGISTRY_PATHS", ""),
		GroundTruthPaths:     env.List("GROUND_TRUTH_PATHS", ""),
		ContextRulesPaths:    env.List("CONTEXT_RULES_PATHS", ""),
		NameMappingPaths:     env.List("NAME_MAPPING_PATHS", ""),
		CorpusPath:           env.Str("CORPUS_PATH", ""),
		OutputPath:           env.Str("OUTPUT_PATH", ""),
		ContentKeyChars:      env.Int("CONTENT_KEY_CHARS", 100),
		ContentKeyMinChars:   env.Int("CONTENT_KEY_MIN_CHARS", 15),
		ContentScope:         env.Str("CONTENT_INDEX_SCOPE", "global"),
		Workers:              env.Int("RESOLVE_WORKERS", 0),
		RunsDBPath:           env.Str("RUNS_DB_PATH", "data/runs.db"),
		DatabaseURL:          env.Str("DATABASE_URL", ""),
		RedisURL:             env.Str("REDIS_URL", ""),
		CacheTTL:             env.Duration("CACHE_TTL", 24*time.Hour),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 2000),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),
		ShamelaBaseURL:       env.Str("SHAMELA_BASE_URL", "https://shamela.ws"),
		ScrapeWorkers:        env.Int("SCRAPE_WORKERS", 4),
		FetchBackend:         env.Str("FETCH_BACKEND", "stealth"),
		FetchRPS:             env.Float("FETCH_RPS", 2),
		FetchTimeout:         env.Duration("FETCH_TIMEOUT", 15*time.Second),
		WebshareAPIKey:       env.Str("WEBSHARE_API_KEY", ""),
	}
}
