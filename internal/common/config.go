package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root application configuration, loaded from one or more
// TOML files (later files override earlier ones) and then from environment
// variables for secrets.
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Templates   TemplatesConfig   `toml:"templates"`
	Parser      ParserConfig      `toml:"parser"`
	Claude      ClaudeConfig      `toml:"claude"`
	Embedder    EmbedderConfig    `toml:"embedder"`
	Matching    MatchingConfig    `toml:"matching"`
	Validation  ValidationConfig  `toml:"validation"`
	Query       QueryConfig       `toml:"query"`
	Search      SearchIndexConfig `toml:"search"`
	Workers     WorkersConfig     `toml:"workers"`
	MCP         MCPConfig         `toml:"mcp"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
	Cache  CacheConfig  `toml:"cache"`
}

// SQLiteConfig configures the Store (§4.1).
type SQLiteConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
	WALMode        bool   `toml:"wal_mode"`
	CacheSizeMB    int    `toml:"cache_size_mb"`
	BusyTimeoutMS  int    `toml:"busy_timeout_ms"`
	Environment    string `toml:"-"` // populated from Config.Environment at load time
}

// CacheConfig configures the Badger-backed process-wide caches (§5).
type CacheConfig struct {
	Path               string `toml:"path"`
	ResetOnStartup     bool   `toml:"reset_on_startup"`
	QueryCacheTTLS     int    `toml:"query_cache_ttl_s"`
	LLMCacheTTLS       int    `toml:"llm_cache_ttl_s"`
	QueryCacheMaxItems int    `toml:"query_cache_max_items"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

// TemplatesConfig points at the directory of seed template definitions
// (YAML files, one Template + FieldSpec list per file) loaded at startup.
type TemplatesConfig struct {
	Dir string `toml:"dir"`
}

// ParserConfig configures the thin HTTP client for the external Parser service.
type ParserConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// ClaudeConfig configures the LLMClient (Anthropic Claude).
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

// EmbedderConfig configures the EmbedderClient (Google genai embeddings).
type EmbedderConfig struct {
	APIKey       string  `toml:"api_key"`
	Model        string  `toml:"model"`
	Dimension    int     `toml:"dimension"`
	Timeout      string  `toml:"timeout"`
	Enabled      bool    `toml:"enabled"`
	RateLimitRPS float64 `toml:"rate_limit_rps"`
}

// MatchingConfig holds TemplateMatcher thresholds (§4.4).
type MatchingConfig struct {
	FastMatchThreshold    float64 `toml:"fast_match_threshold"`
	CreateNewThreshold    float64 `toml:"create_new_threshold"`
	EnableLLMFallback     bool    `toml:"enable_llm_fallback"`
	CandidateTopK         int     `toml:"candidate_top_k"`
	SampleChunkCount      int     `toml:"sample_chunk_count"`
	MaxCandidateTemplates int     `toml:"max_candidate_templates"`
}

// ValidationConfig holds Validator thresholds (§4.5).
type ValidationConfig struct {
	ReviewThreshold      float64 `toml:"review_threshold"`
	HighConfidence       float64 `toml:"high_confidence"`
	MonetaryCapMinor     int64   `toml:"monetary_cap_minor"`
	DateFutureWindowDays int     `toml:"date_future_window_days"`
	DatePastWindowDays   int     `toml:"date_past_window_days"`
	TotalTolerance       float64 `toml:"total_tolerance"`
}

// QueryConfig holds QueryPlanner + RetrievalEngine thresholds (§4.8-4.9).
type QueryConfig struct {
	FastPathThreshold float64 `toml:"fast_path_threshold"`
	MaxExpansions     int     `toml:"max_expansions"`
	RRFK              int     `toml:"rrf_k"`
	RRFAlpha          float64 `toml:"rrf_alpha"`
	TopK              int     `toml:"top_k"`
	AnswerK           int     `toml:"answer_k"`
	QueryDeadlineMS   int     `toml:"query_deadline_ms"`
	FuzzySimilarity   float64 `toml:"fuzzy_similarity_threshold"`
}

// SearchIndexConfig holds SearchIndex tunables (§4.2).
type SearchIndexConfig struct {
	WeightA          int `toml:"weight_a"`
	WeightB          int `toml:"weight_b"`
	WeightC          int `toml:"weight_c"`
	MaxDynamicFields int `toml:"max_dynamic_fields"`
	KeywordMaxLen    int `toml:"keyword_max_len"`
}

// WorkersConfig holds the IngestionPipeline worker pool + deadlines (§5).
type WorkersConfig struct {
	PoolSize             int    `toml:"pool_size"`
	ParseDeadlineMS      int    `toml:"parse_deadline_ms"`
	ExtractDeadlineMS    int    `toml:"extract_deadline_ms"`
	SignatureReindexCron string `toml:"signature_reindex_cron"`
}

// MCPConfig configures the optional MCP transport over QueryService.Ask,
// exercising the query_source values mcp_search / mcp_rag from §3.
type MCPConfig struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name"`
}

// LoadConfig reads one or more TOML files in order (later files win) and
// applies environment variable overrides for secrets.
func LoadConfig(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.Storage.SQLite.Environment = cfg.Environment

	if err := ReplaceInStruct(cfg, envKVMap(), GetLogger()); err != nil {
		return nil, fmt.Errorf("failed to resolve {key} references in config: %w", err)
	}

	return cfg, nil
}

// envKVMap exposes the process environment as a {key-name} lookup table for
// ReplaceInStruct, so config files can reference secrets as e.g.
// api_key = "{ANTHROPIC_API_KEY}" without committing them to disk.
func envKVMap() map[string]string {
	kv := make(map[string]string)
	for _, entry := range os.Environ() {
		if k, v, ok := strings.Cut(entry, "="); ok {
			kv[k] = v
		}
	}
	return kv
}

// applyEnvOverrides lets operators inject secrets without committing them to
// a TOML file, mirroring the KV-store-first / env-fallback resolution order
// used throughout the teacher's service constructors.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Claude.APIKey = v
	}
	if v := os.Getenv("DOCUFLOW_CLAUDE_API_KEY"); v != "" {
		cfg.Claude.APIKey = v
	}
	if v := os.Getenv("DOCUFLOW_EMBEDDER_API_KEY"); v != "" {
		cfg.Embedder.APIKey = v
	}
	if v := os.Getenv("DOCUFLOW_PARSER_BASE_URL"); v != "" {
		cfg.Parser.BaseURL = v
	}
}

// DefaultConfig returns the configuration defaults enumerated in spec §6.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server:      ServerConfig{Port: 8090, Host: "0.0.0.0"},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/docuflow.db",
				WALMode:       true,
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
			},
			Cache: CacheConfig{
				Path:               "./data/cache",
				QueryCacheTTLS:     300,
				LLMCacheTTLS:       300,
				QueryCacheMaxItems: 10000,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Templates: TemplatesConfig{Dir: "./templates"},
		Parser:    ParserConfig{Timeout: "60s"},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			Timeout:     "60s",
			MaxTokens:   4096,
			Temperature: 0,
		},
		Embedder: EmbedderConfig{
			Model:        "text-embedding-004",
			Dimension:    768,
			Timeout:      "30s",
			Enabled:      true,
			RateLimitRPS: 10,
		},
		Matching: MatchingConfig{
			FastMatchThreshold:    0.70,
			CreateNewThreshold:    0.60,
			EnableLLMFallback:     true,
			CandidateTopK:         3,
			SampleChunkCount:      8,
			MaxCandidateTemplates: 10,
		},
		Validation: ValidationConfig{
			ReviewThreshold:      0.60,
			HighConfidence:       0.85,
			MonetaryCapMinor:     100_000_000_00, // $100M sanity cap, in minor units
			DateFutureWindowDays: 30,
			DatePastWindowDays:   3650,
			TotalTolerance:       0.01,
		},
		Query: QueryConfig{
			FastPathThreshold: 0.70,
			MaxExpansions:     3,
			RRFK:              60,
			RRFAlpha:          0.5,
			TopK:              50,
			AnswerK:           10,
			QueryDeadlineMS:   5000,
			FuzzySimilarity:   0.3,
		},
		Search: SearchIndexConfig{
			WeightA:          3,
			WeightB:          2,
			WeightC:          1,
			MaxDynamicFields: 1000,
			KeywordMaxLen:    256,
		},
		Workers: WorkersConfig{
			PoolSize:             8,
			ParseDeadlineMS:      60000,
			ExtractDeadlineMS:    60000,
			SignatureReindexCron: "@every 30s",
		},
		MCP: MCPConfig{Enabled: true, Name: "docuflow"},
	}
}
