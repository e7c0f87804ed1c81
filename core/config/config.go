package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"basegraph.app/counsel/core/db"
)

type Config struct {
	OTel             OTelConfig
	Redis            RedisConfig
	Typesense        TypesenseConfig
	Orchestration    OrchestrationConfig
	RouterLLM        LLMConfig
	InterrogationLLM LLMConfig
	DraftLLM         LLMConfig
	ReviewLLM        LLMConfig
	Env              string
	Port             string
	NodeID           int64
	DB               db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRatio    float64
}

type RedisConfig struct {
	URL          string
	StatusPrefix   string // stream key prefix for per-session status updates
	LockPrefix     string // key prefix for per-session locks
	SnapshotPrefix string // key prefix for session snapshots shared between replicas
}

type TypesenseConfig struct {
	URL        string
	APIKey     string
	Collection string
}

type OrchestrationConfig struct {
	LLMCallTimeout        time.Duration // hard deadline for a single model call
	SessionLockTTL        time.Duration
	SessionLockWait       time.Duration // how long a turn waits for a busy session
	SessionSnapshotTTL    time.Duration // idle lifetime of a shared session snapshot
	WorksheetWriteTimeout time.Duration
	CaseFileDir           string // local worksheet directory, used when no database is configured
	CaseFileSQLitePath    string // embedded worksheet database, preferred over CaseFileDir
	Disclaimer            string // overrides the default disclaimer sentinel when set
}

type LLMConfig struct {
	Provider          string // "openai" or "anthropic"
	APIKey            string
	BaseURL           string // Optional: for custom endpoints
	Model             string
	MaxTokens         int
	RequestsPerSecond float64 // 0 = unlimited
}

// Load loads configuration from environment variables.
// In development, it loads .env first; real environment variables always win.
func Load() (Config, error) {
	if getEnv("COUNSEL_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	env := getEnv("COUNSEL_ENV", "development")

	cfg := Config{
		Env:    env,
		Port:   getEnv("PORT", "8080"),
		NodeID: int64(getEnvInt("NODE_ID", 1)),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "counsel"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    env,
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			StatusPrefix:   getEnv("REDIS_STATUS_PREFIX", "counsel-status"),
			LockPrefix:     getEnv("REDIS_LOCK_PREFIX", "counsel-lock"),
			SnapshotPrefix: getEnv("REDIS_SNAPSHOT_PREFIX", "counsel-session"),
		},
		Typesense: loadTypesense(),
		Orchestration: OrchestrationConfig{
			LLMCallTimeout:        getEnvDuration("LLM_CALL_TIMEOUT", 60*time.Second),
			SessionLockTTL:        getEnvDuration("SESSION_LOCK_TTL", 5*time.Minute),
			SessionLockWait:       getEnvDuration("SESSION_LOCK_WAIT", 30*time.Second),
			SessionSnapshotTTL:    getEnvDuration("SESSION_SNAPSHOT_TTL", 24*time.Hour),
			WorksheetWriteTimeout: getEnvDuration("WORKSHEET_WRITE_TIMEOUT", 5*time.Second),
			CaseFileDir:           getEnv("CASE_FILE_DIR", ""),
			CaseFileSQLitePath:    getEnv("CASE_FILE_SQLITE_PATH", ""),
			Disclaimer:            getEnv("DISCLAIMER_TEXT", ""),
		},
		RouterLLM:        loadLLM("ROUTER", "gpt-4o-mini", 1024),
		InterrogationLLM: loadLLM("INTERROGATION", "gpt-4o", 4096),
		DraftLLM:         loadLLM("DRAFT", "gpt-4o", 8192),
		ReviewLLM:        loadLLM("REVIEW", "gpt-4o", 8192),
	}

	if !cfg.DraftLLM.Enabled() {
		return Config{}, fmt.Errorf("DRAFT_LLM_API_KEY (or LLM_API_KEY) and a supported DRAFT_LLM_PROVIDER are required")
	}
	if !cfg.ReviewLLM.Enabled() {
		return Config{}, fmt.Errorf("REVIEW_LLM_API_KEY (or LLM_API_KEY) and a supported REVIEW_LLM_PROVIDER are required")
	}

	return cfg, nil
}

// LoadTypesense reads only the legal corpus settings. The corpus CLI uses it so indexing
// does not need model credentials.
func LoadTypesense() TypesenseConfig {
	if getEnv("COUNSEL_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}
	return loadTypesense()
}

func loadTypesense() TypesenseConfig {
	return TypesenseConfig{
		URL:        getEnv("TYPESENSE_URL", ""),
		APIKey:     getEnv("TYPESENSE_API_KEY", ""),
		Collection: getEnv("TYPESENSE_COLLECTION", "legal_texts"),
	}
}

// loadLLM reads <PREFIX>_LLM_* variables, falling back to the shared LLM_* values so a
// single key can drive every stage.
func loadLLM(prefix, defaultModel string, defaultMaxTokens int) LLMConfig {
	key := func(name string) string { return prefix + "_LLM_" + name }

	return LLMConfig{
		Provider:          getEnv(key("PROVIDER"), getEnv("LLM_PROVIDER", "openai")),
		APIKey:            getEnv(key("API_KEY"), getEnv("LLM_API_KEY", "")),
		BaseURL:           getEnv(key("BASE_URL"), getEnv("LLM_BASE_URL", "")),
		Model:             getEnv(key("MODEL"), defaultModel),
		MaxTokens:         getEnvInt(key("MAX_TOKENS"), defaultMaxTokens),
		RequestsPerSecond: getEnvFloat(key("RPS"), 0),
	}
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func (c TypesenseConfig) Enabled() bool {
	return c.URL != "" && c.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
