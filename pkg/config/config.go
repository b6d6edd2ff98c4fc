package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production
	API  APIConfig

	// Database (ledger backend = postgres)
	Database DatabaseConfig

	// Redis (API response cache)
	Redis RedisConfig

	// Scoring cycle
	Scoring ScoringConfig

	// Ledger + weight tables
	Storage StorageConfig

	// Adaptive weight learner
	Learner LearnerConfig

	// Remote engine providers
	Engines EnginesConfig

	// Feature flags (constructor-injected, never read ad hoc)
	Flags Flags

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// APIConfig bounds the HTTP server. The write deadline is not configured
// directly; it is derived from the batch limit (see ScoreDeadline).
type APIConfig struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxBatch          int // candidates per /api/score request
}

// ScoringConfig controls batch scoring
type ScoringConfig struct {
	Workers          int           // errgroup limit
	CandidateTimeout time.Duration // per-candidate collection timeout
	StrategyFile     string        // optional contract override (YAML)
}

// StorageConfig locates the pick ledger and the weight tables
type StorageConfig struct {
	LedgerBackend string // file | postgres
	LedgerPath    string // JSONL path when LedgerBackend=file
	WeightsDir    string // one <SPORT>.json per sport
}

// LearnerConfig controls the scheduled learner
type LearnerConfig struct {
	Sports   []string
	Schedule string // cron with seconds
}

// EnginesConfig configures HTTP engine providers
type EnginesConfig struct {
	Endpoints     map[string]string // engine → URL
	Timeout       time.Duration
	RatePerSecond float64
}

// Flags enumerates every feature flag and its effect.
type Flags struct {
	// EnableConfluence computes the confluence modifier from engine agreement
	EnableConfluence bool
	// EnableSideCalibration applies the learned OVER/UNDER calibration modifier
	EnableSideCalibration bool
	// EnableHTTPEngines replaces precomputed engine scores with remote providers
	EnableHTTPEngines bool
	// EnableResponseCache caches /api/score responses in Redis
	EnableResponseCache bool
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),
		API: APIConfig{
			ReadTimeout:       getEnvAsDuration("API_READ_TIMEOUT", "15s"),
			ReadHeaderTimeout: getEnvAsDuration("API_READ_HEADER_TIMEOUT", "5s"),
			IdleTimeout:       getEnvAsDuration("API_IDLE_TIMEOUT", "60s"),
			MaxBatch:          getEnvAsInt("API_MAX_BATCH", 500),
		},

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Scoring: ScoringConfig{
			Workers:          getEnvAsInt("SCORING_WORKERS", 8),
			CandidateTimeout: getEnvAsDuration("CANDIDATE_TIMEOUT", "3s"),
			StrategyFile:     getEnv("STRATEGY_FILE", ""),
		},

		Storage: StorageConfig{
			LedgerBackend: strings.ToLower(getEnv("LEDGER_BACKEND", "file")),
			LedgerPath:    getEnv("LEDGER_PATH", "data/picks.jsonl"),
			WeightsDir:    getEnv("WEIGHTS_DIR", "data/weights"),
		},

		Learner: LearnerConfig{
			Sports:   getEnvAsList("LEARNER_SPORTS", "NBA,NFL,MLB,NHL"),
			Schedule: getEnv("LEARNER_SCHEDULE", "0 15 6 * * *"), // 06:15 daily (with seconds)
		},

		Engines: EnginesConfig{
			Endpoints:     getEnvAsMap("ENGINE_ENDPOINTS"),
			Timeout:       getEnvAsDuration("ENGINE_TIMEOUT", "2s"),
			RatePerSecond: getEnvAsFloat("ENGINE_RATE_PER_SECOND", 20),
		},

		Flags: Flags{
			EnableConfluence:      getEnvAsBool("FLAG_CONFLUENCE", true),
			EnableSideCalibration: getEnvAsBool("FLAG_SIDE_CALIBRATION", true),
			EnableHTTPEngines:     getEnvAsBool("FLAG_HTTP_ENGINES", false),
			EnableResponseCache:   getEnvAsBool("FLAG_RESPONSE_CACHE", false),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Storage.LedgerBackend {
	case "file":
		if c.Storage.LedgerPath == "" {
			return fmt.Errorf("LEDGER_PATH is required when LEDGER_BACKEND=file")
		}
	case "postgres":
		// Database URL is required only for the postgres ledger
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when LEDGER_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND must be one of: file, postgres")
	}

	if c.Storage.WeightsDir == "" {
		return fmt.Errorf("WEIGHTS_DIR is required")
	}
	if c.Scoring.Workers < 1 {
		return fmt.Errorf("SCORING_WORKERS must be >= 1")
	}
	if c.Scoring.CandidateTimeout <= 0 {
		return fmt.Errorf("CANDIDATE_TIMEOUT must be > 0")
	}
	if c.API.MaxBatch < 1 {
		return fmt.Errorf("API_MAX_BATCH must be >= 1")
	}
	if c.API.ReadTimeout <= 0 || c.API.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("API_READ_TIMEOUT and API_READ_HEADER_TIMEOUT must be > 0")
	}
	if c.Flags.EnableHTTPEngines && len(c.Engines.Endpoints) == 0 {
		return fmt.Errorf("ENGINE_ENDPOINTS is required when FLAG_HTTP_ENGINES=true")
	}
	if c.Flags.EnableResponseCache && !c.Redis.Enabled {
		return fmt.Errorf("REDIS_ENABLED must be true when FLAG_RESPONSE_CACHE=true")
	}

	return nil
}

// ScoreDeadline is the worst-case duration of one /api/score batch: every
// wave of Workers candidates can run into CandidateTimeout.
func (c *Config) ScoreDeadline() time.Duration {
	waves := (c.API.MaxBatch + c.Scoring.Workers - 1) / c.Scoring.Workers
	return time.Duration(waves) * c.Scoring.CandidateTimeout
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList parses "a,b,c"
func getEnvAsList(key string, defaultValue string) []string {
	valueStr := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAsMap parses "k1=v1,k2=v2"; malformed pairs are skipped
func getEnvAsMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvAsList(key, "") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
