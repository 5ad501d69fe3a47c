package config

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// Sink kinds
const (
	SinkStdout     = "stdout"
	SinkClickHouse = "clickhouse"
)

// Config holds all configuration for the application
type Config struct {
	// FTP server
	FTPHost     string
	FTPPort     int
	FTPUsername string
	FTPPassword string
	FTPTLS      bool // Explicit TLS (AUTH TLS)
	FTPInsecure bool // Skip certificate verification
	FTPTimeout  time.Duration
	FTPDebug    bool

	// Retry settings for connect and transient FTP/ClickHouse failures
	RetryMaxAttempts    int
	RetryInitialDelayMs int
	RetryMaxDelayMs     int
	RetryMultiplier     float64

	// Bookmark store
	BookmarkBackend string // bolt, postgres, sqlite or memory
	BookmarkPath    string
	BookmarkDSN     string

	// Harvesting
	LogPaths     []string // Remote log files polled incrementally
	PollInterval time.Duration
	Sink         string // stdout or clickhouse

	// ClickHouse sink
	ClickHouseHost         string
	ClickHousePort         int
	ClickHouseDB           string
	ClickHouseUser         string
	ClickHousePassword     string
	ClickHouseBatchSize    int
	ClickHouseFlushTimeout int64 // Milliseconds

	// Retention
	PruneEnabled       bool
	PrunePath          string
	PrunePattern       string
	PruneRetentionDays int
	PruneInterval      time.Duration
	PruneRules         []PruneRule

	// Observability
	LogLevel        string
	LogFile         string
	TracingEnabled  bool
	TracingEndpoint string
	TracingProtocol string

	// Targets file
	TargetsFile string
}

// Load loads configuration from environment variables and, if set, the
// targets file. A non-empty targetsFile overrides TARGETS_FILE.
func Load(targetsFile string) (*Config, error) {
	cfg := &Config{
		FTPHost:     getEnv("FTP_HOST", ""),
		FTPPort:     getEnvInt("FTP_PORT", 21),
		FTPUsername: getEnv("FTP_USERNAME", "anonymous"),
		FTPPassword: getEnv("FTP_PASSWORD", ""),
		FTPTLS:      getEnvBool("FTP_TLS", false),
		FTPInsecure: getEnvBool("FTP_INSECURE", false),
		FTPTimeout:  getEnvDuration("FTP_TIMEOUT", 30*time.Second),
		FTPDebug:    getEnvBool("FTP_DEBUG", false),

		RetryMaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelayMs: getEnvInt("RETRY_INITIAL_DELAY_MS", 500),
		RetryMaxDelayMs:     getEnvInt("RETRY_MAX_DELAY_MS", 10000),
		RetryMultiplier:     getEnvFloat("RETRY_MULTIPLIER", 2.0),

		BookmarkBackend: getEnv("BOOKMARK_BACKEND", "bolt"),
		BookmarkPath:    getEnv("BOOKMARK_PATH", "data/bookmarks.db"),
		BookmarkDSN:     getEnv("BOOKMARK_DSN", ""),

		LogPaths:     parsePathList(getEnv("LOG_PATHS", "")),
		PollInterval: getEnvDuration("POLL_INTERVAL", time.Minute),
		Sink:         getEnv("SINK", SinkStdout),

		ClickHouseHost:         getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:         getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDB:           getEnv("CLICKHOUSE_DB", "logs"),
		ClickHouseUser:         getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword:     getEnv("CLICKHOUSE_PASSWORD", ""),
		ClickHouseBatchSize:    getEnvInt("CLICKHOUSE_BATCH_SIZE", 500),
		ClickHouseFlushTimeout: int64(getEnvInt("CLICKHOUSE_FLUSH_TIMEOUT_MS", 5000)),

		PruneEnabled:       getEnvBool("PRUNE_ENABLED", false),
		PrunePath:          getEnv("PRUNE_PATH", ""),
		PrunePattern:       getEnv("PRUNE_PATTERN", "*.log"),
		PruneRetentionDays: getEnvInt("PRUNE_RETENTION_DAYS", 15),
		PruneInterval:      getEnvDuration("PRUNE_INTERVAL", time.Hour),

		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		TracingEnabled:  getEnvBool("TRACING_ENABLED", false),
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4317"),
		TracingProtocol: getEnv("TRACING_PROTOCOL", "grpc"),

		TargetsFile: getEnv("TARGETS_FILE", ""),
	}

	if targetsFile != "" {
		cfg.TargetsFile = targetsFile
	}

	if cfg.PrunePath != "" {
		cfg.PruneRules = append(cfg.PruneRules, PruneRule{
			Path:          cfg.PrunePath,
			Pattern:       cfg.PrunePattern,
			RetentionDays: cfg.PruneRetentionDays,
		})
	}

	if cfg.TargetsFile != "" {
		targets, err := LoadTargets(cfg.TargetsFile)
		if err != nil {
			return nil, err
		}
		cfg.apply(targets)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// apply merges the targets file into the environment settings
func (c *Config) apply(t *Targets) {
	c.LogPaths = appendUnique(c.LogPaths, t.Logs...)
	for _, rule := range t.Prune {
		if rule.Pattern == "" {
			rule.Pattern = c.PrunePattern
		}
		if rule.RetentionDays == 0 {
			rule.RetentionDays = c.PruneRetentionDays
		}
		c.PruneRules = append(c.PruneRules, rule)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.FTPHost == "" {
		return fmt.Errorf("FTP_HOST is required")
	}
	if c.FTPPort <= 0 || c.FTPPort > 65535 {
		return fmt.Errorf("FTP_PORT must be between 1 and 65535")
	}
	if c.FTPTimeout <= 0 {
		return fmt.Errorf("FTP_TIMEOUT must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}

	switch c.BookmarkBackend {
	case "bolt", "sqlite":
		if c.BookmarkPath == "" {
			return fmt.Errorf("BOOKMARK_PATH is required for the %s backend", c.BookmarkBackend)
		}
	case "postgres":
		if c.BookmarkDSN == "" {
			return fmt.Errorf("BOOKMARK_DSN is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("BOOKMARK_BACKEND must be one of bolt, postgres, sqlite, memory")
	}

	switch c.Sink {
	case SinkStdout:
	case SinkClickHouse:
		if c.ClickHouseHost == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required")
		}
		if c.ClickHousePort <= 0 || c.ClickHousePort > 65535 {
			return fmt.Errorf("CLICKHOUSE_PORT must be between 1 and 65535")
		}
		if c.ClickHouseDB == "" {
			return fmt.Errorf("CLICKHOUSE_DB is required")
		}
	default:
		return fmt.Errorf("SINK must be %s or %s", SinkStdout, SinkClickHouse)
	}

	// One session serves polls and prunes, and the pruner moves its
	// working directory; relative paths would resolve against it
	for _, p := range c.LogPaths {
		if err := ValidateLogPath(p); err != nil {
			return err
		}
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.PruneInterval <= 0 {
		return fmt.Errorf("PRUNE_INTERVAL must be positive")
	}
	for _, rule := range c.PruneRules {
		if err := rule.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateLogPath rejects remote log paths that are not absolute
func ValidateLogPath(p string) error {
	if !path.IsAbs(p) {
		return fmt.Errorf("LOG_PATHS: %q must be an absolute remote path", p)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// parsePathList parses a semicolon-separated list of paths
func parsePathList(pathsStr string) []string {
	if pathsStr == "" {
		return nil
	}

	paths := strings.Split(pathsStr, ";")
	result := make([]string, 0, len(paths))

	for _, p := range paths {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func appendUnique(list []string, values ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		seen[v] = true
	}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		list = append(list, v)
	}
	return list
}
