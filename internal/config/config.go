package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is resolved once at
// startup and passed through every component; nothing reads the
// environment after Load returns.
type Config struct {
	Paths    PathsConfig
	Scan     ScanConfig
	Cloud    CloudConfig
	Scanners ScannersConfig
	Logging  LoggingConfig
}

// PathsConfig contains the filesystem layout
type PathsConfig struct {
	Home           string
	QuarantineRoot string
	ApprovedRoot   string
	LogDir         string
	ReportDir      string
	CacheDir       string
	ConfigFile     string
	TokenFile      string
}

// ScanConfig contains phase-detection settings
type ScanConfig struct {
	Workers        int
	MaxFileSize    int64
	IgnoreFileName string
}

// CloudConfig contains cloud intelligence client settings
type CloudConfig struct {
	BaseURL      string
	HTTPTimeout  time.Duration
	TokenTTL     time.Duration
	SignatureTTL time.Duration
}

// ScannersConfig contains external scanner settings
type ScannersConfig struct {
	Timeout time.Duration
	Enabled bool
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	home := getEnv("SIGIL_HOME", defaultHome())

	cfg := &Config{
		Paths: PathsConfig{
			Home:           home,
			QuarantineRoot: getEnv("SIGIL_QUARANTINE_DIR", filepath.Join(home, "quarantine")),
			ApprovedRoot:   getEnv("SIGIL_APPROVED_DIR", filepath.Join(home, "approved")),
			LogDir:         getEnv("SIGIL_LOG_DIR", filepath.Join(home, "logs")),
			ReportDir:      getEnv("SIGIL_REPORT_DIR", filepath.Join(home, "reports")),
			CacheDir:       getEnv("SIGIL_CACHE_DIR", filepath.Join(home, "cache")),
			ConfigFile:     getEnv("SIGIL_CONFIG_FILE", filepath.Join(home, "config.yaml")),
			TokenFile:      getEnv("SIGIL_TOKEN_FILE", filepath.Join(home, "token.json")),
		},
		Scan: ScanConfig{
			Workers:        getEnvAsInt("SIGIL_WORKERS", runtime.NumCPU()),
			MaxFileSize:    getEnvAsInt64("SIGIL_MAX_FILE_SIZE", 5_000_000),
			IgnoreFileName: getEnv("SIGIL_IGNORE_FILE", ".sigilignore"),
		},
		Cloud: CloudConfig{
			BaseURL:      getEnv("SIGIL_API_URL", "https://api.sigil.nomark.dev"),
			HTTPTimeout:  getEnvAsDuration("SIGIL_HTTP_TIMEOUT", 30*time.Second),
			TokenTTL:     getEnvAsDuration("SIGIL_TOKEN_TTL", 60*time.Minute),
			SignatureTTL: getEnvAsDuration("SIGIL_SIGNATURE_TTL", 24*time.Hour),
		},
		Scanners: ScannersConfig{
			Timeout: getEnvAsDuration("SIGIL_SCANNER_TIMEOUT", 2*time.Minute),
			Enabled: getEnvAsBool("SIGIL_SCANNERS_ENABLED", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("SIGIL_LOG_LEVEL", "info"),
			Format: getEnv("SIGIL_LOG_FORMAT", "console"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Scan.Workers < 1 {
		return fmt.Errorf("SIGIL_WORKERS must be at least 1, got %d", c.Scan.Workers)
	}
	if c.Cloud.HTTPTimeout <= 0 {
		return fmt.Errorf("SIGIL_HTTP_TIMEOUT must be positive")
	}
	if c.Scanners.Timeout <= 0 {
		return fmt.Errorf("SIGIL_SCANNER_TIMEOUT must be positive")
	}
	if c.Paths.QuarantineRoot == c.Paths.ApprovedRoot {
		return fmt.Errorf("quarantine and approved roots must differ")
	}
	return nil
}

// EnsureDirs creates the directory layout with owner-only permissions.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.Paths.Home,
		c.Paths.QuarantineRoot,
		c.Paths.ApprovedRoot,
		c.Paths.LogDir,
		c.Paths.ReportDir,
		c.Paths.CacheDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sigil"
	}
	return filepath.Join(home, ".sigil")
}

// Helper functions

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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
