package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Replay policies for remote writes that fail.
const (
	ReplayDrop  = "drop"
	ReplayQueue = "queue"
)

type Config struct {
	// HTTP Server
	Port        string
	CORSOrigins []string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Local persistence
	LocalBackend string
	SQLiteDBPath string
	DataFile     string
	CatalogFile  string

	// Remote document
	RemoteBackend    string
	RemoteCollection string
	RemoteDocument   string
	RemoteTimeout    time.Duration
	RemoteReplay     string
	// RemoteReconnect is how often the tracker retries a remote it has
	// no change feed from.
	RemoteReconnect time.Duration

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	SheetsPollInterval       time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Replay worker
	SyncInterval   time.Duration
	SyncMaxRetries int

	// HTTP hardening and caching
	RateLimitRPS   float64
	RateLimitBurst int
	CacheSize      int
	CacheTTL       time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "3000"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogFile:   getEnv("LOG_FILE", ""),

		LocalBackend: getEnv("LOCAL_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/gastos.db"),
		DataFile:     getEnv("DATA_FILE", "./data/gastos.json"),
		CatalogFile:  getEnv("CATALOG_FILE", "./gastos-fijos.json"),

		RemoteBackend:    getEnv("REMOTE_BACKEND", "none"),
		RemoteCollection: getEnv("REMOTE_COLLECTION", "gastos-compartidos"),
		RemoteDocument:   getEnv("REMOTE_DOCUMENT", "datos-principales"),
		RemoteTimeout:    getEnvDuration("REMOTE_TIMEOUT", 10*time.Second),
		RemoteReplay:     getEnv("REMOTE_REPLAY", ReplayDrop),
		RemoteReconnect:  getEnvDuration("REMOTE_RECONNECT_INTERVAL", 15*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Gastos"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		SheetsPollInterval:       getEnvDuration("SHEETS_POLL_INTERVAL", 15*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gastos"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "remote_replay"),

		SyncInterval:   getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		SyncMaxRetries: getEnvInt("SYNC_MAX_RETRIES", 5),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),
		CacheSize:      getEnvInt("CACHE_SIZE", 128),
		CacheTTL:       getEnvDuration("CACHE_TTL", 5*time.Minute),
	}

	return cfg
}

// RemoteEnabled reports whether a remote document store is configured.
func (c *Config) RemoteEnabled() bool {
	return c.RemoteBackend != "" && c.RemoteBackend != "none"
}

// ReplayEnabled reports whether failed remote writes are queued for replay.
func (c *Config) ReplayEnabled() bool {
	return c.RemoteEnabled() && c.RemoteReplay == ReplayQueue
}

// NeedsSQLite reports whether the SQLite database must be opened, either as
// the local store or to hold the replay state.
func (c *Config) NeedsSQLite() bool {
	return c.LocalBackend == "sqlite" || c.ReplayEnabled()
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !oneOf(c.LocalBackend, "sqlite", "file", "memory") {
		errors = append(errors, fmt.Sprintf("invalid local backend '%s': must be one of [sqlite file memory]", c.LocalBackend))
	}
	if !oneOf(c.RemoteBackend, "none", "redis", "sheets", "memory") {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of [none redis sheets memory]", c.RemoteBackend))
	}
	if !oneOf(c.RemoteReplay, ReplayDrop, ReplayQueue) {
		errors = append(errors, fmt.Sprintf("invalid remote replay policy '%s': must be '%s' or '%s'", c.RemoteReplay, ReplayDrop, ReplayQueue))
	}

	if c.NeedsSQLite() {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend or queued replay")
		} else if err := ensureDir(c.SQLiteDBPath); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if c.LocalBackend == "file" {
		if c.DataFile == "" {
			errors = append(errors, "DATA_FILE cannot be empty when using file backend")
		} else if err := ensureDir(c.DataFile); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if c.RemoteEnabled() {
		if c.RemoteCollection == "" || c.RemoteDocument == "" {
			errors = append(errors, "remote collection and document names cannot be empty")
		}
		if c.RemoteTimeout < 100*time.Millisecond {
			errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must be at least 100ms", c.RemoteTimeout))
		}
		if c.RemoteReconnect < time.Second {
			errors = append(errors, fmt.Sprintf("invalid remote reconnect interval %v: must be at least 1 second", c.RemoteReconnect))
		}
	}

	if c.RemoteBackend == "redis" {
		if c.RedisAddr == "" {
			errors = append(errors, "REDIS_ADDR is required when using redis backend")
		}
		if c.RedisDB < 0 {
			errors = append(errors, fmt.Sprintf("invalid redis db %d: must not be negative", c.RedisDB))
		}
	}

	// Validate Google Sheets configuration if backend is sheets
	if c.RemoteBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
		if c.SheetsPollInterval < time.Second {
			errors = append(errors, fmt.Sprintf("invalid sheets poll interval %v: must be at least 1 second", c.SheetsPollInterval))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate worker configuration
	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.SyncMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync max retries %d: must be at least 1", c.SyncMaxRetries))
	}

	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create directory '%s': %v", dir, err)
		}
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
