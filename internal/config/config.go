package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gradeboard/internal/loader"
)

type Config struct {
	// HTTP Server
	Port           string
	MaxUploadBytes int64
	UploadsPerMin  int
	SecureCookies  bool

	// Default dataset
	DataBackend     string
	DataDir         string
	DatasetCacheTTL time.Duration
	StrictDivisions bool

	// Google Sheets
	GoogleSpreadsheetID   string
	GoogleSheetRange      string
	GoogleCredentialsJSON string
	GoogleCredentialsFile string
	GoogleOAuthClientJSON string
	GoogleOAuthClientFile string
	GoogleOAuthTokenJSON  string
	GoogleOAuthTokenFile  string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Audit worker event log; "none" keeps events in memory only.
	AuditDBPath string

	// Sessions
	SessionTTL  time.Duration
	MaxSessions int

	// Logging
	LogLevel  string
	LogFormat string
}

var validBackends = []string{"memory", "sheets"}

func Load() *Config {
	credFile := getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	if credFile == "" {
		credFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")
	}
	return &Config{
		Port:           getEnv("PORT", "8080"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 5<<20),
		UploadsPerMin:  getEnvInt("UPLOADS_PER_MINUTE", 30),
		SecureCookies:  getEnvBool("SECURE_COOKIES", false),

		DataBackend:     getEnv("DATA_BACKEND", "memory"),
		DataDir:         getEnv("DATA_DIR", "./data"),
		DatasetCacheTTL: getEnvDuration("DATASET_CACHE_TTL", 5*time.Minute),
		StrictDivisions: getEnvBool("STRICT_DIVISIONS", true),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetRange:      getEnv("GOOGLE_SHEET_RANGE", "Results!A:D"),
		GoogleCredentialsJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleCredentialsFile: credFile,
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenJSON:  getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),
		GoogleOAuthTokenFile:  getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gradeboard"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "dataset_loaded"),

		AuditDBPath: getEnv("AUDIT_DB_PATH", "./data/audit.db"),

		SessionTTL:  getEnvDuration("SESSION_TTL", 2*time.Hour),
		MaxSessions: getEnvInt("MAX_SESSIONS", 1000),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// LoaderOptions returns the parsing options for uploads and seed files.
func (c *Config) LoaderOptions() loader.Options {
	opts := loader.DefaultOptions()
	opts.StrictDivisions = c.StrictDivisions
	return opts
}

// AuditStoreEnabled reports whether the audit worker persists events.
func (c *Config) AuditStoreEnabled() bool {
	return c.AuditDBPath != "" && c.AuditDBPath != "none"
}

// AMQPEnabled reports whether load events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetRange == "" {
			errors = append(errors, "Google Sheet range is required when using sheets backend")
		}
		hasServiceAccount := c.GoogleCredentialsJSON != "" || c.GoogleCredentialsFile != ""
		hasOAuth := (c.GoogleOAuthClientJSON != "" || c.GoogleOAuthClientFile != "") &&
			(c.GoogleOAuthTokenJSON != "" || c.GoogleOAuthTokenFile != "")
		if !hasServiceAccount && !hasOAuth {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or an OAuth client and token must be provided for sheets backend")
		}
		if c.GoogleCredentialsJSON == "" && c.GoogleCredentialsFile != "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

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

	if c.MaxUploadBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid max upload bytes %d: must be at least 1024", c.MaxUploadBytes))
	} else if c.MaxUploadBytes > 100<<20 {
		errors = append(errors, fmt.Sprintf("invalid max upload bytes %d: must be at most 100 MiB", c.MaxUploadBytes))
	}
	if c.UploadsPerMin < 1 {
		errors = append(errors, fmt.Sprintf("invalid uploads per minute %d: must be at least 1", c.UploadsPerMin))
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	} else if c.SessionTTL > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at most 7 days", c.SessionTTL))
	}
	if c.MaxSessions < 1 {
		errors = append(errors, fmt.Sprintf("invalid max sessions %d: must be at least 1", c.MaxSessions))
	}
	if c.DatasetCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid dataset cache TTL %v: must be at least 1 second", c.DatasetCacheTTL))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
