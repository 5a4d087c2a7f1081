// Package config loads settings from the environment and optional .env
// files. Command-line flags override what is loaded here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// Store backends
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Config struct {
	Store      StoreConfig
	Server     ServerConfig
	Logger     LoggerConfig
	QuickBooks QuickBooksConfig
	Hostaway   HostawayConfig

	// PropertyTZ is the IANA location every date is pinned to
	PropertyTZ     string
	RulesFile      string
	PropertiesFile string
	RetentionYears int
	ArchiveBucket  string
}

type StoreConfig struct {
	Backend         string
	SQLitePath      string
	ProjectID       string
	CredentialsFile string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// CORSOrigins lists origins allowed to call the API; "*" allows any
	CORSOrigins []string
	StaticDir   string
	UploadDir   string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type QuickBooksConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseURL      string
	TokenURL     string
	RatePerMin   int
}

type HostawayConfig struct {
	AccountID string
	APIKey    string
	BaseURL   string
}

// envFiles are tried in order; the first that loads wins
var envFiles = []string{".env", "../.env", "../../.env"}

// Load reads the first .env file found (if any) and then the environment.
// Variables already set in the environment take precedence over .env.
func Load() (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			break
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only
func FromEnv() (*Config, error) {
	retention, err := getEnvInt("RETENTION_YEARS", 3)
	if err != nil {
		return nil, err
	}
	rate, err := getEnvInt("QB_RATE_PER_MIN", 450)
	if err != nil {
		return nil, err
	}
	readTimeout, err := getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Store: StoreConfig{
			Backend:         getEnv("STORE_BACKEND", BackendSQLite),
			SQLitePath:      getEnv("SQLITE_PATH", "strdash.db"),
			ProjectID:       getEnv("GCP_PROJECT_ID", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("CORS_ORIGINS"),
			StaticDir:    getEnv("STATIC_DIR", "./dist"),
			UploadDir:    getEnv("UPLOAD_DIR", ""),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		QuickBooks: QuickBooksConfig{
			ClientID:     getEnv("QB_CLIENT_ID", ""),
			ClientSecret: getEnv("QB_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("QB_REDIRECT_URI", ""),
			BaseURL:      getEnv("QB_BASE_URL", "https://quickbooks.api.intuit.com"),
			TokenURL:     getEnv("QB_TOKEN_URL", "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"),
			RatePerMin:   rate,
		},
		Hostaway: HostawayConfig{
			AccountID: getEnv("HOSTAWAY_ACCOUNT_ID", ""),
			APIKey:    getEnv("HOSTAWAY_API_KEY", ""),
			BaseURL:   getEnv("HOSTAWAY_BASE_URL", "https://api.hostaway.com"),
		},
		PropertyTZ:     getEnv("PROPERTY_TZ", domain.DefaultLocation),
		RulesFile:      getEnv("RULES_FILE", ""),
		PropertiesFile: getEnv("PROPERTIES_FILE", ""),
		RetentionYears: retention,
		ArchiveBucket:  getEnv("ARCHIVE_BUCKET", ""),
	}, nil
}

// Validate checks cross-field requirements
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendFirestore:
		if c.Store.ProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want memory, sqlite or firestore)", c.Store.Backend)
	}
	if _, err := time.LoadLocation(c.PropertyTZ); err != nil {
		return fmt.Errorf("invalid PROPERTY_TZ %q: %w", c.PropertyTZ, err)
	}
	if c.RetentionYears < 1 {
		return fmt.Errorf("RETENTION_YEARS must be at least 1, got %d", c.RetentionYears)
	}
	if c.QuickBooks.RatePerMin < 1 {
		return fmt.Errorf("QB_RATE_PER_MIN must be positive, got %d", c.QuickBooks.RatePerMin)
	}
	return nil
}

// QuickBooksEnabled reports whether OAuth client credentials are configured
func (c *Config) QuickBooksEnabled() bool {
	return c.QuickBooks.ClientID != "" && c.QuickBooks.ClientSecret != ""
}

// HostawayEnabled reports whether Hostaway credentials are configured
func (c *Config) HostawayEnabled() bool {
	return c.Hostaway.AccountID != "" && c.Hostaway.APIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
