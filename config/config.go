package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: prediction history is disabled when nil
	Auth          AuthConfig
	Providers     ProvidersConfig
	Batch         BatchConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds bearer-token authentication settings.
// Authentication is disabled when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// ProvidersConfig holds the classification provider configurations
type ProvidersConfig struct {
	OpenAI   OpenAIConfig
	ClearTax ClearTaxConfig
}

// OpenAIConfig holds the primary classifier configuration
type OpenAIConfig struct {
	APIKey      string
	OrgID       string // Sent as OpenAI-Organization when set
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	RateLimit   float64 // requests per second, 0 disables throttling
	RateBurst   int
}

// ClearTaxConfig holds the fallback lookup service configuration
type ClearTaxConfig struct {
	APIKey      string
	URL         string
	ServiceName string
	Timeout     time.Duration
	SchemaFile  string // Optional TOML file naming the reply fields
}

// BatchConfig holds batch classification limits
type BatchConfig struct {
	RowTimeout     time.Duration // Zero disables the per-row deadline
	MaxUploadBytes int64
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 10*time.Minute),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
			Audience:  getEnv("AUTH_JWT_AUDIENCE", ""),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:      getEnv("OPENAI_API_KEY", ""),
				OrgID:       getEnv("OPENAI_ORG_ID", ""),
				BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:       getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
				Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
				MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 250),
				Temperature: getEnvAsFloat("OPENAI_TEMPERATURE", 0.7),
				RateLimit:   getEnvAsFloat("OPENAI_RATE_LIMIT", 0),
				RateBurst:   getEnvAsInt("OPENAI_RATE_BURST", 1),
			},
			ClearTax: ClearTaxConfig{
				APIKey:      getEnv("CLEARTAX_API_KEY", ""),
				URL:         getEnv("CLEARTAX_API_URL", ""),
				ServiceName: getEnv("CLEARTAX_SERVICE_NAME", "ClearTax API"),
				Timeout:     getEnvAsDuration("CLEARTAX_TIMEOUT", 30*time.Second),
				SchemaFile:  getEnv("CLEARTAX_SCHEMA_FILE", ""),
			},
		},
		Batch: BatchConfig{
			RowTimeout:     getEnvAsDuration("BATCH_ROW_TIMEOUT", 0),
			MaxUploadBytes: int64(getEnvAsInt("BATCH_MAX_UPLOAD_BYTES", 10<<20)),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", c.Server.Port)
	}

	// Database validation, only when history is enabled
	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Provider validation
	if c.Providers.OpenAI.MaxTokens <= 0 {
		return fmt.Errorf("OPENAI_MAX_TOKENS must be positive")
	}
	if c.Providers.OpenAI.Temperature < 0 || c.Providers.OpenAI.Temperature > 2 {
		return fmt.Errorf("OPENAI_TEMPERATURE must be between 0 and 2")
	}
	if c.Providers.OpenAI.RateLimit < 0 {
		return fmt.Errorf("OPENAI_RATE_LIMIT cannot be negative")
	}
	if c.Providers.OpenAI.RateLimit > 0 && c.Providers.OpenAI.RateBurst <= 0 {
		return fmt.Errorf("OPENAI_RATE_BURST must be positive when OPENAI_RATE_LIMIT is set")
	}
	if c.IsProduction() && c.Providers.OpenAI.APIKey == "" && !c.Providers.ClearTax.Configured() {
		return fmt.Errorf("at least one classification provider must be configured in production")
	}

	// Auth validation
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 16 characters")
	}

	// Batch validation
	if c.Batch.RowTimeout < 0 {
		return fmt.Errorf("BATCH_ROW_TIMEOUT cannot be negative")
	}
	if c.Batch.MaxUploadBytes <= 0 {
		return fmt.Errorf("BATCH_MAX_UPLOAD_BYTES must be positive")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	switch c.Observability.LogFormat {
	case "json", "console", "text":
	default:
		return fmt.Errorf("unsupported log format %q", c.Observability.LogFormat)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// HistoryEnabled reports whether prediction history is persisted
func (c *Config) HistoryEnabled() bool {
	return c.Database != nil
}

// AuthEnabled reports whether bearer-token authentication is required
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

// Configured reports whether both the lookup API key and URL are set
func (c *ClearTaxConfig) Configured() bool {
	return c.APIKey != "" && c.URL != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() *DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return &pool
	}

	host := getEnv("DB_HOST", "")
	if host == "" {
		return nil
	}

	pool.Host = host
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "hsn")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return &pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
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

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
