package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chessreg/backend/internal/domain/school"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Billing   BillingConfig
	Import    ImportConfig
	Sweep     SweepConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite; for sqlite DBName is the file path
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. When disabled, per-key locks
// are held in process memory.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	LockTTL  time.Duration
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string

	// ImportsPerMinute limits import requests per client; 0 disables the limit
	ImportsPerMinute int
	ImportBurst      int
}

// BillingConfig holds the billing service connection settings
type BillingConfig struct {
	BaseURL           string
	AccessToken       string
	LocationID        string
	APIVersion        string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	PageSize          int
	MembershipFee     string // decimal string, e.g. "24.00"
}

// ImportConfig holds importer settings
type ImportConfig struct {
	Workers           int
	Actor             string // editor recorded on registrant history entries
	PlaceholderPrefix string
	NodeID            int64 // snowflake node id for placeholder suffixes
	InvoiceTimeout    time.Duration
	SchoolCodes       []school.CodeMapping
}

// SweepConfig holds the scheduled status sweep settings
type SweepConfig struct {
	Enabled    bool
	Interval   time.Duration
	Workers    int
	JobTimeout time.Duration
	BatchSize  int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with REG_ prefix (e.g., REG_BILLING_ACCESS_TOKEN)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("REG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			ImportsPerMinute: v.GetInt("http.imports_per_minute"),
			ImportBurst:      v.GetInt("http.import_burst"),
		},
		Billing: BillingConfig{
			BaseURL:           v.GetString("billing.base_url"),
			AccessToken:       v.GetString("billing.access_token"),
			LocationID:        v.GetString("billing.location_id"),
			APIVersion:        v.GetString("billing.api_version"),
			RequestTimeout:    v.GetDuration("billing.request_timeout"),
			RequestsPerSecond: v.GetFloat64("billing.requests_per_second"),
			Burst:             v.GetInt("billing.burst"),
			PageSize:          v.GetInt("billing.page_size"),
			MembershipFee:     v.GetString("billing.membership_fee"),
		},
		Import: ImportConfig{
			Workers:           v.GetInt("import.workers"),
			Actor:             v.GetString("import.actor"),
			PlaceholderPrefix: v.GetString("import.placeholder_prefix"),
			NodeID:            v.GetInt64("import.node_id"),
			InvoiceTimeout:    v.GetDuration("import.invoice_timeout"),
		},
		Sweep: SweepConfig{
			Enabled:    v.GetBool("sweep.enabled"),
			Interval:   v.GetDuration("sweep.interval"),
			Workers:    v.GetInt("sweep.workers"),
			JobTimeout: v.GetDuration("sweep.job_timeout"),
			BatchSize:  v.GetInt("sweep.batch_size"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
	}

	if err := v.UnmarshalKey("import.school_codes", &cfg.Import.SchoolCodes); err != nil {
		return nil, fmt.Errorf("error reading import.school_codes: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "chessreg-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "chessreg"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 2 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// imports of long ranges run inside the request
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.ImportsPerMinute > 0 && cfg.HTTP.ImportBurst == 0 {
		cfg.HTTP.ImportBurst = 1
	}
	if cfg.Billing.BaseURL == "" {
		cfg.Billing.BaseURL = "https://connect.squareup.com"
	}
	if cfg.Billing.APIVersion == "" {
		cfg.Billing.APIVersion = "2024-07-17"
	}
	if cfg.Billing.RequestTimeout == 0 {
		cfg.Billing.RequestTimeout = 20 * time.Second
	}
	if cfg.Billing.RequestsPerSecond == 0 {
		cfg.Billing.RequestsPerSecond = 10
	}
	if cfg.Billing.Burst == 0 {
		cfg.Billing.Burst = 5
	}
	if cfg.Billing.PageSize == 0 {
		cfg.Billing.PageSize = 100
	}
	if cfg.Billing.MembershipFee == "" {
		cfg.Billing.MembershipFee = "24.00"
	}
	if cfg.Import.Workers == 0 {
		cfg.Import.Workers = 4
	}
	if cfg.Import.Actor == "" {
		cfg.Import.Actor = "External Import"
	}
	if cfg.Import.PlaceholderPrefix == "" {
		cfg.Import.PlaceholderPrefix = "TEMP"
	}
	if cfg.Import.InvoiceTimeout == 0 {
		cfg.Import.InvoiceTimeout = time.Minute
	}
	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = 15 * time.Minute
	}
	if cfg.Sweep.Workers == 0 {
		cfg.Sweep.Workers = 3
	}
	if cfg.Sweep.JobTimeout == 0 {
		cfg.Sweep.JobTimeout = time.Minute
	}
	if cfg.Sweep.BatchSize == 0 {
		cfg.Sweep.BatchSize = 200
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "chessreg-backend"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Import.Workers < 1 {
		return fmt.Errorf("import.workers must be at least 1")
	}
	if c.Import.NodeID < 0 || c.Import.NodeID > 1023 {
		return fmt.Errorf("import.node_id must be between 0 and 1023, got %d", c.Import.NodeID)
	}
	for i, code := range c.Import.SchoolCodes {
		if strings.TrimSpace(code.Code) == "" {
			return fmt.Errorf("import.school_codes[%d].code cannot be empty", i)
		}
	}
	if c.Sweep.Workers < 1 {
		return fmt.Errorf("sweep.workers must be at least 1")
	}

	if c.App.Env == "production" {
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
