package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverPostgREST = "postgrest"
)

const (
	PermRunMaintenance  = "maintenance:run"
	PermReadMaintenance = "maintenance:read"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Trigger    TriggerConfig    `yaml:"trigger"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver    string          `yaml:"driver"`
	Path      string          `yaml:"path"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	PostgREST PostgRESTConfig `yaml:"postgrest"`
}

type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConnections int    `yaml:"max_connections"`
}

// PostgRESTConfig points at a hosted backend. ServiceKey must be the
// privileged service-role key, never an end-user token.
type PostgRESTConfig struct {
	URL        string        `yaml:"url"`
	ServiceKey string        `yaml:"service_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

// APIAuthConfig is on unless Disabled is set explicitly.
type APIAuthConfig struct {
	Disabled    bool         `yaml:"disabled"`
	ServiceKeys []ServiceKey `yaml:"service_keys"`
}

// ServiceKey is a privileged credential accepted as a bearer token.
// An empty Permissions list grants everything.
type ServiceKey struct {
	Name        string   `yaml:"name"`
	Key         string   `yaml:"key"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

type TriggerConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	ServiceKey string        `yaml:"service_key"`
	Schedule   string        `yaml:"schedule"`
	Timeout    time.Duration `yaml:"timeout"`
	Retry      RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate rejects structurally invalid configs. Absent persistence
// credentials are not an error here; the service reports them per request.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverPostgREST:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.API.HTTP.Port < 0 || c.API.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.API.HTTP.Port)
	}

	if !c.API.Auth.Disabled && len(c.API.Auth.ServiceKeys) == 0 {
		return errors.New("api.auth.service_keys is required unless api.auth.disabled is set")
	}

	return ValidateServiceKeys(c.API.Auth.ServiceKeys)
}

func ValidateServiceKeys(keys []ServiceKey) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("service key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate service key for '%s'", k.Name)
		}
		seen[k.Key] = true
		for _, p := range k.Permissions {
			switch strings.TrimSpace(p) {
			case PermRunMaintenance, PermReadMaintenance:
			default:
				return fmt.Errorf("service key '%s' has unknown permission %q", k.Name, p)
			}
		}
	}
	return nil
}

// HasPersistenceCredentials reports whether the selected driver has what it
// needs to reach its backend.
func (d DatabaseConfig) HasPersistenceCredentials() bool {
	switch d.Driver {
	case DriverSQLite:
		return d.Path != ""
	case DriverPostgres:
		return d.Postgres.DSN != ""
	case DriverPostgREST:
		return d.PostgREST.URL != "" && d.PostgREST.ServiceKey != ""
	default:
		return false
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "mobilemech-autocancel"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Postgres.MaxConnections == 0 {
		c.Database.Postgres.MaxConnections = 10
	}
	if c.Database.PostgREST.Timeout == 0 {
		c.Database.PostgREST.Timeout = 30 * time.Second
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if len(c.API.CORS.AllowedOrigins) == 0 {
		c.API.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.API.CORS.AllowedHeaders) == 0 {
		c.API.CORS.AllowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "appointments.auto_cancelled"
	}

	if c.Trigger.Schedule == "" {
		c.Trigger.Schedule = "*/5 * * * *"
	}
	if c.Trigger.Timeout == 0 {
		c.Trigger.Timeout = 30 * time.Second
	}
	if c.Trigger.Retry.MaxRetries == 0 {
		c.Trigger.Retry.MaxRetries = 3
	}
	if c.Trigger.Retry.InitialDelay == 0 {
		c.Trigger.Retry.InitialDelay = 2 * time.Second
	}
	if c.Trigger.Retry.MaxDelay == 0 {
		c.Trigger.Retry.MaxDelay = time.Minute
	}
	if c.Trigger.Retry.BackoffFactor == 0 {
		c.Trigger.Retry.BackoffFactor = 2
	}
}
