package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Log      LogConfig
	Cache    CacheConfig
	Registry RegistryConfig
	Realtime RealtimeConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"3000"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"` // REST routes only
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"stall-lottery"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LoginKey    string `envconfig:"LOGIN_KEY" default:""` // Operator (big screen) key, empty disables the check
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"` // json or console
}

// CacheConfig holds settings for the participant lookup cache.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"30s"`

	RedisHost      string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort      int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"stall-lottery"`
}

// RegistryConfig holds durable store settings.
type RegistryConfig struct {
	Type string `envconfig:"REGISTRY_DB_TYPE" default:"sqlite"` // sqlite, postgres or mysql
	Path string `envconfig:"REGISTRY_DB_PATH" default:"./data/stall.db"`
	// PostgreSQL / MySQL settings
	Host     string `envconfig:"REGISTRY_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"REGISTRY_DB_PORT" default:"0"`
	Name     string `envconfig:"REGISTRY_DB_NAME" default:"stall_lottery"`
	User     string `envconfig:"REGISTRY_DB_USER" default:"stall"`
	Password string `envconfig:"REGISTRY_DB_PASS" default:""`
	SSLMode  string `envconfig:"REGISTRY_DB_SSLMODE" default:"disable"`

	MaxOpenConns int `envconfig:"REGISTRY_DB_MAX_OPEN_CONNS" default:"10"`

	// How often stall class person counts are recomputed. Zero disables the scheduler.
	SyncInterval time.Duration `envconfig:"REGISTRY_SYNC_INTERVAL" default:"10m"`
}

// RealtimeConfig holds websocket observer settings.
type RealtimeConfig struct {
	SendBuffer     int           `envconfig:"WS_SEND_BUFFER" default:"64"`
	PingInterval   time.Duration `envconfig:"WS_PING_INTERVAL" default:"25s"`
	WriteTimeout   time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	MaxMessageSize int64         `envconfig:"WS_MAX_MESSAGE_SIZE" default:"65536"`
	AllowedOrigins []string      `envconfig:"WS_ALLOWED_ORIGINS" default:"*"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresDSN returns the PostgreSQL connection string.
func (r *RegistryConfig) PostgresDSN() string {
	port := r.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(r.User), url.QueryEscape(r.Password), r.Host, port, r.Name, r.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (r *RegistryConfig) MySQLDSN() string {
	port := r.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		r.User, r.Password, r.Host, port, r.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	switch cfg.Registry.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return nil, fmt.Errorf("unsupported REGISTRY_DB_TYPE %q", cfg.Registry.Type)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unsupported CACHE_TYPE %q", cfg.Cache.Type)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
