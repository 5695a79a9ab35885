package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration shared by all binaries
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MarketplaceConfig holds marketplace REST/websocket API configuration
type MarketplaceConfig struct {
	APIURL            string        `mapstructure:"api_url"`
	WebSocketURL      string        `mapstructure:"websocket_url"`
	APIKey            string        `mapstructure:"api_key"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	RetryInterval     time.Duration `mapstructure:"retry_interval"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// AssetsConfig holds digital-asset resolver configuration
type AssetsConfig struct {
	RPCURL      string        `mapstructure:"rpc_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// SyncConfig holds sync engine scheduling configuration
type SyncConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	MetadataWorkers int           `mapstructure:"metadata_workers"`
	MetadataTimeout time.Duration `mapstructure:"metadata_timeout"`
}

// NATSConfig holds NATS JetStream configuration. An empty URL disables
// mutation event publishing.
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// AuthConfig holds signature verification configuration
type AuthConfig struct {
	MaxSignatureAge time.Duration `mapstructure:"max_signature_age"`
}

// SyncerConfig is the full configuration for the syncd binary
type SyncerConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Assets      AssetsConfig      `mapstructure:"assets"`
	Sync        SyncConfig        `mapstructure:"sync"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Collections []string          `mapstructure:"collections"`
}

// APIConfig is the full configuration for the api binary
type APIConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Assets      AssetsConfig      `mapstructure:"assets"`
	Auth        AuthConfig        `mapstructure:"auth"`
}

// LoadSyncerConfig loads configuration for the sync daemon
func LoadSyncerConfig(configFile string, envPath string) (*SyncerConfig, error) {
	v := configureViper("syncd", configFile, envPath)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("marketplace.api_url", "https://api.mainnet.tensordev.io/api/v1")
	v.SetDefault("marketplace.websocket_url", "wss://api.mainnet.tensordev.io/ws")
	v.SetDefault("marketplace.http_timeout", "30s")
	v.SetDefault("marketplace.retry_interval", "2s")
	v.SetDefault("marketplace.requests_per_second", 5)
	v.SetDefault("assets.http_timeout", "30s")
	v.SetDefault("sync.interval", "60s")
	v.SetDefault("sync.retry_interval", "20s")
	v.SetDefault("sync.metadata_workers", 16)
	v.SetDefault("sync.metadata_timeout", "30s")
	v.SetDefault("nats.stream_name", "MARKETPLACE_EVENTS")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connection_name", "marketplace-syncd")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config SyncerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("marketplace.api_url", "https://api.mainnet.tensordev.io/api/v1")
	v.SetDefault("marketplace.http_timeout", "30s")
	v.SetDefault("marketplace.retry_interval", "2s")
	v.SetDefault("marketplace.requests_per_second", 5)
	v.SetDefault("assets.http_timeout", "30s")
	v.SetDefault("auth.max_signature_age", "168h")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath, service)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("MARKETPLACE_INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables.
// Required for viper to map env vars to config struct fields when no config
// file exists.
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		"collections",
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		"marketplace.api_url",
		"marketplace.websocket_url",
		"marketplace.api_key",
		"marketplace.http_timeout",
		"marketplace.retry_interval",
		"marketplace.requests_per_second",
		"assets.rpc_url",
		"assets.http_timeout",
		"sync.interval",
		"sync.retry_interval",
		"sync.metadata_workers",
		"sync.metadata_timeout",
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		"auth.max_signature_age",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads .env files from the given path, preferring a service-specific
// file over the shared one
func loadEnv(envPath string, service string) {
	candidates := []string{
		filepath.Join(envPath, fmt.Sprintf(".env.%s", service)),
		filepath.Join(envPath, ".env"),
		".env",
	}
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
			return
		}
	}
}

// ChdirRepoRoot walks up from the working directory until it finds the config
// directory so relative paths in config files resolve consistently
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}
