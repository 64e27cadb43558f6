// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Storage       StorageConfig      `mapstructure:"storage"`
	QR            QRConfig           `mapstructure:"qr"`
	Scanner       ScannerConfig      `mapstructure:"scanner"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Server        ServerConfig       `mapstructure:"server"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	UI            UIConfig           `mapstructure:"ui"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// QRConfig contains QR generation configuration
type QRConfig struct {
	Size            int    `mapstructure:"size"`
	MaxSize         int    `mapstructure:"max_size"`
	ErrorCorrection string `mapstructure:"error_correction"` // L, M, Q, H
	Margin          int    `mapstructure:"margin"`
	OutputDir       string `mapstructure:"output_dir"`
}

// ScannerConfig contains frame analysis configuration
type ScannerConfig struct {
	WatchDir       string        `mapstructure:"watch_dir"`
	Extensions     []string      `mapstructure:"extensions"`
	Continuous     bool          `mapstructure:"continuous"`
	AnalyzeTimeout time.Duration `mapstructure:"analyze_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// CacheConfig contains render cache configuration
type CacheConfig struct {
	Type       string        `mapstructure:"type"` // memory, redis, none
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// NotificationConfig contains webhook notification configuration
type NotificationConfig struct {
	Enabled       bool              `mapstructure:"enabled"`
	Webhooks      []string          `mapstructure:"webhooks"`
	Headers       map[string]string `mapstructure:"headers"`
	QueueSize     int               `mapstructure:"queue_size"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	RetryAttempts int               `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration     `mapstructure:"retry_delay"`
}

// UIConfig contains the defaults of user-facing preferences
type UIConfig struct {
	DarkTheme bool `mapstructure:"dark_theme"`
	AutoCopy  bool `mapstructure:"auto_copy"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Set environment variable prefix
	v.SetEnvPrefix("QRCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.Cache.Redis.Addr = redisURL
	}

	return &config, nil
}

// DataDir is where the local history database lives by default.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "qrcode-generator")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "qrcode-generator")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", filepath.Join(DataDir(), "qrcode.db"))
	v.SetDefault("storage.max_connections", 4)
	v.SetDefault("storage.max_idle_time", "15m")

	// QR defaults
	v.SetDefault("qr.size", 512)
	v.SetDefault("qr.max_size", 2048)
	v.SetDefault("qr.error_correction", "M")
	v.SetDefault("qr.margin", 4)
	v.SetDefault("qr.output_dir", ".")

	// Scanner defaults
	v.SetDefault("scanner.watch_dir", "")
	v.SetDefault("scanner.extensions", []string{".png", ".jpg", ".jpeg", ".gif"})
	v.SetDefault("scanner.continuous", false)
	v.SetDefault("scanner.analyze_timeout", "5s")
	v.SetDefault("scanner.max_upload_bytes", 10<<20)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "qrcode:png:")

	// Server defaults
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	// Notification defaults
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.queue_size", 64)
	v.SetDefault("notifications.timeout", "10s")
	v.SetDefault("notifications.retry_attempts", 3)
	v.SetDefault("notifications.retry_delay", "2s")

	// UI defaults
	v.SetDefault("ui.dark_theme", true)
	v.SetDefault("ui.auto_copy", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Storage.MaxConnections <= 0 {
		return fmt.Errorf("storage max connections must be positive")
	}
	if c.QR.Size <= 0 {
		return fmt.Errorf("qr size must be positive")
	}
	if c.QR.MaxSize < c.QR.Size {
		return fmt.Errorf("qr max size must be at least qr size")
	}
	switch strings.ToUpper(c.QR.ErrorCorrection) {
	case "L", "M", "Q", "H":
	default:
		return fmt.Errorf("qr error correction must be one of L, M, Q, H")
	}
	if c.QR.Margin < 0 {
		return fmt.Errorf("qr margin must not be negative")
	}
	switch strings.ToLower(c.Cache.Type) {
	case "memory", "redis", "none", "":
	default:
		return fmt.Errorf("unsupported cache type %q", c.Cache.Type)
	}
	if c.Notifications.Enabled && len(c.Notifications.Webhooks) == 0 {
		return fmt.Errorf("notifications enabled but no webhooks configured")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	return nil
}
