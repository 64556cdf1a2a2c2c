package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MinRotationInterval is the shortest QR rotation interval a session may be
// started with. Start requests below this are rejected.
const MinRotationInterval = 3 * time.Second

// Config holds application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Application configuration
	App AppConfig `json:"app"`

	// Database configuration
	Database DatabaseConfig `json:"database"`

	// QR session rotation configuration
	QR QRConfig `json:"qr"`

	// Face-verification collaborator configuration
	Verify VerifyConfig `json:"verify"`

	// Janitor configuration
	Janitor JanitorConfig `json:"janitor"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// LoggingConfig holds logging-specific configuration
type LoggingConfig struct {
	Level string `json:"level"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Debug       bool   `json:"debug"`
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string `json:"path"`
}

// QRConfig holds QR session rotation configuration
type QRConfig struct {
	RotationInterval time.Duration `json:"rotation_interval"` // Default interval between token rotations
	ImageSize        int           `json:"image_size"`        // Rendered QR image size in pixels
}

// VerifyConfig holds face-verification collaborator configuration
type VerifyConfig struct {
	Provider string        `json:"provider"` // "dummy" or "http"
	BaseURL  string        `json:"base_url"` // Required when provider is "http"
	Timeout  time.Duration `json:"timeout"`  // Upper bound for a single verification call
}

// JanitorConfig holds janitor-specific configuration
type JanitorConfig struct {
	ShortCleanInterval time.Duration `json:"short_clean_interval"`
	FullCleanInterval  time.Duration `json:"full_clean_interval"`
	SessionRetention   time.Duration `json:"session_retention"` // How long ended sessions stay resident in memory
}

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Get returns the singleton configuration instance
func Get() *Config {
	mu.RLock()
	if instance != nil {
		defer mu.RUnlock()
		return instance
	}
	mu.RUnlock()

	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		instance = loadConfig()
	})
	return instance
}

// loadConfig loads configuration from environment variables
func loadConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		App: AppConfig{
			Name:        getEnv("APP_NAME", "rollcall-backend"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("ENV", "development"),
			Debug:       getEnvAsBool("DEBUG", false),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "data/rollcall.db"),
		},
		QR: QRConfig{
			RotationInterval: getEnvAsDuration("QR_ROTATION_INTERVAL", 5*time.Second),
			ImageSize:        getEnvAsInt("QR_IMAGE_SIZE", 256),
		},
		Verify: VerifyConfig{
			Provider: getEnv("VERIFY_PROVIDER", "dummy"),
			BaseURL:  getEnv("VERIFY_BASE_URL", ""),
			Timeout:  getEnvAsDuration("VERIFY_TIMEOUT", 10*time.Second),
		},
		Janitor: JanitorConfig{
			ShortCleanInterval: getEnvAsDuration("JANITOR_SHORT_CLEAN_INTERVAL", 5*time.Minute),
			FullCleanInterval:  getEnvAsDuration("JANITOR_FULL_CLEAN_INTERVAL", 1*time.Hour),
			SessionRetention:   getEnvAsDuration("JANITOR_SESSION_RETENTION", 30*time.Minute),
		},
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	return cfg
}

// validate validates the configuration
func (c *Config) validate() error {
	// Validate server port
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production"}
	if !slices.Contains(validEnvs, c.App.Environment) {
		return fmt.Errorf("invalid environment: %s (must be one of: %s)",
			c.App.Environment, strings.Join(validEnvs, ", "))
	}

	// Validate log level
	validLevels := []string{"info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)",
			c.Logging.Level, strings.Join(validLevels, ", "))
	}

	// Validate database path
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}

	// Validate QR settings
	if c.QR.RotationInterval < MinRotationInterval {
		return fmt.Errorf("invalid QR rotation interval: %s (must be at least %s)",
			c.QR.RotationInterval, MinRotationInterval)
	}
	if c.QR.ImageSize < 64 || c.QR.ImageSize > 2048 {
		return fmt.Errorf("invalid QR image size: %d (must be between 64 and 2048)", c.QR.ImageSize)
	}

	// Validate face-verification settings
	validProviders := []string{"dummy", "http"}
	if !slices.Contains(validProviders, c.Verify.Provider) {
		return fmt.Errorf("invalid verify provider: %s (must be one of: %s)",
			c.Verify.Provider, strings.Join(validProviders, ", "))
	}
	if c.Verify.Provider == "http" {
		parsed, err := url.Parse(c.Verify.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid VERIFY_BASE_URL: %s", c.Verify.BaseURL)
		}
	}
	if c.Verify.Timeout <= 0 {
		return fmt.Errorf("invalid verify timeout: %s", c.Verify.Timeout)
	}

	return nil
}

// IsDevelopment returns true if the app is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the app is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetServerAddress returns the server address in the format "host:port"
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// Reload reloads the configuration (useful for testing or after loading .env files)
func Reload() {
	mu.Lock()
	defer mu.Unlock()
	once = sync.Once{}
	instance = nil
}

// ForceReload forces an immediate reload of the configuration
func ForceReload() {
	mu.Lock()
	defer mu.Unlock()
	instance = loadConfig()
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsBool gets an environment variable as boolean with a fallback value
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvAsInt gets an environment variable as int with a fallback value
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvAsDuration gets an environment variable as duration with a fallback value
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}
