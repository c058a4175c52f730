package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Realtime client configuration (console binary)
	Realtime RealtimeConfig

	// Relay server configuration (relay binary)
	Relay RelayConfig

	// Database configuration (envelope archive, optional)
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// RealtimeConfig holds the connection manager's knobs
type RealtimeConfig struct {
	URL                   string
	Protocols             []string
	AutoConnect           bool
	EnableHeartbeat       bool
	EnableReconnect       bool
	MaxReconnectAttempts  int
	ReconnectInitialDelay time.Duration
	ReconnectMultiplier   float64
	ReconnectMaxDelay     time.Duration
	ConnectTimeout        time.Duration
	HeartbeatInterval     time.Duration
	HeartbeatTimeout      time.Duration
	MaxPayloadBytes       int
	Debug                 bool
}

// RelayConfig holds the relay gateway's HTTP and WebSocket knobs
type RelayConfig struct {
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	AllowedOrigins   []string
	ReadBufferSize   int
	WriteBufferSize  int
	PingInterval     time.Duration
	PongWait         time.Duration
	SessionRPS       float64 // inbound envelopes allowed per second per session
	SessionBurst     int
	ResponseDelayMin time.Duration // simulated assistant thinking time
	ResponseDelayMax time.Duration
}

// DatabaseConfig holds the envelope archive configuration. An empty URL
// disables archiving.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Realtime: RealtimeConfig{
			URL:                   getEnvOrDefault("REALTIME_URL", "ws://localhost:8080/api/v1/ws"),
			Protocols:             getStringSliceOrDefault("REALTIME_PROTOCOLS", nil),
			AutoConnect:           getBoolOrDefault("REALTIME_AUTO_CONNECT", true),
			EnableHeartbeat:       getBoolOrDefault("REALTIME_ENABLE_HEARTBEAT", true),
			EnableReconnect:       getBoolOrDefault("REALTIME_ENABLE_RECONNECT", true),
			MaxReconnectAttempts:  getIntOrDefault("REALTIME_MAX_RECONNECT_ATTEMPTS", 5),
			ReconnectInitialDelay: getDurationOrDefault("REALTIME_RECONNECT_INITIAL_DELAY", time.Second),
			ReconnectMultiplier:   getFloatOrDefault("REALTIME_RECONNECT_MULTIPLIER", 2),
			ReconnectMaxDelay:     getDurationOrDefault("REALTIME_RECONNECT_MAX_DELAY", 30*time.Second),
			ConnectTimeout:        getDurationOrDefault("REALTIME_CONNECT_TIMEOUT", 10*time.Second),
			HeartbeatInterval:     getDurationOrDefault("REALTIME_HEARTBEAT_INTERVAL", 30*time.Second),
			HeartbeatTimeout:      getDurationOrDefault("REALTIME_HEARTBEAT_TIMEOUT", 5*time.Second),
			MaxPayloadBytes:       getIntOrDefault("REALTIME_MAX_PAYLOAD_BYTES", 1<<20),
			Debug:                 getBoolOrDefault("REALTIME_DEBUG", false),
		},
		Relay: RelayConfig{
			Port:             getEnvOrDefault("RELAY_PORT", ":8080"),
			ReadTimeout:      getDurationOrDefault("RELAY_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:     getDurationOrDefault("RELAY_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:      getDurationOrDefault("RELAY_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:  getDurationOrDefault("RELAY_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:   getStringSliceOrDefault("RELAY_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:   getIntOrDefault("RELAY_WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize:  getIntOrDefault("RELAY_WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:     getDurationOrDefault("RELAY_WS_PING_INTERVAL", 54*time.Second),
			PongWait:         getDurationOrDefault("RELAY_WS_PONG_WAIT", 60*time.Second),
			SessionRPS:       getFloatOrDefault("RELAY_SESSION_RPS", 5),
			SessionBurst:     getIntOrDefault("RELAY_SESSION_BURST", 10),
			ResponseDelayMin: getDurationOrDefault("RELAY_RESPONSE_DELAY_MIN", 300*time.Millisecond),
			ResponseDelayMax: getDurationOrDefault("RELAY_RESPONSE_DELAY_MAX", 1200*time.Millisecond),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		JWT: JWTConfig{
			Secret:   os.Getenv("JWT_SECRET"),
			TokenTTL: getDurationOrDefault("JWT_TOKEN_TTL", 1*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "realtime-console"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}

	return cfg, nil
}

// ValidateRelay validates the configuration the relay binary needs
func (c *Config) ValidateRelay() error {
	var errs []string

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}
		if len(c.Relay.AllowedOrigins) == 0 {
			errs = append(errs, "RELAY_ALLOWED_ORIGINS must be set in production")
		}
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateConsole validates the configuration the console binary needs
func (c *Config) ValidateConsole() error {
	var errs []string

	if c.Realtime.URL == "" {
		errs = append(errs, "REALTIME_URL is required")
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		errs = append(errs, "REALTIME_MAX_RECONNECT_ATTEMPTS cannot be negative")
	}
	if c.Realtime.HeartbeatTimeout >= c.Realtime.HeartbeatInterval {
		errs = append(errs, "REALTIME_HEARTBEAT_TIMEOUT must be shorter than REALTIME_HEARTBEAT_INTERVAL")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Relay: %s, Realtime: %s, DB: %s, JWT: [REDACTED], Environment: %s}",
		c.Relay.Port,
		c.Realtime.URL,
		redactURL(c.Database.URL),
		c.App.Environment,
	)
}

// redactURL redacts sensitive parts of a database URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
