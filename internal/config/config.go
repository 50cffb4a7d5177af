package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sms-relay-server/internal/phone"
	"sms-relay-server/pkg/logger"

	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap"
)

// Config holds all configuration settings
type Config struct {
	Server struct {
		Port int    `json:"port" env:"SERVER_PORT,overwrite"`
		Host string `json:"host" env:"SERVER_HOST,overwrite"`
		// ForceHTTPS redirects plain-HTTP requests; set X-Forwarded-Proto behind a proxy
		ForceHTTPS bool `json:"force_https" env:"FORCE_HTTPS,overwrite"`
		// AllowedOrigins lists browser origins for CORS; empty allows any origin
		AllowedOrigins []string `json:"allowed_origins" env:"CORS_ALLOWED_ORIGINS,overwrite"`
	} `json:"server"`
	Database struct {
		DSN string `json:"dsn" env:"DATABASE_DSN,overwrite"`
	} `json:"database"`
	JWT struct {
		Secret      string        `json:"secret" env:"JWT_SECRET,overwrite"`
		TokenExpiry time.Duration `json:"token_expiry" env:"JWT_TOKEN_EXPIRY,overwrite"`
	} `json:"jwt"`
	Logging struct {
		Level string `json:"level" env:"LOG_LEVEL,overwrite"`
		Path  string `json:"path" env:"LOG_PATH,overwrite"`
	} `json:"logging"`
	Carrier struct {
		BaseURL      string        `json:"base_url" env:"ORANGE_BASE_URL,overwrite"`
		TokenURL     string        `json:"token_url" env:"ORANGE_TOKEN_URL,overwrite"`
		ClientID     string        `json:"client_id" env:"ORANGE_CLIENT_ID,overwrite"`
		ClientSecret string        `json:"client_secret" env:"ORANGE_CLIENT_SECRET,overwrite"`
		SenderPhone  string        `json:"sender_phone" env:"ORANGE_SENDER_PHONE,overwrite"`
		SenderName   string        `json:"sender_name" env:"ORANGE_SENDER_NAME,overwrite"`
		Timeout      time.Duration `json:"timeout" env:"ORANGE_TIMEOUT,overwrite"`
	} `json:"carrier"`
	Security struct {
		// TokenEncryptionKey encrypts the stored carrier credential; 32 bytes or empty
		TokenEncryptionKey string `json:"token_encryption_key" env:"TOKEN_ENCRYPTION_KEY,overwrite"`
	} `json:"security"`
	Notify struct {
		QueueSize        int `json:"queue_size" env:"NOTIFY_QUEUE_SIZE,overwrite"`
		SubscriberBuffer int `json:"subscriber_buffer" env:"NOTIFY_SUBSCRIBER_BUFFER,overwrite"`
	} `json:"notify"`
	Seed struct {
		Enable   bool   `json:"enable" env:"SEED_ENABLE,overwrite"`
		Username string `json:"username" env:"SEED_USERNAME,overwrite"`
		Password string `json:"password" env:"SEED_PASSWORD,overwrite"`
		Phone    string `json:"phone" env:"SEED_PHONE,overwrite"`
		Email    string `json:"email" env:"SEED_EMAIL,overwrite"`
	} `json:"seed"`
}

// LoadConfig loads configuration from a JSON file on top of DefaultConfig
func LoadConfig(path string) (*Config, error) {
	// Validate path to prevent directory traversal
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("config path must be absolute")
	}

	// Check if file exists and is a regular file
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config file error: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("config path is not a regular file")
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Warn("Failed to close config file", zap.Error(closeErr))
		}
	}()

	config := DefaultConfig()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overlays environment variables onto cfg. Unset variables leave
// the current value untouched.
func ApplyEnv(ctx context.Context, cfg *Config) error {
	return applyEnv(ctx, cfg, envconfig.OsLookuper())
}

func applyEnv(ctx context.Context, cfg *Config, lookuper envconfig.Lookuper) error {
	if cfg == nil {
		return errors.New("configuration is required")
	}
	if err := envconfig.ProcessWith(ctx, cfg, lookuper); err != nil {
		return fmt.Errorf("parsing env vars: %w", err)
	}
	return nil
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("invalid server port")
	}
	if c.Database.DSN == "" {
		return errors.New("database DSN is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT secret is required")
	}
	if c.Carrier.Timeout <= 0 {
		return errors.New("carrier timeout must be positive")
	}
	if key := c.Security.TokenEncryptionKey; key != "" && len(key) != 32 {
		return errors.New("token encryption key must be 32 bytes")
	}
	if c.Carrier.SenderPhone != "" && !phone.Validate(c.Carrier.SenderPhone) {
		return fmt.Errorf("invalid carrier sender phone %q", c.Carrier.SenderPhone)
	}
	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{}
	config.Server.Port = 8080
	config.Server.Host = "localhost"
	config.Database.DSN = "file:sms_relay.db?mode=rwc&_busy_timeout=5000"
	config.JWT.Secret = "your-secret-key" // This should be changed in production
	config.JWT.TokenExpiry = time.Hour
	config.Logging.Level = "info"
	config.Logging.Path = "server.log"
	config.Carrier.BaseURL = "https://api.orange.com"
	config.Carrier.TokenURL = "https://api.orange.com/oauth/v3/token"
	config.Carrier.SenderName = "SMS Relay"
	config.Carrier.Timeout = 30 * time.Second
	config.Notify.QueueSize = 1024
	config.Notify.SubscriberBuffer = 64
	return config
}
