// Package server provides configuration helpers that define runtime defaults,
// file and environment loading, and validation for the linechat service.
package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"

	"github.com/Tyrowin/linechat/internal/chat"
)

const (
	defaultTCPAddr         = ":9000"
	defaultHTTPAddr        = ":8080"
	defaultMaxLineLength   = 1024
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
)

// OriginList is a list of allowed WebSocket origins. From the environment it
// is read as a comma separated string.
type OriginList []string

// Decode implements envdecode.Decoder.
func (o *OriginList) Decode(value string) error {
	*o = parseOrigins(value)
	return nil
}

// Config holds the server configuration settings.
type Config struct {
	TCPAddr           string        `toml:"tcp_addr" env:"CHAT_TCP_ADDR"`
	HTTPAddr          string        `toml:"http_addr" env:"CHAT_HTTP_ADDR"`
	AllowedOrigins    OriginList    `toml:"allowed_origins" env:"CHAT_ALLOWED_ORIGINS"`
	MaxClients        int           `toml:"max_clients" env:"CHAT_MAX_CLIENTS"`
	MaxLineLength     int           `toml:"max_line_length" env:"CHAT_MAX_LINE_LENGTH"`
	MaxUsernameLength int           `toml:"max_username_length" env:"CHAT_MAX_USERNAME_LENGTH"`
	WriteTimeout      time.Duration `toml:"write_timeout" env:"CHAT_WRITE_TIMEOUT"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout" env:"CHAT_SHUTDOWN_TIMEOUT"`
	LogLevel          string        `toml:"log_level" env:"CHAT_LOG_LEVEL"`
	LogFormat         string        `toml:"log_format" env:"CHAT_LOG_FORMAT"`
}

func defaultConfig() Config {
	return Config{
		TCPAddr:  defaultTCPAddr,
		HTTPAddr: defaultHTTPAddr,
		AllowedOrigins: OriginList{
			"http://localhost:8080",
		},
		MaxClients:        chat.DefaultMaxClients,
		MaxLineLength:     defaultMaxLineLength,
		MaxUsernameLength: chat.DefaultMaxUsernameLength,
		WriteTimeout:      defaultWriteTimeout,
		ShutdownTimeout:   defaultShutdownTimeout,
		LogLevel:          defaultLogLevel,
		LogFormat:         defaultLogFormat,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from defaults overridden by CHAT_*
// environment variables.
func NewConfigFromEnv() (*Config, error) {
	cfg := NewConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.sanitize()
	return cfg, nil
}

// LoadConfig builds the effective configuration: defaults, then the TOML file
// at path (if any), then the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.sanitize()
	return cfg, nil
}

// LoadFromFile overlays values from a TOML file. Keys absent from the file
// keep their current value.
func (c *Config) LoadFromFile(filename string) error {
	if _, err := os.Stat(filename); err != nil {
		return fmt.Errorf("config file %q is not found: %w", filename, err)
	}

	meta, err := toml.DecodeFile(filename, c)
	if err != nil {
		return fmt.Errorf("parse config file %q: %w", filename, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %q: unknown keys %v", filename, undecoded)
	}
	return nil
}

// LoadFromEnv overlays values from CHAT_* environment variables. Unset
// variables leave the current value untouched.
func (c *Config) LoadFromEnv() error {
	err := envdecode.Decode(c)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	return nil
}

// HTTPEnabled reports whether the HTTP and WebSocket listener should run.
func (c *Config) HTTPEnabled() bool {
	return c.HTTPAddr != "" && c.HTTPAddr != "off"
}

// sanitize restores defaults for unusable values.
func (c *Config) sanitize() {
	if c.TCPAddr == "" {
		c.TCPAddr = defaultTCPAddr
	}
	if c.MaxClients <= 0 {
		c.MaxClients = chat.DefaultMaxClients
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = defaultMaxLineLength
	}
	if c.MaxUsernameLength <= 0 {
		c.MaxUsernameLength = chat.DefaultMaxUsernameLength
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
