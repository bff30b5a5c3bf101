package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	JWT      JWTConfig      `mapstructure:"jwt" yaml:"jwt"`
	Chat     ChatConfig     `mapstructure:"chat" yaml:"chat"`
	Uploads  UploadsConfig  `mapstructure:"uploads" yaml:"uploads"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

// DatabaseConfig selects the message store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite or postgres
	Path   string `mapstructure:"path" yaml:"path"`
	URL    string `mapstructure:"url" yaml:"url"`
}

// JWTConfig configures identity tokens.
type JWTConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// ChatConfig tunes the realtime relay.
type ChatConfig struct {
	TypingTimeout     time.Duration `mapstructure:"typing_timeout" yaml:"typing_timeout"`
	MaxTextLength     int           `mapstructure:"max_text_length" yaml:"max_text_length"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`
	MessagesPerMinute int           `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
}

// UploadsConfig configures the media upload service.
type UploadsConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"` // local or nats
	Dir           string `mapstructure:"dir" yaml:"dir"`
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
	MaxBytes      int64  `mapstructure:"max_bytes" yaml:"max_bytes"`
	NATSURL       string `mapstructure:"nats_url" yaml:"nats_url"`
	Bucket        string `mapstructure:"bucket" yaml:"bucket"`
}

// RedisConfig enables cross-instance fan-out when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		MaxMessageBytes:   1 << 16,
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "nexus-chat.db",
		},
		JWT: JWTConfig{
			Secret:   "change-me",
			Issuer:   "gdsc-nexus",
			Audience: "nexus-chat",
			TTL:      24 * time.Hour,
		},
		Chat: ChatConfig{
			TypingTimeout:     3 * time.Second,
			MaxTextLength:     4000,
			StoreTimeout:      5 * time.Second,
			MessagesPerMinute: 120,
			HistoryLimit:      0,
		},
		Uploads: UploadsConfig{
			Backend:       "local",
			Dir:           "uploads",
			PublicBaseURL: "http://localhost:8080",
			MaxBytes:      10 << 20,
			NATSURL:       "nats://127.0.0.1:4222",
			Bucket:        "nexus-chat-media",
		},
		Redis: RedisConfig{
			Channel: "nexus-chat:relay",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the top-level listener settings are overridable from flags.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.Database.Driver != "" {
		c.Database.Driver = other.Database.Driver
	}
	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}
	if other.Database.URL != "" {
		c.Database.URL = other.Database.URL
	}
}
