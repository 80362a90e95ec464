package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	API            API    `toml:"api"`
	Sync           Sync   `toml:"sync"`
}

// API holds the social-network backend endpoint and credentials.
type API struct {
	BaseURL   string `toml:"base_url"`
	AuthToken string `toml:"auth_token"`
	UserID    string `toml:"user_id"`
	TimeoutMS int    `toml:"timeout_ms"`
}

// Sync holds the polling intervals, in milliseconds.
type Sync struct {
	MessageIntervalMS      int `toml:"message_interval_ms"`
	ConversationIntervalMS int `toml:"conversation_interval_ms"`
}

// Default intervals when the config leaves them unset.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultAPITimeout   = 15 * time.Second
)

// Load reads config from the given path. Returns zero config and error if
// file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// MessageInterval returns the message poll interval, falling back to the
// 3-second default.
func (c *Config) MessageInterval() time.Duration {
	if c.Sync.MessageIntervalMS > 0 {
		return time.Duration(c.Sync.MessageIntervalMS) * time.Millisecond
	}
	return DefaultPollInterval
}

// ConversationInterval returns the conversation-list poll interval, falling
// back to the 3-second default.
func (c *Config) ConversationInterval() time.Duration {
	if c.Sync.ConversationIntervalMS > 0 {
		return time.Duration(c.Sync.ConversationIntervalMS) * time.Millisecond
	}
	return DefaultPollInterval
}

// APITimeout returns the per-request transport timeout.
func (c *Config) APITimeout() time.Duration {
	if c.API.TimeoutMS > 0 {
		return time.Duration(c.API.TimeoutMS) * time.Millisecond
	}
	return DefaultAPITimeout
}
