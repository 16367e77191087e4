// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// docgenius.
//
// Configuration comes from ~/.docgenius/config.toml with sensible
// defaults and environment variable overrides applied last.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete docgenius configuration.
type Config struct {
	Version string `toml:"version"`

	// Server configures the answering service (docgenius serve).
	Server ServerConfig `toml:"server"`

	// Cloud configures the upstream AI provider.
	Cloud CloudConfig `toml:"cloud"`

	// Client configures the terminal chat client.
	Client ClientConfig `toml:"client"`

	// UI configures the terminal interface.
	UI UIConfig `toml:"ui"`
}

// ServerConfig contains answering-service configuration.
type ServerConfig struct {
	// ListenAddr is the address the service binds to.
	ListenAddr string `toml:"listen_addr"`
	// DataDir holds the SQLite database and raw uploads.
	DataDir string `toml:"data_dir"`
	// WatchUploads enables the upload-directory filesystem watcher.
	WatchUploads bool `toml:"watch_uploads"`
	// RateLimitPerMinute caps /api/ask requests per client per minute.
	// 0 disables rate limiting.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// CloudConfig contains upstream AI provider configuration.
type CloudConfig struct {
	// APIKey is the provider API key. Prefer the OPENROUTER_API_KEY
	// environment variable over storing it here.
	APIKey string `toml:"api_key"`
	// BaseURL is the OpenAI-compatible API root.
	BaseURL string `toml:"base_url"`
	// Model is the model identifier sent with each request.
	Model string `toml:"model"`
}

// ClientConfig contains terminal-client configuration.
type ClientConfig struct {
	// ServerURL is the answering service the client talks to.
	ServerURL string `toml:"server_url"`
	// MaxRetries is the retry cap for transient request failures.
	MaxRetries int `toml:"max_retries"`
	// BaseDelayMS is the base backoff delay in milliseconds.
	BaseDelayMS int `toml:"base_delay_ms"`
}

// UIConfig contains terminal UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark" or "light".
	Theme string `toml:"theme"`
	// ShowTimestamps displays message timestamps in the transcript.
	ShowTimestamps bool `toml:"show_timestamps"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			ListenAddr:         "127.0.0.1:5000",
			DataDir:            "", // resolved to ~/.docgenius/data
			WatchUploads:       true,
			RateLimitPerMinute: 60,
		},

		Cloud: CloudConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openrouter/auto",
		},

		Client: ClientConfig{
			ServerURL:   "http://127.0.0.1:5000",
			MaxRetries:  3,
			BaseDelayMS: 1000,
		},

		UI: UIConfig{
			Theme:          "dark",
			ShowTimestamps: false,
		},
	}
}

// BaseDelay returns the client's base backoff delay as a duration.
func (c *ClientConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Dir returns the docgenius configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".docgenius"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens config file permissions to 0600 so
// the API key is not world-readable.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions: %w", err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from the default config file, falling back
// to defaults when the file does not exist. Environment overrides are
// applied last, then defaults are filled and the result validated.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := LoadFrom(cfg, path); err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFrom decodes a TOML config file into cfg.
func LoadFrom(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// Save writes the configuration to the default TOML file with 0600
// permissions.
func Save(cfg *Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.toml")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# docgenius configuration file")
	fmt.Fprintln(file, "# Generated by docgenius - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// DEFAULTS / VALIDATION
// =============================================================================

// SetDefaults fills in any missing values with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaults.Server.ListenAddr
	}
	if c.Server.DataDir == "" {
		if dir, err := Dir(); err == nil {
			c.Server.DataDir = filepath.Join(dir, "data")
		}
	}
	if c.Cloud.BaseURL == "" {
		c.Cloud.BaseURL = defaults.Cloud.BaseURL
	}
	if c.Cloud.Model == "" {
		c.Cloud.Model = defaults.Cloud.Model
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = defaults.Client.ServerURL
	}
	if c.Client.MaxRetries == 0 {
		c.Client.MaxRetries = defaults.Client.MaxRetries
	}
	if c.Client.BaseDelayMS == 0 {
		c.Client.BaseDelayMS = defaults.Client.BaseDelayMS
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if _, err := url.Parse(c.Cloud.BaseURL); err != nil {
		return ValidationError{Field: "cloud.base_url", Message: fmt.Sprintf("invalid URL: %v", err)}
	}
	if _, err := url.Parse(c.Client.ServerURL); err != nil {
		return ValidationError{Field: "client.server_url", Message: fmt.Sprintf("invalid URL: %v", err)}
	}
	if c.Client.MaxRetries < 0 || c.Client.MaxRetries > 10 {
		return ValidationError{
			Field:   "client.max_retries",
			Message: fmt.Sprintf("must be 0-10, got %d", c.Client.MaxRetries),
		}
	}
	if c.Client.BaseDelayMS < 0 {
		return ValidationError{Field: "client.base_delay_ms", Message: "must be non-negative"}
	}
	if c.Server.RateLimitPerMinute < 0 {
		return ValidationError{Field: "server.rate_limit_per_minute", Message: "must be non-negative"}
	}

	validThemes := map[string]bool{"dark": true, "light": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		return ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light", c.UI.Theme),
		}
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - OPENROUTER_API_KEY: overrides cloud.api_key
//   - DOCGENIUS_MODEL: overrides cloud.model
//   - DOCGENIUS_LISTEN_ADDR: overrides server.listen_addr
//   - DOCGENIUS_DATA_DIR: overrides server.data_dir
//   - DOCGENIUS_SERVER_URL: overrides client.server_url
//   - DOCGENIUS_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Cloud.APIKey = key
	}
	if model := os.Getenv("DOCGENIUS_MODEL"); model != "" {
		c.Cloud.Model = model
	}
	if addr := os.Getenv("DOCGENIUS_LISTEN_ADDR"); addr != "" {
		c.Server.ListenAddr = addr
	}
	if dir := os.Getenv("DOCGENIUS_DATA_DIR"); dir != "" {
		c.Server.DataDir = dir
	}
	if server := os.Getenv("DOCGENIUS_SERVER_URL"); server != "" {
		c.Client.ServerURL = server
	}
	if theme := os.Getenv("DOCGENIUS_THEME"); theme != "" {
		c.UI.Theme = theme
	}
}
