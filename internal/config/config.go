// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogJSON switches log output to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// BaseURL is the public https origin upstream calls back on.
	BaseURL string `koanf:"base_url"`

	// ClientID and ClientSecret are the platform application credentials.
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`

	// TokenURL and APIURL point at the platform endpoints.
	TokenURL string `koanf:"token_url"`
	APIURL   string `koanf:"api_url"`

	// TokenTTL bounds how long an app token is reused.
	TokenTTL time.Duration `koanf:"token_ttl"`

	// UpstreamTimeout caps every platform API call.
	UpstreamTimeout time.Duration `koanf:"upstream_timeout"`

	// UpstreamRate and UpstreamBurst shape outbound platform calls.
	UpstreamRate  float64 `koanf:"upstream_rate"`
	UpstreamBurst int     `koanf:"upstream_burst"`

	// SessionSecret signs session and login tokens.
	SessionSecret string `koanf:"session_secret"`

	// SessionTTL is the lifetime of a browser session token.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// DataDir holds the subscription and user database.
	DataDir string `koanf:"data_dir"`

	// InMemory keeps the database in memory only.
	InMemory bool `koanf:"in_memory"`

	// WebhookRate and WebhookBurst shape inbound webhook deliveries.
	WebhookRate  float64 `koanf:"webhook_rate"`
	WebhookBurst int     `koanf:"webhook_burst"`

	// WSSendBuffer is the per-connection outbound frame buffer.
	WSSendBuffer int `koanf:"ws_send_buffer"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		Addr:            ":9080",
		BaseURL:         "http://localhost:9080",
		TokenURL:        "https://id.twitch.tv/oauth2/token",
		APIURL:          "https://api.twitch.tv/helix",
		TokenTTL:        24 * time.Hour,
		UpstreamTimeout: 10 * time.Second,
		UpstreamRate:    10,
		UpstreamBurst:   20,
		SessionTTL:      30 * 24 * time.Hour,
		DataDir:         "./data",
		WebhookRate:     200,
		WebhookBurst:    400,
		WSSendBuffer:    256,
	}
}

// Validate checks the invariants the service relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ClientID == "" || c.ClientSecret == "":
		return fmt.Errorf("%w: client_id and client_secret are required", ErrInvalidConfig)
	case len(c.SessionSecret) < 32:
		return fmt.Errorf("%w: session_secret must be at least 32 bytes", ErrInvalidConfig)
	case c.TokenTTL <= 0:
		return fmt.Errorf("%w: token_ttl must be positive", ErrInvalidConfig)
	case c.UpstreamRate <= 0 || c.WebhookRate <= 0:
		return fmt.Errorf("%w: rates must be positive", ErrInvalidConfig)
	case !c.InMemory && strings.TrimSpace(c.DataDir) == "":
		return fmt.Errorf("%w: data_dir is required unless in_memory is set", ErrInvalidConfig)
	}
	for name, raw := range map[string]string{"base_url": c.BaseURL, "token_url": c.TokenURL, "api_url": c.APIURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s must be an absolute URL", ErrInvalidConfig, name)
		}
	}
	return nil
}

// CallbackURL is where upstream delivers webhook notifications.
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/webhook/"
}
