// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Required credentials are checked per subsystem (ValidateChatReady, ValidateEventSubReady)
// so a missing credential disables that subsystem instead of failing the whole process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// Twitch chat
	TwitchChannels     []string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURI  string
	TwitchScopes       string

	// EventSub
	EventSubCallbackURL string
	EventSubSecret      string
	RenewalLead         time.Duration
	StoreBackend        string
	StorePath           string

	// Database
	DBDsn string

	// Storage
	DataDir string
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds
// are missing; call the ValidateXReady methods when a subsystem requires them. The only
// hard failures are malformed values (bad durations, unknown store backend).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchChannels = splitChannels(os.Getenv("TWITCH_CHANNELS"))
	if len(cfg.TwitchChannels) == 0 {
		if ch := strings.TrimSpace(os.Getenv("TWITCH_CHANNEL")); ch != "" {
			cfg.TwitchChannels = []string{ch}
		}
	}
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.TwitchScopes = os.Getenv("TWITCH_SCOPES")
	if cfg.TwitchScopes == "" {
		// default scopes for a chat bot account
		cfg.TwitchScopes = "chat:read chat:edit"
	}

	// EventSub
	cfg.EventSubCallbackURL = os.Getenv("EVENTSUB_CALLBACK_URL")
	cfg.EventSubSecret = os.Getenv("EVENTSUB_SECRET")
	cfg.RenewalLead = time.Minute
	if v := os.Getenv("EVENTSUB_RENEWAL_LEAD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EVENTSUB_RENEWAL_LEAD (duration): %w", err)
		}
		cfg.RenewalLead = d
	}
	cfg.StoreBackend = os.Getenv("SUBSCRIPTION_STORE_BACKEND")
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "file"
	}
	if cfg.StoreBackend != "file" && cfg.StoreBackend != "postgres" {
		return nil, fmt.Errorf("invalid SUBSCRIPTION_STORE_BACKEND %q: want file or postgres", cfg.StoreBackend)
	}

	// DB
	cfg.DBDsn = os.Getenv("DB_DSN")

	// Storage
	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	cfg.StorePath = os.Getenv("SUBSCRIPTION_STORE_PATH")
	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(cfg.DataDir, "subscriptions.json")
	}

	return cfg, nil
}

// ValidateChatReady checks required fields for joining chat. The IRC token itself is
// resolved later (env or stored OAuth token), so it is not required here.
func (c *Config) ValidateChatReady() error {
	if len(c.TwitchChannels) == 0 || c.TwitchBotUsername == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNELS (or TWITCH_CHANNEL) and TWITCH_BOT_USERNAME")
	}
	return nil
}

// ValidateEventSubReady checks required fields for maintaining webhook subscriptions.
func (c *Config) ValidateEventSubReady() error {
	if c.EventSubCallbackURL == "" || c.EventSubSecret == "" {
		return fmt.Errorf("missing eventsub env: require EVENTSUB_CALLBACK_URL and EVENTSUB_SECRET")
	}
	if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch app env: require TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET")
	}
	return nil
}

// ValidateOAuthReady checks required fields for the browser authorization flow.
func (c *Config) ValidateOAuthReady() error {
	if c.TwitchClientID == "" || c.TwitchClientSecret == "" || c.TwitchRedirectURI == "" {
		return fmt.Errorf("missing oauth env: require TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET, TWITCH_REDIRECT_URI")
	}
	return nil
}

func splitChannels(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "#"))
		if p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
