package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr         string
	DatabasePath string
	MasterSecret string
	// AccessKey is the operator credential exchanged for a bearer token.
	AccessKey string
	// GatewayURL is the websocket endpoint of the upstream messaging gateway.
	GatewayURL     string
	Debug          bool
	AllowedOrigins []string

	Session SessionConfig
}

// SessionConfig tunes the session lifecycle manager.
type SessionConfig struct {
	// MaxRetries bounds consecutive transient reconnect attempts.
	MaxRetries int
	// RetryBaseDelay is multiplied by min(retryCount, 3) for backoff.
	RetryBaseDelay time.Duration
	// WipeRestartDelay is the short pause before a fresh pairing cycle after
	// credentials were wiped.
	WipeRestartDelay time.Duration
	// ExhaustedCooldown is the long pause after the retry budget is spent
	// before the credential set is declared unusable and wiped.
	ExhaustedCooldown time.Duration
	// ConnectTimeout bounds credential load plus handle construction.
	ConnectTimeout time.Duration
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr         *string
	DatabasePath *string
	MasterSecret *string
	AccessKey    *string
	GatewayURL   *string
	Debug        *bool
}

// Load loads server configuration from environment variables and applies any
// explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	port := 3010
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./walink.db"
	}
	if overrides.DatabasePath != nil {
		dbPath = *overrides.DatabasePath
	}

	masterSecret := os.Getenv("WALINK_MASTER_SECRET")
	if overrides.MasterSecret != nil {
		masterSecret = *overrides.MasterSecret
	}
	if masterSecret == "" {
		return nil, fmt.Errorf("WALINK_MASTER_SECRET environment variable is required")
	}

	accessKey := os.Getenv("WALINK_ACCESS_KEY")
	if overrides.AccessKey != nil {
		accessKey = *overrides.AccessKey
	}
	if accessKey == "" {
		return nil, fmt.Errorf("WALINK_ACCESS_KEY environment variable is required")
	}

	gatewayURL := os.Getenv("GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = "wss://localhost:8443/link"
	}
	if overrides.GatewayURL != nil {
		gatewayURL = *overrides.GatewayURL
	}

	debug := false
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	return &Config{
		Addr:           addr,
		DatabasePath:   dbPath,
		MasterSecret:   masterSecret,
		AccessKey:      accessKey,
		GatewayURL:     gatewayURL,
		Debug:          debug,
		AllowedOrigins: []string{"*"}, // For self-hosted, allow all origins
		Session:        loadSessionConfig(),
	}, nil
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		MaxRetries:        envInt("SESSION_MAX_RETRIES", 5),
		RetryBaseDelay:    envDuration("SESSION_RETRY_BASE_DELAY", 2*time.Second),
		WipeRestartDelay:  envDuration("SESSION_WIPE_RESTART_DELAY", 3*time.Second),
		ExhaustedCooldown: envDuration("SESSION_EXHAUSTED_COOLDOWN", time.Minute),
		ConnectTimeout:    envDuration("SESSION_CONNECT_TIMEOUT", 30*time.Second),
	}
}

func envInt(key string, def int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}
