package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	AppName string
	Env     string

	// REST backend.
	APIBaseURL string

	// Realtime broker (pusher-style websocket endpoint).
	WSScheme     string // ws or wss
	WSHost       string
	WSPort       int
	AppKey       string
	AuthEndpoint string // private-channel authorization endpoint

	// Local credential persistence.
	CredentialDB     string
	CredentialSecret string

	Debug bool
}

func Load() (*Config, error) {
	apiBase := strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000"), "/")

	cfg := &Config{
		AppName: getEnv("APP_NAME", "chris-market-place chat"),
		Env:     getEnv("APP_ENV", "development"),

		APIBaseURL: apiBase,

		WSScheme:     getEnv("REVERB_SCHEME", "ws"),
		WSHost:       getEnv("REVERB_HOST", "127.0.0.1"),
		WSPort:       getEnvAsInt("REVERB_PORT", 8080),
		AppKey:       getEnv("REVERB_APP_KEY", "servicehub-key"),
		AuthEndpoint: getEnv("BROADCAST_AUTH_ENDPOINT", apiBase+"/broadcasting/auth"),

		CredentialDB:     getEnv("CREDENTIAL_DB", "chat-credentials.db"),
		CredentialSecret: os.Getenv("CREDENTIAL_SECRET"),

		Debug: getEnvAsBool("DEBUG", true),
	}

	if cfg.WSScheme != "ws" && cfg.WSScheme != "wss" {
		return nil, fmt.Errorf("REVERB_SCHEME must be ws or wss, got %q", cfg.WSScheme)
	}
	if cfg.CredentialSecret == "" {
		return nil, fmt.Errorf("CREDENTIAL_SECRET is required")
	}

	return cfg, nil
}

// WSAddr returns the websocket endpoint for the configured app key.
func (c *Config) WSAddr() string {
	return fmt.Sprintf("%s://%s:%d/app/%s", c.WSScheme, c.WSHost, c.WSPort, c.AppKey)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
