package billing

import (
	"strings"

	"github.com/gastrodesk/gastrodesk/internal/pkg/env"
)

// Gateway operating modes.
const (
	ModeTest = "test"
	ModeLive = "live"
)

// Config carries the gateway mode and per-mode secrets. It is resolved
// once at startup and threaded into the webhook, worker and reconciler
// components; handlers never read the environment themselves.
type Config struct {
	Mode              string
	TestWebhookSecret string
	LiveWebhookSecret string
	GatewayBaseURL    string
	GatewayAPIKey     string
}

// LoadConfig reads the billing configuration from the environment.
func LoadConfig() Config {
	mode := strings.ToLower(strings.TrimSpace(env.GetEnv("GATEWAY_MODE", ModeTest)))
	if mode != ModeLive {
		mode = ModeTest
	}
	return Config{
		Mode:              mode,
		TestWebhookSecret: strings.TrimSpace(env.GetEnv("GATEWAY_WEBHOOK_SECRET_TEST", "")),
		LiveWebhookSecret: strings.TrimSpace(env.GetEnv("GATEWAY_WEBHOOK_SECRET_LIVE", "")),
		GatewayBaseURL:    strings.TrimRight(env.GetEnv("GATEWAY_BASE_URL", "https://api.paygate.example"), "/"),
		GatewayAPIKey:     strings.TrimSpace(env.GetEnv("GATEWAY_API_KEY", "")),
	}
}

// WebhookSecret returns the shared secret for the configured mode.
func (c Config) WebhookSecret() string {
	if c.Mode == ModeLive {
		return c.LiveWebhookSecret
	}
	return c.TestWebhookSecret
}

// Livemode reports whether the config points at the live gateway.
func (c Config) Livemode() bool {
	return c.Mode == ModeLive
}
