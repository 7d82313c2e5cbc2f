package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodyBytes:    1 << 20,
			WebhookRPM:      120,
			ShutdownSeconds: 10,
		},
		Channel: ChannelConfig{
			Provider: "whatsapp",
			WhatsApp: WhatsAppConfig{
				APIVersion: "v18.0",
			},
		},
		AI: AIConfig{
			Provider: "openai",
			OpenAI: OpenAIConfig{
				APIBase:        "https://api.openai.com/v1",
				TimeoutSeconds: 60,
			},
			ThreadTTLSeconds: 3600,
		},
		Store: StoreConfig{
			Backend: "redis",
		},
		Queue: QueueConfig{
			Concurrency:      10,
			MaxAttempts:      3,
			RetryBaseSeconds: 5,
			RetryCapSeconds:  300,
		},
		Limits: LimitsConfig{
			AIPerWindow:        30,
			ChannelPerWindow:   60,
			WindowSeconds:      60,
			Mode:               "wait",
			WaitTimeoutSeconds: 3,
		},
		Dedup: DedupConfig{
			WindowSeconds: 3600,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are enough to run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	// Server
	envStr("WAPIPE_HOST", &c.Server.Host)
	envInt("WAPIPE_PORT", &c.Server.Port)
	envStr("WAPIPE_VERIFY_TOKEN", &c.Server.VerifyToken)
	envStr("WAPIPE_AUTH_TOKEN", &c.Server.AuthToken)

	// Channel secrets
	envStr("WAPIPE_WHATSAPP_ACCESS_TOKEN", &c.Channel.WhatsApp.AccessToken)
	envStr("WAPIPE_WHATSAPP_APP_SECRET", &c.Channel.WhatsApp.AppSecret)
	envStr("WAPIPE_WHATSAPP_PHONE_NUMBER_ID", &c.Channel.WhatsApp.PhoneNumberID)
	envStr("WAPIPE_TELEGRAM_TOKEN", &c.Channel.Telegram.Token)
	envStr("WAPIPE_TELEGRAM_SECRET_TOKEN", &c.Channel.Telegram.SecretToken)
	envStr("WAPIPE_CHANNEL", &c.Channel.Provider)

	// Switch to telegram automatically when only a telegram token is set.
	if c.Channel.Provider == "whatsapp" && c.Channel.WhatsApp.AccessToken == "" && c.Channel.Telegram.Token != "" {
		c.Channel.Provider = "telegram"
	}

	// AI backend
	envStr("WAPIPE_AI_PROVIDER", &c.AI.Provider)
	envStr("WAPIPE_OPENAI_API_KEY", &c.AI.OpenAI.APIKey)
	envStr("WAPIPE_OPENAI_ASSISTANT_ID", &c.AI.OpenAI.AssistantID)
	envStr("WAPIPE_OPENAI_API_BASE", &c.AI.OpenAI.APIBase)
	envInt("WAPIPE_THREAD_TTL_SECONDS", &c.AI.ThreadTTLSeconds)

	// Store & queue. The queue falls back to the store's Redis so a single
	// WAPIPE_REDIS_URL configures both.
	envStr("WAPIPE_STORE_BACKEND", &c.Store.Backend)
	envStr("WAPIPE_REDIS_URL", &c.Store.RedisURL)
	envStr("WAPIPE_QUEUE_REDIS_URL", &c.Queue.RedisURL)
	if c.Queue.RedisURL == "" {
		c.Queue.RedisURL = c.Store.RedisURL
	}
	envInt("WAPIPE_QUEUE_CONCURRENCY", &c.Queue.Concurrency)
	envInt("WAPIPE_QUEUE_MAX_ATTEMPTS", &c.Queue.MaxAttempts)

	// Database (dead-letter journal)
	envStr("WAPIPE_POSTGRES_DSN", &c.Database.PostgresDSN)
}

// ThreadTTL returns the conversation thread TTL as a duration.
func (c *Config) ThreadTTL() time.Duration {
	return time.Duration(c.AI.ThreadTTLSeconds) * time.Second
}

// DedupWindow returns the idempotency window as a duration.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Dedup.WindowSeconds) * time.Second
}

// RateWindow returns the rate-limit window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.Limits.WindowSeconds) * time.Second
}

// RateWaitTimeout returns the bounded wait ceiling for wait-mode limiting.
func (c *Config) RateWaitTimeout() time.Duration {
	return time.Duration(c.Limits.WaitTimeoutSeconds) * time.Second
}

// AITimeout returns the hard ceiling for one AI respond call.
func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AI.OpenAI.TimeoutSeconds) * time.Second
}
