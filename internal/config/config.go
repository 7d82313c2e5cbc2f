package config

// Config is the root configuration for the wapipe relay.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Channel  ChannelConfig  `json:"channel"`
	AI       AIConfig       `json:"ai"`
	Store    StoreConfig    `json:"store"`
	Queue    QueueConfig    `json:"queue"`
	Limits   LimitsConfig   `json:"limits"`
	Dedup    DedupConfig    `json:"dedup"`
	Database DatabaseConfig `json:"database,omitempty"`
}

// ServerConfig configures the webhook HTTP listener.
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	MaxBodyBytes    int64  `json:"max_body_bytes,omitempty"`
	WebhookRPM      int    `json:"webhook_rpm,omitempty"` // per-source flood guard, 0 = default
	VerifyToken     string `json:"-"`                     // from env WAPIPE_VERIFY_TOKEN only
	AuthToken       string `json:"-"`                     // from env WAPIPE_AUTH_TOKEN only (manual send API)
	ShutdownSeconds int    `json:"shutdown_seconds,omitempty"`
}

// ChannelConfig selects and configures the messaging channel provider.
type ChannelConfig struct {
	Provider string         `json:"provider"` // "whatsapp" (default) or "telegram"
	WhatsApp WhatsAppConfig `json:"whatsapp,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

// WhatsAppConfig configures the WhatsApp Cloud API channel.
// AccessToken and AppSecret are env-only (secrets, never in config.json).
type WhatsAppConfig struct {
	AccessToken   string `json:"-"` // WAPIPE_WHATSAPP_ACCESS_TOKEN
	AppSecret     string `json:"-"` // WAPIPE_WHATSAPP_APP_SECRET (webhook signature key)
	PhoneNumberID string `json:"phone_number_id"`
	APIVersion    string `json:"api_version,omitempty"` // default "v18.0"
	APIBase       string `json:"api_base,omitempty"`    // override for tests
}

// TelegramConfig configures the Telegram Bot API channel.
type TelegramConfig struct {
	Token       string `json:"-"` // WAPIPE_TELEGRAM_TOKEN
	SecretToken string `json:"-"` // WAPIPE_TELEGRAM_SECRET_TOKEN (webhook header check)
}

// AIConfig selects and configures the AI backend.
type AIConfig struct {
	Provider         string       `json:"provider"` // "openai" (default)
	OpenAI           OpenAIConfig `json:"openai,omitempty"`
	ThreadTTLSeconds int          `json:"thread_ttl_seconds,omitempty"` // default 3600
}

// OpenAIConfig configures the OpenAI Assistants backend.
type OpenAIConfig struct {
	APIKey         string `json:"-"` // WAPIPE_OPENAI_API_KEY
	AssistantID    string `json:"assistant_id"`
	APIBase        string `json:"api_base,omitempty"` // default https://api.openai.com/v1
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // hard ceiling per respond call, default 60
}

// StoreConfig selects the shared key-value store backend.
// "memory" keeps all pipeline state in-process: fine for a single instance,
// useless for horizontal scaling.
type StoreConfig struct {
	Backend  string `json:"backend"` // "redis" (default) or "memory"
	RedisURL string `json:"-"`       // WAPIPE_REDIS_URL
}

// QueueConfig configures the asynq task queue substrate.
type QueueConfig struct {
	RedisURL         string `json:"-"` // WAPIPE_QUEUE_REDIS_URL (falls back to store URL)
	Concurrency      int    `json:"concurrency,omitempty"`        // worker goroutines, default 10
	MaxAttempts      int    `json:"max_attempts,omitempty"`       // total attempts incl. first, default 3
	RetryBaseSeconds int    `json:"retry_base_seconds,omitempty"` // backoff base, default 5
	RetryCapSeconds  int    `json:"retry_cap_seconds,omitempty"`  // backoff ceiling, default 300
}

// LimitsConfig configures the shared provider rate budgets.
type LimitsConfig struct {
	AIPerWindow        int    `json:"ai_per_window,omitempty"`      // default 30
	ChannelPerWindow   int    `json:"channel_per_window,omitempty"` // default 60
	WindowSeconds      int    `json:"window_seconds,omitempty"`     // default 60
	Mode               string `json:"mode,omitempty"`               // "wait" (default) or "fail"
	WaitTimeoutSeconds int    `json:"wait_timeout_seconds,omitempty"` // wait-mode ceiling, default 3
}

// DedupConfig configures the idempotency window.
type DedupConfig struct {
	WindowSeconds int `json:"window_seconds,omitempty"` // default 3600
}

// DatabaseConfig configures the optional Postgres dead-letter journal.
// PostgresDSN is env-only (WAPIPE_POSTGRES_DSN); when empty, terminal
// failures are logged but not journaled.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}
