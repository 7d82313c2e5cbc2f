package cmd

import (
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/wapipe/internal/channels"
	"github.com/nextlevelbuilder/wapipe/internal/channels/telegram"
	"github.com/nextlevelbuilder/wapipe/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/wapipe/internal/config"
	"github.com/nextlevelbuilder/wapipe/internal/pipeline"
	"github.com/nextlevelbuilder/wapipe/internal/providers"
	"github.com/nextlevelbuilder/wapipe/internal/store"
	"github.com/nextlevelbuilder/wapipe/internal/store/memory"
	"github.com/nextlevelbuilder/wapipe/internal/store/redis"
)

// buildKV selects the key-value store backend from config. Selection
// happens exactly once at process start; everything downstream receives
// the capability interface.
func buildKV(cfg *config.Config) (store.KV, error) {
	switch cfg.Store.Backend {
	case "redis", "":
		if cfg.Store.RedisURL == "" {
			return nil, fmt.Errorf("store backend is redis but WAPIPE_REDIS_URL is not set")
		}
		kv, err := redis.New(cfg.Store.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return kv, nil
	case "memory":
		slog.Warn("store.memory_backend", "note", "state is process-local; do not run multiple instances")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildChannel selects the messaging channel provider from config.
func buildChannel(cfg *config.Config) (channels.Provider, error) {
	switch cfg.Channel.Provider {
	case "whatsapp", "":
		return whatsapp.New(cfg.Channel.WhatsApp)
	case "telegram":
		return telegram.New(cfg.Channel.Telegram)
	default:
		return nil, fmt.Errorf("unknown channel provider %q", cfg.Channel.Provider)
	}
}

// buildAI selects the AI backend from config.
func buildAI(cfg *config.Config) (providers.AIProvider, error) {
	switch cfg.AI.Provider {
	case "openai", "":
		oa := cfg.AI.OpenAI
		if oa.APIKey == "" {
			return nil, fmt.Errorf("WAPIPE_OPENAI_API_KEY is not set")
		}
		if oa.AssistantID == "" {
			return nil, fmt.Errorf("openai assistant_id is not configured")
		}
		return providers.NewOpenAIProvider(oa.APIKey, oa.APIBase, oa.AssistantID), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
}

// buildProcessor assembles the full use-case object graph. The web process
// and the worker call this with the same config so both sides agree on key
// layout, budgets, and timeouts.
func buildProcessor(cfg *config.Config, kv store.KV) (*pipeline.Processor, channels.Provider, error) {
	channel, err := buildChannel(cfg)
	if err != nil {
		return nil, nil, err
	}
	ai, err := buildAI(cfg)
	if err != nil {
		return nil, nil, err
	}

	threads := store.NewThreadStore(kv, cfg.ThreadTTL())
	limiter := store.NewLimiter(kv, cfg.RateWindow(), map[string]int{
		store.ScopeAI:      cfg.Limits.AIPerWindow,
		store.ScopeChannel: cfg.Limits.ChannelPerWindow,
	})

	proc := pipeline.NewProcessor(threads, limiter, channel, ai, pipeline.ProcessorOptions{
		AITimeout:     cfg.AITimeout(),
		RateWaitMode:  cfg.Limits.Mode != "fail",
		RateWaitLimit: cfg.RateWaitTimeout(),
	}, slog.Default())

	return proc, channel, nil
}
