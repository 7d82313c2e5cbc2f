package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wapipe/internal/config"
	"github.com/nextlevelbuilder/wapipe/internal/store/pg"
	"github.com/nextlevelbuilder/wapipe/internal/store/redis"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("wapipe doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  Store:")
	fmt.Printf("    %-12s %s\n", "Backend:", defaultStr(cfg.Store.Backend, "redis"))
	if cfg.Store.Backend == "memory" {
		fmt.Printf("    %-12s process-local, single instance only\n", "Note:")
	} else if cfg.Store.RedisURL == "" {
		fmt.Printf("    %-12s WAPIPE_REDIS_URL not set\n", "Status:")
	} else {
		checkRedis(ctx, "Status:", cfg.Store.RedisURL)
	}

	fmt.Println()
	fmt.Println("  Queue:")
	if cfg.Queue.RedisURL == "" {
		fmt.Printf("    %-12s not configured (webhook processes inline)\n", "Status:")
	} else if cfg.Queue.RedisURL == cfg.Store.RedisURL {
		fmt.Printf("    %-12s shares the store Redis\n", "Status:")
	} else {
		checkRedis(ctx, "Status:", cfg.Queue.RedisURL)
	}
	fmt.Printf("    %-12s %d attempts, base %ds, cap %ds\n", "Retry:",
		cfg.Queue.MaxAttempts, cfg.Queue.RetryBaseSeconds, cfg.Queue.RetryCapSeconds)

	fmt.Println()
	fmt.Println("  Dead letters:")
	if cfg.Database.PostgresDSN == "" {
		fmt.Printf("    %-12s not configured (terminal failures log only)\n", "Status:")
	} else if dls, err := pg.Open(cfg.Database.PostgresDSN); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
	} else {
		fmt.Printf("    %-12s OK\n", "Status:")
		dls.Close()
	}

	fmt.Println()
	fmt.Println("  Channel:")
	fmt.Printf("    %-12s %s\n", "Provider:", defaultStr(cfg.Channel.Provider, "whatsapp"))
	switch cfg.Channel.Provider {
	case "telegram":
		checkSecret("Token:", cfg.Channel.Telegram.Token)
		checkSecret("Webhook:", cfg.Channel.Telegram.SecretToken)
	default:
		checkSecret("Token:", cfg.Channel.WhatsApp.AccessToken)
		checkSecret("AppSecret:", cfg.Channel.WhatsApp.AppSecret)
		fmt.Printf("    %-12s %s\n", "Phone ID:", defaultStr(cfg.Channel.WhatsApp.PhoneNumberID, "(not configured)"))
	}
	checkSecret("Verify:", cfg.Server.VerifyToken)

	fmt.Println()
	fmt.Println("  AI:")
	fmt.Printf("    %-12s %s\n", "Provider:", defaultStr(cfg.AI.Provider, "openai"))
	checkSecret("API key:", cfg.AI.OpenAI.APIKey)
	fmt.Printf("    %-12s %s\n", "Assistant:", defaultStr(cfg.AI.OpenAI.AssistantID, "(not configured)"))

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkRedis(ctx context.Context, label, url string) {
	kv, err := redis.New(url)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", label, err)
		return
	}
	defer kv.Close()
	if err := kv.Ping(ctx); err != nil {
		fmt.Printf("    %-12s PING FAILED (%s)\n", label, err)
		return
	}
	fmt.Printf("    %-12s OK\n", label)
}

func checkSecret(label, value string) {
	if value == "" {
		fmt.Printf("    %-12s (not configured)\n", label)
		return
	}
	masked := value
	if len(value) > 8 {
		masked = value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	} else {
		masked = strings.Repeat("*", len(value))
	}
	fmt.Printf("    %-12s %s\n", label, masked)
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
