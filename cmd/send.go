package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wapipe/internal/config"
)

func sendCmd() *cobra.Command {
	var to, message string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message through the configured channel",
		Run: func(cmd *cobra.Command, args []string) {
			initLogging()

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				slog.Error("config load failed", "error", err)
				os.Exit(1)
			}

			channel, err := buildChannel(cfg)
			if err != nil {
				slog.Error("channel init failed", "error", err)
				os.Exit(1)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := channel.Send(ctx, to, message); err != nil {
				slog.Error("send failed", "recipient", to, "error", err)
				os.Exit(1)
			}
			cmd.Printf("sent to %s via %s\n", to, channel.Name())
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "recipient id (wa_id or chat id)")
	cmd.Flags().StringVar(&message, "message", "", "message text")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("message")

	return cmd
}
