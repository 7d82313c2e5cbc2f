package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wapipe/internal/store/pg"
)

func deadlettersCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "List recently journaled terminal failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := resolveDSN()
			if err != nil {
				return err
			}
			dls, err := pg.Open(dsn)
			if err != nil {
				return err
			}
			defer dls.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			letters, err := dls.List(ctx, limit)
			if err != nil {
				return err
			}
			if len(letters) == 0 {
				cmd.Println("no dead letters")
				return nil
			}
			for _, dl := range letters {
				cmd.Printf("%s  %-10s %-24s attempts=%d  %s\n",
					dl.CreatedAt.Format(time.RFC3339), dl.Channel, dl.MessageID, dl.Attempts, dl.Reason)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum entries to show")
	return cmd
}
