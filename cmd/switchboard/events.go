package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/switchboard/pkg/adapters/redis"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail events published to Redis",
	Long: `Subscribes to redis.channel and prints every event as one JSON line.
The server publishes there when redis.publish is enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		if tenant != "" {
			if err := domain.TenantID(tenant).Validate(); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := redisClient(cfg.Redis)
		defer client.Close()

		events, err := redis.NewSubscriber(client, cfg.Redis.Channel, logger).Subscribe(ctx)
		if err != nil {
			return err
		}
		logger.Info("Tailing events", "channel", cfg.Redis.Channel, "tenant", tenant)

		enc := json.NewEncoder(cmd.OutOrStdout())
		for ev := range events {
			if tenant != "" && string(ev.Tenant) != tenant {
				continue
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().String("tenant", "", "Only print events of this tenant")
}
