/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/itemsrv/apiserver/config"
	"github.com/itemsrv/apiserver/internal/logging"
	"github.com/itemsrv/apiserver/internal/mq"
	"github.com/itemsrv/apiserver/types"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect item change events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print item events as they are published",
	Long: `Subscribes to the item events channel and logs every event until
interrupted. Requires MQ_BACKEND to be set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.MQ.Backend == "" {
			return errors.New("MQ_BACKEND is not set")
		}

		logger, err := logging.New(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("message queue: %w", err)
		}
		defer func() {
			_ = broker.Close()
		}()

		logger.Info("tailing item events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.ItemEventsChannel)
		err = broker.Subscribe(ctx, cfg.MQ.ItemEventsChannel, itemEventLogger(logger))
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}

// itemEventLogger acknowledges every message. Payloads that are not item
// events are logged and dropped rather than redelivered.
func itemEventLogger(logger *slog.Logger) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		var event types.ItemEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.WarnContext(ctx, "discarding malformed item event", "message_id", msg.ID, "error", err)
			return nil
		}
		logger.InfoContext(ctx, "item event",
			"message_id", msg.ID,
			"type", string(event.Type),
			"item_id", event.ItemID,
			"user_id", event.UserID,
			"occurred_at", event.OccurredAt,
		)
		return nil
	}
}
