/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/mq"
	"github.com/tasktrack/apiserver/internal/services"
)

// eventsCmd groups commands that work with the domain event channel.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect task and account events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print events from the configured broker as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not set")
		}
		defer broker.Close()

		channel := cfg.MQ.Channel
		if channel == "" {
			channel = services.DefaultEventChannel
		}
		logger.Info("tailing events", "backend", cfg.MQ.Backend, "channel", channel)

		err = broker.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
			var event services.Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				// Malformed payloads are acked and skipped.
				logger.Warn("skipping malformed event", "id", msg.ID, "err", err)
				return nil
			}
			logger.Info(event.Type,
				"id", msg.ID,
				"userId", event.UserID,
				"taskId", event.TaskID,
				"occurredAt", event.OccurredAt,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
