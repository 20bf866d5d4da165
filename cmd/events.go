/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bookstore/apiserver/internal/mq"
	"github.com/bookstore/apiserver/internal/services"
)

// eventsCmd groups commands that work with purchase events.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect purchase events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log purchase events as they arrive on the broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := mq.New(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("no message broker configured, set MQ_BACKEND")
		}
		defer func() {
			if err := broker.Close(); err != nil {
				log.Warn().Err(err).Msg("closing message broker")
			}
		}()

		log.Info().Str("channel", cfg.MQ.Channel).Msg("tailing purchase events")
		err = broker.Subscribe(ctx, cfg.MQ.Channel, func(_ context.Context, msg mq.Message) error {
			evt, err := services.DecodePurchaseEvent(msg.Data)
			if err != nil {
				// Undecodable messages are acknowledged so they are not redelivered.
				log.Warn().Err(err).Str("message_id", msg.ID).Msg("skipping message")
				return nil
			}
			log.Info().
				Str("event_id", evt.ID).
				Str("type", evt.Type).
				Int("purchase_id", evt.PurchaseID).
				Int("user_id", evt.UserID).
				Int("book_id", evt.BookID).
				Time("occurred_at", evt.OccurredAt).
				Msg("purchase event")
			return nil
		})
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
