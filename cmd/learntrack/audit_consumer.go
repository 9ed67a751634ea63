package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/learntrack/learntrack/internal/config"
	"github.com/learntrack/learntrack/internal/queue"
)

func newAuditConsumerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-consumer",
		Short: "Append resource events from RabbitMQ to the audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAuditConsumer()
			if err != nil {
				return err
			}
			log := newLogger(cfg.Common, "audit-consumer")

			audit, closer, err := queue.OpenAuditLog(cfg.AuditLogPath)
			if err != nil {
				return err
			}
			defer closer.Close()

			c := &queue.Consumer{URL: cfg.RabbitMQURL, Queue: cfg.AuditQueue, Audit: audit, Log: log}
			if err := c.Run(cmd.Context()); !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info().Msg("audit consumer stopped")
			return nil
		},
	}
}
