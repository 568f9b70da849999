package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sourceforge-bot/jobcore/internal/mq"
)

// NewAuditCmd создаёт команду "audit tail", потребляющую jobcore.audit.log
// напрямую из RabbitMQ — операторский хвост событий аудита без прохождения
// через C9 (аудит-транспорт не имеет HTTP-поверхности).
func NewAuditCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Inspect audit events published to RabbitMQ"}
	cmd.AddCommand(newAuditTailCmd(outputFn))
	return cmd
}

func newAuditTailCmd(outputFn func() *Output) *cobra.Command {
	var amqpURL string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream audit events from the jobcore.audit.log queue until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))

			if amqpURL == "" {
				amqpURL = os.Getenv("AMQP_URL")
			}
			if amqpURL == "" {
				amqpURL = mq.DefaultURL()
			}

			conn, err := mq.NewConnection(amqpURL, logger)
			if err != nil {
				return fmt.Errorf("connect to RabbitMQ: %w", err)
			}
			defer conn.Close()

			ctx := cmd.Context()
			if err := mq.SetupTopology(ctx, conn); err != nil {
				return fmt.Errorf("setup topology: %w", err)
			}

			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Queue: string(mq.QueueAuditLog),
				Handler: func(_ context.Context, delivery *mq.Delivery) error {
					out.Line(fmt.Sprintf("[%s] %s", delivery.Message.Type, delivery.Message.Payload))
					return nil
				},
			})

			return consumer.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&amqpURL, "amqp-url", "", "RabbitMQ URL (default: AMQP_URL env or "+mq.DefaultURL()+")")

	return cmd
}
