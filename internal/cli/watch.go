package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/tspbatch/internal/mq"
)

// NewWatchCmd создаёт команду watch: печать событий batch.completed и
// run.completed из RabbitMQ до Ctrl-C.
func NewWatchCmd(appFn AppFunc) *cobra.Command {
	var (
		queue  string
		events []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow batch and run completion events",
		Long: `Follow batch and run completion events.

By default every watch gets its own exclusive queue, deleted on exit, so
several watchers see the same events. With --queue it consumes the shared
durable queue instead, and events are split between its consumers.`,
		Example: `  tspbatch watch
  tspbatch watch --event run.completed --json
  tspbatch watch --queue tspbatch.events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFn(cmd)
			if err != nil {
				return err
			}

			bindings, err := mq.ParseRoutingKeys(events)
			if err != nil {
				return err
			}

			url := app.Config.AMQP.URL
			if url == "" {
				url = mq.DefaultURL()
			}

			conn, err := mq.NewConnection(url, app.Logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx := cmd.Context()
			if err := mq.SetupTopology(ctx, conn); err != nil {
				return err
			}

			consumer := mq.NewConsumer(conn, app.Logger, mq.ConsumerConfig{
				Queue:    mq.Queue(queue),
				Bindings: bindings,
				Prefetch: 16,
				Handler:  printEvents(app.Out, app.Logger),
			})

			app.Logger.Info("watching events", "queue", queue, "events", bindings)
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "Consume this durable queue instead of a private one")
	cmd.Flags().StringSliceVar(&events, "event", nil, "Event types to follow (batch.completed, run.completed), default all")

	return cmd
}

// printEvents печатает события. Неизвестное событие отклоняется, ошибка
// вывода возвращает событие в очередь и завершает watch.
func printEvents(out *Output, logger *slog.Logger) mq.Handler {
	return func(ctx context.Context, d *mq.Delivery) error {
		event, err := mq.DecodeEvent(&d.Message)
		if err != nil {
			return fmt.Errorf("%w: %w", mq.ErrReject, err)
		}
		if d.Redelivered {
			logger.Debug("redelivered event", "message_id", d.Message.ID)
		}
		if err := out.Event(&d.Message, event); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		return nil
	}
}
