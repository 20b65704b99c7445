package cli

import (
	"context"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/tspbatch/internal/pool"
	"github.com/shaiso/tspbatch/internal/solver"
	"github.com/shaiso/tspbatch/internal/telemetry"
	"github.com/shaiso/tspbatch/internal/worker"
)

// NewWorkerCmd создаёт скрытую команду worker. Её запускает пул
// (pool.ExecSpawner): stdin/stdout — канал сообщений, логи — stderr.
func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Serve solver tasks over stdin/stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr)
			if id, err := strconv.Atoi(os.Getenv(pool.EnvWorkerID)); err == nil {
				logger = telemetry.WithWorker(logger, id)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			w := worker.New(worker.Config{
				Registry: solver.NewRegistry(),
				Logger:   logger,
			})
			return w.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}
