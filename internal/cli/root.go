package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/tspbatch/internal/config"
	"github.com/shaiso/tspbatch/internal/telemetry"
)

// App — зависимости команды, создаваемые после разбора флагов.
type App struct {
	Config config.Config
	Logger *slog.Logger
	Out    *Output
}

// AppFunc строит App для выполняемой команды.
type AppFunc func(cmd *cobra.Command) (*App, error)

// NewRootCmd создаёт корневую команду tspbatch.
func NewRootCmd(version string) *cobra.Command {
	var configPath string
	var jsonOutput bool

	root := &cobra.Command{
		Use:           "tspbatch",
		Short:         "tspbatch — batch TSP solving over a worker pool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	appFn := func(cmd *cobra.Command) (*App, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return &App{
			Config: cfg,
			Logger: newLogger(cmd.ErrOrStderr()),
			Out:    NewOutput(jsonOutput, cmd.OutOrStdout(), cmd.ErrOrStderr()),
		}, nil
	}

	root.AddCommand(
		NewRunCmd(appFn),
		NewLegacyCmd(appFn),
		NewWorkerCmd(),
		NewReportCmd(appFn),
		NewWatchCmd(appFn),
		NewServeCmd(appFn),
	)

	return root
}

// newLogger — логи в stderr: stdout занят отчётом.
func newLogger(w io.Writer) *slog.Logger {
	return telemetry.SetupLoggerTo(w)
}
