package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/tspbatch/internal/repo"
)

// NewReportCmd создаёт группу команд для сохранённых отчётов.
func NewReportCmd(appFn AppFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect saved run reports",
	}

	cmd.AddCommand(
		newReportListCmd(appFn),
		newReportShowCmd(appFn),
	)

	return cmd
}

func newReportListCmd(appFn AppFunc) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFn(cmd)
			if err != nil {
				return err
			}

			pool, err := repo.NewPool(cmd.Context(), app.Config.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			summaries, err := repo.NewReportRepo(pool).List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATUS", "BACKEND", "INSTANCES", "MEAN_GAP", "STARTED"}
			rows := make([][]string, len(summaries))
			for i, s := range summaries {
				rows[i] = []string{
					s.ID.String(),
					string(s.Status),
					s.Backend,
					strconv.Itoa(s.InstanceCount),
					formatGap(s.MeanGap),
					s.StartedAt.Format("2006-01-02 15:04:05"),
				}
			}

			app.Out.Print(headers, rows, summaries)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")

	return cmd
}

func newReportShowCmd(appFn AppFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			app, err := appFn(cmd)
			if err != nil {
				return err
			}

			pool, err := repo.NewPool(cmd.Context(), app.Config.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			report, err := repo.NewReportRepo(pool).Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			app.Out.Report(report)
			return nil
		},
	}
}
