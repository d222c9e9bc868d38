package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"retail-medallion/internal/domain"
	"retail-medallion/internal/service/pipeline"
)

// execute runs the named stages (all when none) and prints the outcome.
func execute(cmd *cobra.Command, a *app, m *pipeline.Medallion, only ...string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, closeLedger, err := a.runner(ctx, m)
	if err != nil {
		return err
	}
	defer closeLedger()

	res, runErr := r.Run(ctx, domain.TriggerTypeManual, only...)
	if res == nil {
		return runErr
	}
	if err := printResult(cmd, res); err != nil {
		return err
	}
	return runErr
}

func newStageCmd(a *app, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, a, a.medallion(), name)
		},
	}
}

func newGoldCmd(a *app) *cobra.Command {
	var groupBy string
	cmd := &cobra.Command{
		Use:   "gold",
		Short: "Aggregate Silver into the Gold summary datasets",
		Long: "Aggregate Silver into the Gold summary datasets. By default every view in\n" +
			"the pipeline definition is written; --group-by writes a single view instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := a.medallion()
			if cmd.Flags().Changed("group-by") {
				dims := splitList(groupBy)
				if len(dims) == 0 {
					return errors.New("--group-by needs at least one dimension")
				}
				m.GroupBy(dims)
			}
			return execute(cmd, a, m, domain.StageGold)
		},
	}
	cmd.Flags().StringVar(&groupBy, "group-by", "", "Comma-separated dimensions (region, category, state, city)")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var stageTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run bronze, silver and gold in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("stage-timeout") {
				if stageTimeout <= 0 {
					return fmt.Errorf("--stage-timeout must be positive, got %s", stageTimeout)
				}
				a.cfg.StageTimeout = stageTimeout
			}
			return execute(cmd, a, a.medallion())
		},
	}
	cmd.Flags().DurationVar(&stageTimeout, "stage-timeout", 0, "Per-stage timeout (default: $MEDALLION_STAGE_TIMEOUT or 60s)")
	return cmd
}

func newScheduleCmd(a *app) *cobra.Command {
	var spec string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if spec == "" {
				spec = a.pipeline.Schedule.Cron
			}
			if spec == "" {
				return errors.New("no schedule: pass --cron or set schedule.cron in the pipeline definition")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, closeLedger, err := a.runner(ctx, a.medallion())
			if err != nil {
				return err
			}
			defer closeLedger()

			s, err := pipeline.NewScheduler(r, spec, a.logger)
			if err != nil {
				return err
			}
			s.Start(ctx)
			<-ctx.Done()
			s.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "Five-field cron expression (default: schedule.cron from the pipeline definition)")
	return cmd
}
