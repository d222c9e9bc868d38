// Package cli implements the medallion command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"retail-medallion/internal/config"
	internaldb "retail-medallion/internal/db"
	"retail-medallion/internal/db/repository"
	"retail-medallion/internal/service/pipeline"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if getOutputFormat(rootCmd) == "json" {
			_ = PrintJSON(os.Stdout, map[string]interface{}{
				"error": err.Error(),
				"kind":  errorKind(err),
			})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// app is the state resolved by the root command before any subcommand runs.
type app struct {
	cfg      *config.Config
	pipeline *config.Pipeline
	logger   *slog.Logger
}

// medallion returns stage functions for the loaded pipeline.
func (a *app) medallion() *pipeline.Medallion {
	return pipeline.NewMedallion(a.pipeline, &a.cfg.Credentials, a.logger)
}

// openLedger opens the run ledger and returns it with a repository.
func (a *app) openLedger(ctx context.Context) (*repository.RunRepo, func(), error) {
	db, err := internaldb.OpenLedger(ctx, a.cfg.StateDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open run ledger %s: %w", a.cfg.StateDBPath, err)
	}
	return repository.NewRunRepo(db), func() { _ = db.Close() }, nil
}

// runner builds a Runner over m's stages backed by the ledger.
func (a *app) runner(ctx context.Context, m *pipeline.Medallion) (*pipeline.Runner, func(), error) {
	runs, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return nil, nil, err
	}
	r, err := pipeline.NewRunner(m.Stages(), runs, a.logger, a.cfg.StageTimeout)
	if err != nil {
		closeLedger()
		return nil, nil, err
	}
	return r, closeLedger, nil
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
		output     string
		logLevel   string
	)
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "medallion",
		Short: "Retail sales medallion pipeline",
		Long: "Runs the Bronze → Silver → Gold pipeline over a retail sales CSV export:\n" +
			"land the raw file, normalize it into a typed Parquet snapshot, and\n" +
			"aggregate it into Parquet summary datasets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			if cmd.Name() == "version" {
				return nil
			}

			if err := config.LoadDotEnv(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if configPath != "" {
				cfg.PipelinePath = configPath
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			for _, w := range cfg.Warnings {
				logger.Warn(w)
			}

			p := config.DefaultPipeline()
			if cfg.PipelinePath != "" {
				if p, err = config.LoadPipeline(cfg.PipelinePath); err != nil {
					return err
				}
				logger.Debug("pipeline loaded", "path", cfg.PipelinePath)
			}

			a.cfg, a.pipeline, a.logger = cfg, p, logger
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Pipeline definition YAML (default: $MEDALLION_CONFIG or built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newStageCmd(a, "bronze", "Validate the source file and land it in the Bronze layer"))
	rootCmd.AddCommand(newStageCmd(a, "silver", "Normalize Bronze into the typed Silver snapshot"))
	rootCmd.AddCommand(newGoldCmd(a))
	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newScheduleCmd(a))
	rootCmd.AddCommand(newRunsCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
