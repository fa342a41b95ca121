// Package cmd defines and implements the CLI commands for the apply4me pipeline.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/app"
	"github.com/BhekumusaEric/apply4me-sub001/internal/config"
	"github.com/BhekumusaEric/apply4me-sub001/internal/logging"
	"github.com/BhekumusaEric/apply4me-sub001/internal/scheduler"
	"github.com/BhekumusaEric/apply4me-sub001/internal/synchronizer"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. Tests inject a
// mock through the factory passed to newRootCmd.
type App interface {
	Close()
	Run(ctx context.Context) error
	Tasks() []scheduler.Task
	RunTask(ctx context.Context, taskID string) (scheduler.Result, error)
	Sweep(ctx context.Context) (synchronizer.SweepResult, error)
}

type appFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error)

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.Build(ctx, cfg, logger)
}

type rootOptions struct {
	configFile string
	envFile    string
}

// newRootCmd creates the root command. Every subcommand gets a built App
// from the context; PersistentPostRun closes it.
func newRootCmd(factory appFactory) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "apply4me",
		Short: "Discovers and synchronizes South African study opportunities.",
		Long: `apply4me scrapes institution and bursary sources, keeps the opportunity
catalog in sync and notifies subscribers about new entries and closing
deadlines. Tasks run on cron schedules under "serve" or once via "run".`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := factory(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newTasksCmd())
	return cmd
}

// loadEnvFile reads KEY=value pairs into the environment. A missing file is
// not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd(buildApp).Execute(); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
