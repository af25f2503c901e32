// Package cmd defines the CLI commands for the collector executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/api"
	"github.com/Baabao/insert-itunes-collector/internal/app"
	"github.com/Baabao/insert-itunes-collector/internal/catalog"
	"github.com/Baabao/insert-itunes-collector/internal/config"
	"github.com/Baabao/insert-itunes-collector/internal/database"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the application surface commands use. It lets tests inject a
// mock container.
type App interface {
	Close()
	Logger() *zap.Logger
	Database() database.Provider
	Status() api.RunStatus
	RunCollection(ctx context.Context, genreIDs []catalog.GenreID) error
}

// newApp is the application factory, a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg)
}

// loadedCfg holds the configuration loaded by the root pre-run hook.
var loadedCfg config.Config

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert-itunes-collector",
		Short: "Walks podcast top charts and collects catalog entries.",
		Long: `insert-itunes-collector walks the ranked top chart of every enabled
podcast genre, resolves each collection's metadata, retrieves and parses
its RSS feed, and persists normalized records.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			loadedCfg = cfg

			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newCollectCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}
