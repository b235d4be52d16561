// Package cmd defines and implements the CLI commands for the zapdeals
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zapdeals/zapdeals/internal/app"
	"github.com/zapdeals/zapdeals/internal/config"
	"github.com/zapdeals/zapdeals/internal/publisher"
	"github.com/zapdeals/zapdeals/internal/storage"
	"github.com/zapdeals/zapdeals/internal/store"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the service container interface the commands use. Tests inject
// a mock through the newApp factory variable.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Repo() store.Repository
	Archive() storage.Provider
	Events() publisher.Publisher
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zapdeals",
		Short: "Crawls, cleans and serves real-estate listings from the ZAP Imóveis portal.",
		Long: `zapdeals ingests real-estate listings neighborhood by neighborhood,
normalizes and statistically cleans them, and persists them to Postgres.
The serve command exposes the resulting first-quartile deals over HTTP.`,

		// Runs after flags are parsed but before the subcommand's RunE,
		// building and injecting the service container.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
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

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (optional)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
