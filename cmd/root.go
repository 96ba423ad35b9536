// Package cmd defines and implements the CLI commands for the digest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/app"
	"github.com/JakeFAU/article-digest/internal/config"
	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Crawl(ctx context.Context, categories ...string) (crawler.Digest, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
	Logger() *zap.Logger
	Config() config.Config
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, configPath string) (App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	hub, err := logging.NewSentryHub(cfg.Sentry.DSN, cfg.Sentry.Environment)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development, logging.WithSentry(hub))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command. The returned cleanup
// closes the application, if one was built, and must run after Execute
// whether or not the command failed.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile     string
		appInstance App
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Collects and summarizes recent articles from configured sources.",
		Long: `digest crawls the blogs, feeds and JSON APIs listed in its source
catalog, extracts each article, summarizes it in English and Chinese, and
writes the resulting digest to every configured output.`,
		SilenceUsage: true,

		// Build the application once and hand it to the subcommand via the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			built, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			appInstance = built
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, built))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSourcesCmd())
	cmd.AddCommand(newScheduleCmd())

	cleanup := func() {
		if appInstance == nil {
			return
		}
		logger := appInstance.Logger()
		if err := appInstance.Close(context.Background()); err != nil {
			logger.Warn("error closing application services", zap.Error(err))
		}
		_ = logger.Sync()
		appInstance = nil
	}
	return cmd, cleanup
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, cleanup := newRootCmd()
	err := root.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		stop()
		os.Exit(1)
	}
}
