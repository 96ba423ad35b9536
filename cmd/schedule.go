package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// newScheduleCmd creates the 'schedule' subcommand, which runs batches on a
// cron schedule and serves the latest digest between runs.
func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Runs crawl batches on a cron schedule",
		Long: `Runs a batch every time schedule.cron fires (standard five-field
syntax) until interrupted. A batch that is still running when the next one is
due makes that run skip.`,
		RunE: runScheduleCommand,
	}
	cmd.Flags().String("cron", "", "cron expression (overrides schedule.cron)")
	cmd.Flags().StringSliceP("category", "c", nil, "categories to crawl (overrides schedule.categories)")
	cmd.Flags().Bool("now", false, "run one batch immediately before waiting for the schedule")
	return cmd
}

func runScheduleCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	spec := cfg.Schedule.Cron
	if v, _ := cmd.Flags().GetString("cron"); v != "" {
		spec = v
	}
	if spec == "" {
		return errors.New("no schedule: set schedule.cron or --cron")
	}
	categories := cfg.Schedule.Categories
	if v, _ := cmd.Flags().GetStringSlice("category"); len(v) > 0 {
		categories = v
	}
	runNow, _ := cmd.Flags().GetBool("now")

	ctx := cmd.Context()
	cronLog := cronLogger{logger: logger.Named("cron").Sugar()}
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	job := cron.FuncJob(func() {
		if _, err := appInstance.Crawl(ctx, categories...); err != nil {
			logger.Error("scheduled crawl failed", zap.Error(err))
		}
	})
	if _, err := c.AddJob(spec, job); err != nil {
		return fmt.Errorf("parse cron %q: %w", spec, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return appInstance.Serve(gctx)
	})
	g.Go(func() error {
		if runNow {
			job.Run()
		}
		c.Start()
		logger.Info("scheduler started", zap.String("cron", spec), zap.Strings("categories", categories))
		<-gctx.Done()
		<-c.Stop().Done()
		logger.Info("scheduler stopped")
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
