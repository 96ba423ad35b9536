package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/article-digest/internal/sink"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs a single batch.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl and summarization batch",
		Long: `Crawls every source in the selected categories (all categories when
none are given), summarizes up to articles_per_site articles per source, and
writes the digest to the configured outputs. The metrics and digest API are
served for the duration of the batch when metrics.listen_addr is set.`,
		Example: "  digest crawl --category ai --category arxiv",
		RunE:    runCrawlCommand,
	}
	cmd.Flags().StringSliceP("category", "c", nil, "category to crawl (repeatable)")
	cmd.Flags().Bool("print", false, "print the digest as JSON to stdout")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	categories, err := cmd.Flags().GetStringSlice("category")
	if err != nil {
		return err
	}
	printDigest, err := cmd.Flags().GetBool("print")
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return appInstance.Serve(gctx)
	})
	g.Go(func() error {
		// The server only lives as long as the batch.
		defer cancel()
		digest, err := appInstance.Crawl(gctx, categories...)
		if err != nil {
			return fmt.Errorf("run crawl: %w", err)
		}
		logger.Info("crawl command finished",
			zap.String("run_id", digest.RunID),
			zap.Int("articles", len(digest.Articles)),
		)
		if !printDigest {
			return nil
		}
		data, err := sink.Encode(digest)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	})
	return g.Wait()
}
