package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/di"
)

func newRunCmd(opts *di.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Triage the most recent messages once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container, err := di.BuildContainer(ctx, *opts)
			if err != nil {
				return fmt.Errorf("failed to build dependency container: %w", err)
			}

			return container.Invoke(func(
				logger *zap.Logger,
				pipeline *core.Pipeline,
				mail core.MailClient,
				classifier core.Classifier,
				cache core.VerdictCache,
			) error {
				defer logger.Sync()
				defer release(logger, mail, classifier, cache)

				return runOnce(ctx, pipeline, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Classify and log without labeling or deleting")
	cmd.Flags().IntVar(&opts.MaxResults, "max-results", 0, "Number of recent messages to fetch (default from config)")
	return cmd
}

// runOnce runs the pipeline and prints the report. Delete failures are
// reported after the summary and make the command fail.
func runOnce(ctx context.Context, pipeline *core.Pipeline, out io.Writer) error {
	report, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	printReport(out, report)
	if report.DeleteErr != nil {
		return fmt.Errorf("%d spam message(s) could not be deleted: %w",
			len(multierr.Errors(report.DeleteErr)), report.DeleteErr)
	}
	return nil
}

func printReport(out io.Writer, report *core.Report) {
	fmt.Fprintf(out, "Processed %d email(s)\n", report.Processed)

	labels := make([]string, 0, len(report.Counts))
	for label := range report.Counts {
		labels = append(labels, string(label))
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(out, "  %-7s %d\n", label, report.Counts[core.Label(label)])
	}

	if len(report.Deleted) > 0 {
		fmt.Fprintf(out, "Deleted %d spam email(s)\n", len(report.Deleted))
	}
	if len(report.Retained) > 0 {
		fmt.Fprintf(out, "Kept %d spam email(s) for review\n", len(report.Retained))
	}
}

// release closes whatever the run opened
func release(logger *zap.Logger, closers ...interface{}) {
	for _, c := range closers {
		switch v := c.(type) {
		case interface{ Close() error }:
			if err := v.Close(); err != nil {
				logger.Error("Failed to close resource", zap.Error(err))
			}
		case interface{ Stop() }:
			v.Stop()
		}
	}
}
