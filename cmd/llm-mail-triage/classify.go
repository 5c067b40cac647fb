package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/di"
	"github.com/mikey/llm-mail-triage/internal/logging"
	"github.com/mikey/llm-mail-triage/internal/message"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

func newClassifyCmd(opts *di.Options) *cobra.Command {
	var inputFile string

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a single RFC 822 message without touching a mailbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if inputFile != "" {
				f, err := os.Open(inputFile)
				if err != nil {
					return fmt.Errorf("failed to open input file: %w", err)
				}
				defer f.Close()
				in = f
			}

			container, err := di.BuildContainer(cmd.Context(), *opts)
			if err != nil {
				return fmt.Errorf("failed to build dependency container: %w", err)
			}
			if err := container.Decorate(func(*zap.Logger) (*zap.Logger, error) {
				return logging.InitConsoleLogger(opts.Verbose, opts.JSONLog)
			}); err != nil {
				return err
			}

			return container.Invoke(func(
				logger *zap.Logger,
				classifier core.Classifier,
				whitelist core.Whitelist,
				pipelineOpts core.Options,
				textProcessor *utils.TextProcessor,
			) error {
				defer logger.Sync()
				defer release(logger, classifier)

				// no mailbox and no cache: a file has no stable message id to key on
				pipeline := core.NewPipeline(nil, classifier, nil, whitelist, logger, pipelineOpts)
				return classifyOne(cmd.Context(), pipeline, textProcessor, in, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "Input email file (use stdin if not specified)")
	return cmd
}

func classifyOne(ctx context.Context, pipeline *core.Pipeline, tp *utils.TextProcessor, in io.Reader, out io.Writer) error {
	parsed, err := message.Parse(in)
	if err != nil {
		return err
	}

	msg := parsed.Message("", tp, 0)
	email := &core.Email{ID: msg.ID, Subject: msg.Subject, Sender: msg.Sender, Snippet: msg.Snippet}

	label, source, err := pipeline.Decide(ctx, email)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "From:    %s\n", email.Sender)
	fmt.Fprintf(out, "Subject: %s\n", email.Subject)
	fmt.Fprintf(out, "Label:   %s (%s)\n", label, source)
	return nil
}
