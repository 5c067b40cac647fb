package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikey/llm-mail-triage/internal/di"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &di.Options{}

	rootCmd := &cobra.Command{
		Use:           "llm-mail-triage",
		Short:         "Label recent mail as spam, ham or unsure with a language model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "Path to config file (default: search standard locations)")
	flags.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose logging")
	flags.BoolVar(&opts.JSONLog, "json-log", false, "Output logs in JSON format")

	rootCmd.AddCommand(newRunCmd(opts), newClassifyCmd(opts))
	return rootCmd
}
