package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/factory"
	"github.com/mikey/llm-mail-triage/internal/logging"
	"github.com/mikey/llm-mail-triage/internal/utils"
	"github.com/mikey/llm-mail-triage/internal/whitelist"
)

// Options carries command line overrides into the container.
// Zero values leave the configuration untouched.
type Options struct {
	ConfigFile string
	Verbose    bool
	JSONLog    bool
	DryRun     bool
	MaxResults int
}

// BuildContainer creates and configures a dependency injection container.
// Providers run lazily, so commands only build what they invoke.
func BuildContainer(ctx context.Context, opts Options) (*dig.Container, error) {
	container := dig.New()

	providers := []interface{}{
		func() context.Context { return ctx },
		func() (*config.Config, error) { return loadConfig(opts) },
		logging.InitLogger,
		utils.NewTextProcessor,

		factory.NewLLMFactory,
		factory.NewMailFactory,
		factory.NewCacheFactory,

		func(ctx context.Context, f *factory.LLMFactory) (core.Classifier, error) {
			return f.CreateClassifier(ctx)
		},
		func(ctx context.Context, f *factory.MailFactory) (core.MailClient, error) {
			return f.CreateMailClient(ctx)
		},
		func(ctx context.Context, f *factory.CacheFactory) (core.VerdictCache, error) {
			return f.CreateVerdictCache(ctx)
		},
		func(cfg *config.Config, logger *zap.Logger) core.Whitelist {
			return whitelist.NewChecker(cfg.GetStringSlice("triage.whitelisted_domains"), logger)
		},
		PipelineOptions,
		core.NewPipeline,
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return nil, err
		}
	}

	return container, nil
}

// PipelineOptions maps the triage and cache configuration onto core.Options
func PipelineOptions(cfg *config.Config) (core.Options, error) {
	triage, err := cfg.GetTriage()
	if err != nil {
		return core.Options{}, err
	}
	cacheCfg, err := cfg.GetCache()
	if err != nil {
		return core.Options{}, err
	}

	return core.Options{
		MaxResults:   triage.MaxResults,
		LabelRetries: triage.LabelRetries,
		RetryBackoff: triage.RetryBackoff,
		Labels: core.LabelNames{
			Spam:   triage.SpamLabel,
			Ham:    triage.HamLabel,
			Unsure: triage.UnsureLabel,
		},
		DeleteSpam: triage.DeleteSpam,
		DryRun:     triage.DryRun,
		CacheTTL:   cacheCfg.TTL,
	}, nil
}

func loadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.New(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	if opts.Verbose {
		cfg.Set("logging.level", "debug")
	}
	if opts.JSONLog {
		cfg.Set("logging.format", "json")
	}
	if opts.DryRun {
		cfg.Set("triage.dry_run", true)
	}
	if opts.MaxResults > 0 {
		cfg.Set("triage.max_results", opts.MaxResults)
	}

	return cfg, nil
}
