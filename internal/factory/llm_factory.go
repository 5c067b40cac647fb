package factory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	ollamaapi "github.com/ollama/ollama/api"
	openaiapi "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/bedrock"
	"github.com/mikey/llm-mail-triage/internal/adapters/gemini"
	"github.com/mikey/llm-mail-triage/internal/adapters/ollama"
	"github.com/mikey/llm-mail-triage/internal/adapters/openai"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

// LLMFactory creates classifiers
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClassifier creates a classifier for the configured provider
func (f *LLMFactory) CreateClassifier(ctx context.Context) (core.Classifier, error) {
	provider := f.cfg.GetLLM().Provider
	f.logger.Info("Creating classifier", zap.String("provider", provider))

	switch provider {
	case "openai":
		return f.createOpenAI()
	case "gemini":
		return f.createGemini(ctx)
	case "bedrock":
		return f.createBedrock(ctx)
	case "ollama":
		return f.createOllama()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

func (f *LLMFactory) createOpenAI() (core.Classifier, error) {
	c := f.cfg.GetOpenAI()
	if c.APIKey == "" && c.BaseURL == "" {
		return nil, fmt.Errorf("openai.api_key is required")
	}

	clientCfg := openaiapi.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		clientCfg.BaseURL = c.BaseURL
	}

	return openai.NewOpenAIClient(
		openaiapi.NewClientWithConfig(clientCfg),
		c.ModelName,
		c.MaxTokens,
		c.Temperature,
		c.TopP,
		c.MaxBodySize,
		f.logger,
		f.textProcessor,
	), nil
}

func (f *LLMFactory) createGemini(ctx context.Context) (core.Classifier, error) {
	c := f.cfg.GetGemini()
	if c.APIKey == "" {
		return nil, fmt.Errorf("gemini.api_key is required")
	}

	return gemini.NewGeminiClient(
		ctx,
		c.APIKey,
		c.ModelName,
		c.MaxTokens,
		c.Temperature,
		c.TopP,
		c.MaxBodySize,
		f.logger,
		f.textProcessor,
	)
}

func (f *LLMFactory) createBedrock(ctx context.Context) (core.Classifier, error) {
	c := f.cfg.GetBedrock()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return bedrock.NewBedrockClient(
		bedrockruntime.NewFromConfig(awsCfg),
		c.ModelName,
		c.MaxTokens,
		c.Temperature,
		c.TopP,
		c.MaxBodySize,
		f.logger,
		f.textProcessor,
	), nil
}

func (f *LLMFactory) createOllama() (core.Classifier, error) {
	c := f.cfg.GetOllama()

	base, err := url.Parse(c.Host)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama.host %q", c.Host)
	}

	return ollama.NewOllamaClient(
		ollamaapi.NewClient(base, http.DefaultClient),
		c.ModelName,
		c.MaxTokens,
		c.Temperature,
		c.TopP,
		c.MaxBodySize,
		f.logger,
		f.textProcessor,
	), nil
}
