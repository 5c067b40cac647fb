package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikey/llm-mail-triage/internal/utils"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// OllamaClient is an implementation of the Classifier interface using a local Ollama server
type OllamaClient struct {
	client        *api.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOllamaClient creates a new Ollama classifier
func NewOllamaClient(
	client *api.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OllamaClient {
	return &OllamaClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Classify asks the model for a one-word verdict and returns its raw answer
func (c *OllamaClient) Classify(ctx context.Context, sender, subject, snippet string) (string, error) {
	prompt := c.textProcessor.ClassifyPrompt(sender, subject, snippet, c.maxBodySize)

	stream := false
	req := &api.GenerateRequest{
		Model:  c.modelName,
		System: utils.SystemPrompt,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": c.temperature,
			"top_p":       c.topP,
			"num_predict": c.maxTokens,
		},
	}

	var sb strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate with Ollama: %w", err)
	}

	answer := sb.String()
	c.logger.Debug("Ollama answered", zap.String("model", c.modelName), zap.String("answer", answer))
	return answer, nil
}
