package openai

import (
	"context"
	"fmt"

	"github.com/mikey/llm-mail-triage/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient is an implementation of the Classifier interface using OpenAI
type OpenAIClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIClient creates a new OpenAI classifier
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	return &OpenAIClient{
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
func (c *OpenAIClient) Classify(ctx context.Context, sender, subject, snippet string) (string, error) {
	prompt := c.textProcessor.ClassifyPrompt(sender, subject, snippet, c.maxBodySize)

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: utils.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}

	// No choices is an empty answer, not a transport failure
	if len(resp.Choices) == 0 {
		c.logger.Warn("Empty response from OpenAI", zap.String("model", c.modelName), zap.String("response_id", resp.ID))
		return "", nil
	}

	answer := resp.Choices[0].Message.Content
	c.logger.Debug("OpenAI answered",
		zap.String("model", c.modelName),
		zap.String("response_id", resp.ID),
		zap.String("answer", answer))
	return answer, nil
}
