package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/prompt"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Analyzer rates messages with an OpenAI chat model
type Analyzer struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewAnalyzer creates an OpenAI analyzer
func NewAnalyzer(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Analyzer {
	return &Analyzer{
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

// AnalyzeMessage asks the model whether msg is phishing
func (a *Analyzer) AnalyzeMessage(ctx context.Context, msg *core.Message) (*core.Analysis, error) {
	body := a.textProcessor.ProcessText(msg.Body, a.maxBodySize)

	req := openai.ChatCompletionRequest{
		Model: a.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.Build(msg, body)},
		},
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		TopP:        a.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from OpenAI")
	}

	analysis, err := prompt.Parse(resp.Choices[0].Message.Content, a.modelName, time.Now())
	if err != nil {
		return nil, err
	}

	a.logger.Debug("OpenAI analysis complete",
		zap.String("processing_id", resp.ID),
		zap.Bool("is_phish", analysis.IsPhish),
		zap.Float64("confidence", analysis.Confidence))

	return analysis, nil
}

var _ core.Analyzer = (*Analyzer)(nil)
