package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/prompt"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/utils"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Analyzer rates messages with a Google Gemini model
type Analyzer struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewAnalyzer creates a Gemini analyzer; opts are passed to the genai client
func NewAnalyzer(
	ctx context.Context,
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
	opts ...option.ClientOption,
) (*Analyzer, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.SystemInstruction = genai.NewUserContent(genai.Text(prompt.System))
	model.ResponseMIMEType = "application/json"

	return &Analyzer{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close closes the Gemini client
func (a *Analyzer) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// AnalyzeMessage asks the model whether msg is phishing
func (a *Analyzer) AnalyzeMessage(ctx context.Context, msg *core.Message) (*core.Analysis, error) {
	body := a.textProcessor.ProcessText(msg.Body, a.maxBodySize)

	resp, err := a.model.GenerateContent(ctx, genai.Text(prompt.Build(msg, body)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	text := replyText(resp)
	if text == "" {
		return nil, errors.New("empty response from Gemini")
	}

	analysis, err := prompt.Parse(text, a.modelName, time.Now())
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Gemini analysis complete",
		zap.Bool("is_phish", analysis.IsPhish),
		zap.Float64("confidence", analysis.Confidence))

	return analysis, nil
}

func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

var _ core.Analyzer = (*Analyzer)(nil)
