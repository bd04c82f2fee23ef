package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/prompt"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/utils"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"
)

// Analyzer rates messages with an Amazon Bedrock model
type Analyzer struct {
	client        *bedrockruntime.Client
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewAnalyzer creates a Bedrock analyzer
func NewAnalyzer(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Analyzer {
	return &Analyzer{
		client:        client,
		modelID:       modelID,
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
	text := prompt.System + "\n\n" + prompt.Build(msg, body)

	payload, err := a.requestBody(text)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	reply, err := a.replyText(resp.Body)
	if err != nil {
		return nil, err
	}

	analysis, err := prompt.Parse(reply, a.modelID, time.Now())
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Bedrock analysis complete",
		zap.String("model_id", a.modelID),
		zap.Bool("is_phish", analysis.IsPhish),
		zap.Float64("confidence", analysis.Confidence))

	return analysis, nil
}

func (a *Analyzer) requestBody(text string) ([]byte, error) {
	switch {
	case a.isAnthropicModel():
		return json.Marshal(map[string]any{
			"prompt":               "\n\nHuman: " + text + "\n\nAssistant:",
			"max_tokens_to_sample": a.maxTokens,
			"temperature":          a.temperature,
			"top_p":                a.topP,
		})
	case a.isAmazonTitanModel():
		return json.Marshal(map[string]any{
			"inputText": text,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": a.maxTokens,
				"temperature":   a.temperature,
				"topP":          a.topP,
			},
		})
	default:
		return json.Marshal(map[string]any{
			"prompt":      text,
			"max_tokens":  a.maxTokens,
			"temperature": a.temperature,
			"top_p":       a.topP,
		})
	}
}

func (a *Analyzer) replyText(body []byte) (string, error) {
	switch {
	case a.isAnthropicModel():
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return claudeResp.Completion, nil
	case a.isAmazonTitanModel():
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", errors.New("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	default:
		var genericResp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
		}
		for _, s := range []string{genericResp.Output, genericResp.Text, genericResp.Response} {
			if s != "" {
				return s, nil
			}
		}
		return string(body), nil
	}
}

func (a *Analyzer) isAnthropicModel() bool {
	return strings.HasPrefix(a.modelID, "anthropic.claude")
}

func (a *Analyzer) isAmazonTitanModel() bool {
	return strings.HasPrefix(a.modelID, "amazon.titan")
}

var _ core.Analyzer = (*Analyzer)(nil)
