package factory

import (
	"fmt"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/bedrock"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/gemini"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/openai"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/utils"
	"go.uber.org/zap"
)

// AnalyzerFactory creates the LLM analyzer used to rate authored emails
type AnalyzerFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewAnalyzerFactory creates a new analyzer factory
func NewAnalyzerFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *AnalyzerFactory {
	return &AnalyzerFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateAnalyzer returns the configured analyzer, or nil for provider "none"
func (f *AnalyzerFactory) CreateAnalyzer() (core.Analyzer, error) {
	provider := f.cfg.GetAnalyzer().Provider

	switch provider {
	case "", "none":
		f.logger.Info("No analyzer configured, authored emails default to medium difficulty")
		return nil, nil
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger, f.textProcessor).CreateAnalyzer()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger, f.textProcessor).CreateAnalyzer()
	case "openai":
		return openai.NewFactory(f.cfg, f.logger, f.textProcessor).CreateAnalyzer()
	default:
		return nil, fmt.Errorf("unsupported analyzer provider: %s", provider)
	}
}
