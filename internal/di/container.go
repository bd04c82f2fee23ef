package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/httpapi"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/mailin"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/auth"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/factory"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/logging"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/seed"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/utils"
)

// BuildServerContainer wires the content API server from cfg
func BuildServerContainer(cfg *config.Config) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewAnalyzerFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewMailinFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register store
	if err := container.Provide(func(f *factory.StoreFactory) (core.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}

	// Register analyzer and difficulty rater
	if err := container.Provide(func(f *factory.AnalyzerFactory) (core.Analyzer, error) {
		return f.CreateAnalyzer()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewDifficultyRater); err != nil {
		return nil, err
	}

	// Register services
	if err := container.Provide(func(st core.Store, logger *zap.Logger) *core.TrainingService {
		return core.NewTrainingService(st, st, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(st core.Store, rater *core.DifficultyRater, logger *zap.Logger) *core.PvpService {
		return core.NewPvpService(st, rater, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, st core.Store, logger *zap.Logger) (*auth.Service, error) {
		authCfg, err := cfg.GetAuth()
		if err != nil {
			return nil, err
		}
		return auth.NewService(st, auth.Options{Secret: authCfg.Secret, TokenTTL: authCfg.TokenTTL}, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(st core.Store, logger *zap.Logger) *seed.Seeder {
		return seed.NewSeeder(st, logger)
	}); err != nil {
		return nil, err
	}

	// Register HTTP handler
	if err := container.Provide(httpapi.NewHandler); err != nil {
		return nil, err
	}

	// Register mail importer; nil when disabled
	if err := container.Provide(func(f *factory.MailinFactory) *mailin.Importer {
		return f.CreateImporter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}
