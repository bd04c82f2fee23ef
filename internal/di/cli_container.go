package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/contentapi"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/inbox"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/logging"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/telemetry"
)

// PlayerFlags are the persistent flags of the terminal player
type PlayerFlags struct {
	ConfigFile string
	BaseURL    string
	Verbose    bool
	JSONLog    bool
}

// BuildPlayerContainer wires the terminal player from flags and the config file
func BuildPlayerContainer(flags *PlayerFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *PlayerFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *PlayerFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration; flags override the file
	if err := container.Provide(func(flags *PlayerFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Debug("Loaded configuration from file", zap.String("file", used))
		}
		if flags.BaseURL != "" {
			cfg.Set("api.base_url", flags.BaseURL)
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// Register API settings and client
	if err := container.Provide(func(cfg *config.Config) (config.APIConfig, error) {
		return cfg.GetAPI()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(apiCfg config.APIConfig, logger *zap.Logger) *contentapi.Client {
		return contentapi.NewClient(apiCfg.BaseURL, apiCfg.Timeout, logger)
	}); err != nil {
		return nil, err
	}

	// Register side report queue
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*telemetry.Reporter, error) {
		t, err := cfg.GetTelemetry()
		if err != nil {
			return nil, err
		}
		return telemetry.NewReporter(logger.Named("telemetry"), telemetry.Options{
			Workers:   t.Workers,
			QueueSize: t.QueueSize,
			Timeout:   t.Timeout,
		}), nil
	}); err != nil {
		return nil, err
	}

	// Register inbox controller
	if err := container.Provide(func(cfg *config.Config) (inbox.Options, error) {
		in, err := cfg.GetInbox()
		if err != nil {
			return inbox.Options{}, err
		}
		return inbox.Options{
			InitialBatch:       in.InitialBatch,
			WaveBatch:          in.WaveBatch,
			WaveDelay:          in.WaveDelay,
			HighLevelThreshold: in.HighLevelThreshold,
			FetchTimeout:       in.FetchTimeout,
		}, nil
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(api *contentapi.Client, reporter *telemetry.Reporter, opts inbox.Options, logger *zap.Logger) *inbox.Controller {
		return inbox.NewController(api, reporter, opts, logger.Named("inbox"))
	}); err != nil {
		return nil, err
	}

	return container, nil
}
