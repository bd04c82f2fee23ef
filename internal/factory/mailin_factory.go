package factory

import (
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/mailin"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/allowlist"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"go.uber.org/zap"
)

// MailinFactory creates the SMTP importer for player-authored levels
type MailinFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	pvp    *core.PvpService
}

// NewMailinFactory creates a new mail importer factory
func NewMailinFactory(cfg *config.Config, logger *zap.Logger, pvp *core.PvpService) *MailinFactory {
	return &MailinFactory{
		cfg:    cfg,
		logger: logger,
		pvp:    pvp,
	}
}

// CreateImporter returns the importer, or nil when mailin.enabled is false
func (f *MailinFactory) CreateImporter() *mailin.Importer {
	mailCfg := f.cfg.GetMailin()
	if !mailCfg.Enabled {
		return nil
	}

	logger := f.logger.Named("mailin")
	return mailin.NewImporter(f.pvp, allowlist.NewChecker(mailCfg.AllowedDomains, logger), mailin.Options{
		ListenAddress:   mailCfg.ListenAddress,
		Domain:          mailCfg.Domain,
		Username:        mailCfg.Username,
		Password:        mailCfg.Password,
		MaxMessageBytes: mailCfg.MaxMessageBytes,
	}, logger)
}
