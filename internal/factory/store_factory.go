package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/store"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"go.uber.org/zap"
)

// StoreFactory creates storage backends based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore opens the store selected by store.type
func (f *StoreFactory) CreateStore() (core.Store, error) {
	storeCfg, err := f.cfg.GetStore()
	if err != nil {
		return nil, err
	}

	f.logger.Info("Opening store", zap.String("store_type", storeCfg.Type))

	var st core.Store
	switch storeCfg.Type {
	case "memory":
		return store.NewMemoryStore(f.logger, storeCfg.CleanupFrequency, storeCfg.RunTTL), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		st, err = openSQL(store.NewSQLiteStore(storeCfg.SQLitePath, f.logger, storeCfg.CleanupFrequency, storeCfg.RunTTL))
	case "mysql":
		st, err = openSQL(store.NewMySQLStore(storeCfg.MySQLDSN, f.logger, storeCfg.CleanupFrequency, storeCfg.RunTTL))
	case "postgres":
		st, err = openSQL(store.NewPostgresStore(storeCfg.PostgresDSN, f.logger, storeCfg.CleanupFrequency, storeCfg.RunTTL))
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func openSQL(s *store.SQLStore, err error) (core.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
