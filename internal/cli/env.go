// Package cli holds the ledgerctl operator commands.
package cli

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fablecast/entitlement/internal/platform/db"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/logger"
)

// Env is what every command needs: config, logger and a database handle.
type Env struct {
	Cfg *config.Config
	Log *zap.SugaredLogger
	DB  *gorm.DB
}

func (e *Env) Close() {
	if sqlDB, err := e.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = e.Log.Sync()
}

// openEnv loads config (honouring --config) and connects to the database
// without running migrations.
func openEnv(configPath string) (*Env, error) {
	if configPath != "" {
		if err := os.Setenv("APP_CONFIG_FILE", configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	gdb, err := db.NewDB(log, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &Env{Cfg: cfg, Log: log, DB: gdb}, nil
}
