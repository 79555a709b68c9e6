package db

import (
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fablecast/entitlement/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Strategy applies schema changes.
type Strategy interface {
	Name() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB, steps int) error
	Status(db *gorm.DB) error
	Version(db *gorm.DB) (int64, error)
}

func NewStrategy(name string, l *zap.SugaredLogger) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return &AutoStrategy{log: l.With("component", "migration.auto")}, nil
	case "goose":
		return &GooseStrategy{log: l.With("component", "migration.goose")}, nil
	default:
		return nil, fmt.Errorf("unknown migration strategy: %s", name)
	}
}

// AutoStrategy runs gorm AutoMigrate over every ledger model. Used for local
// development and tests.
type AutoStrategy struct {
	log *zap.SugaredLogger
}

func (s *AutoStrategy) Name() string { return "auto" }

func (s *AutoStrategy) Up(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		s.log.Errorf("automigrate failed: %v", err)
		return err
	}
	s.log.Infow("automigrate completed")
	return nil
}

func (s *AutoStrategy) Down(*gorm.DB, int) error {
	return fmt.Errorf("auto migration does not support down")
}

func (s *AutoStrategy) Status(*gorm.DB) error {
	s.log.Infow("auto migration has no version table")
	return nil
}

func (s *AutoStrategy) Version(*gorm.DB) (int64, error) { return 0, nil }

// GooseStrategy applies the versioned SQL files embedded under migrations/.
// The scripts target postgres.
type GooseStrategy struct {
	log *zap.SugaredLogger
}

func (s *GooseStrategy) Name() string { return "goose" }

func (s *GooseStrategy) prepare(db *gorm.DB) error {
	if name := db.Dialector.Name(); name != "postgres" {
		return fmt.Errorf("goose migrations require postgres, got %s", name)
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{s.log})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

func (s *GooseStrategy) Up(db *gorm.DB) error {
	if err := s.prepare(db); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	from, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if err := goose.Up(sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	to, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to get final version: %w", err)
	}
	s.log.Infow("migration completed", "from_version", from, "to_version", to)
	return nil
}

func (s *GooseStrategy) Down(db *gorm.DB, steps int) error {
	if err := s.prepare(db); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	for i := 0; i < steps; i++ {
		if err := goose.Down(sqlDB, migrationsDir); err != nil {
			return fmt.Errorf("failed to run down migration: %w", err)
		}
	}
	s.log.Infow("down migration completed", "steps", steps)
	return nil
}

func (s *GooseStrategy) Status(db *gorm.DB) error {
	if err := s.prepare(db); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return goose.Status(sqlDB, migrationsDir)
}

func (s *GooseStrategy) Version(db *gorm.DB) (int64, error) {
	if err := s.prepare(db); err != nil {
		return 0, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return 0, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return goose.GetDBVersion(sqlDB)
}

type gooseLogger struct{ l *zap.SugaredLogger }

func (g gooseLogger) Fatalf(format string, v ...interface{}) { g.l.Fatalf(format, v...) }
func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Infof(strings.TrimSuffix(format, "\n"), v...)
}
