package db

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/internal/platform/db/dbtest"
	cfgpkg "github.com/fablecast/entitlement/pkg/config"
)

func TestNewStrategy(t *testing.T) {
	l := zap.NewNop().Sugar()

	s, err := NewStrategy("", l)
	require.NoError(t, err)
	require.Equal(t, "auto", s.Name())

	s, err = NewStrategy("GOOSE", l)
	require.NoError(t, err)
	require.Equal(t, "goose", s.Name())

	_, err = NewStrategy("flyway", l)
	require.Error(t, err)
}

func TestAutoStrategy_Up(t *testing.T) {
	gdb := dbtest.Open(t, false)
	s, err := NewStrategy("auto", zap.NewNop().Sugar())
	require.NoError(t, err)

	require.NoError(t, s.Up(gdb))
	for _, m := range models.All() {
		require.True(t, gdb.Migrator().HasTable(m))
	}
	require.True(t, gdb.Migrator().HasColumn(&models.ChampionTransaction{}, models.ColumnMembershipAfter))
	require.Error(t, s.Down(gdb, 1))
}

func TestGooseStrategy_RequiresPostgres(t *testing.T) {
	gdb := dbtest.Open(t, false)
	s := &GooseStrategy{log: zap.NewNop().Sugar()}
	require.ErrorContains(t, s.Up(gdb), "require postgres")
}

func TestMigrations_Embedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)
}

func TestMigrate_UsesConfiguredStrategy(t *testing.T) {
	gdb := dbtest.Open(t, false)
	cfg := cfgpkg.Default()
	cfg.Database.Migration = "auto"
	require.NoError(t, Migrate(zap.NewNop().Sugar(), cfg, gdb))
	require.True(t, gdb.Migrator().HasTable(&models.KarmaTransaction{}))
}
