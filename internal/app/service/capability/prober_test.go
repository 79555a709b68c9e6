package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/internal/platform/db/dbtest"
)

const legacyChampionTransactions = `CREATE TABLE champion_transactions (
	id varchar(36) PRIMARY KEY,
	user_id integer NOT NULL,
	novel_id integer NOT NULL,
	tier_level integer NOT NULL,
	tier_name varchar(128) NOT NULL,
	monthly_price decimal(12,2) NOT NULL,
	subscription_type varchar(32) NOT NULL,
	payment_status varchar(32) NOT NULL,
	payment_method varchar(32) NOT NULL,
	created_at datetime,
	updated_at datetime
)`

func TestProber_FullSchema(t *testing.T) {
	db := dbtest.New(t)
	p := New(db, zap.NewNop().Sugar())
	ctx := context.Background()

	missing, err := p.Missing(ctx, "champion_transactions", ChampionTransactionOptional()...)
	require.NoError(t, err)
	require.Empty(t, missing)
	col, err := p.Column(ctx, "champion_transactions", models.ColumnCurrency)
	require.NoError(t, err)
	require.Equal(t, "champion_transactions.currency", col)
	require.NoError(t, p.Warm(ctx))
}

func TestProber_LegacySchemaAndRefresh(t *testing.T) {
	db := dbtest.Open(t, false)
	require.NoError(t, db.Exec(legacyChampionTransactions).Error)
	p := New(db, zap.NewNop().Sugar())
	ctx := context.Background()

	missing, err := p.Missing(ctx, "champion_transactions", ChampionTransactionOptional()...)
	require.NoError(t, err)
	require.ElementsMatch(t, ChampionTransactionOptional(), missing)
	col, err := p.Column(ctx, "champion_transactions", models.ColumnProviderRef)
	require.NoError(t, err)
	require.Equal(t, "NULL AS provider_ref", col)

	require.NoError(t, db.Exec("ALTER TABLE champion_transactions ADD COLUMN provider_ref varchar(128)").Error)
	// cached until refreshed
	ok, err := p.Has(ctx, "champion_transactions", models.ColumnProviderRef)
	require.NoError(t, err)
	require.False(t, ok)
	p.Refresh()
	ok, err = p.Has(ctx, "champion_transactions", models.ColumnProviderRef)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProber_FailedLookupIsNotCached(t *testing.T) {
	db := dbtest.New(t)
	p := New(db, zap.NewNop().Sugar())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Has(cancelled, "champion_transactions", models.ColumnProviderRef)
	require.Error(t, err)

	ok, err := p.Has(context.Background(), "champion_transactions", models.ColumnProviderRef)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProber_MissingTable(t *testing.T) {
	db := dbtest.Open(t, false)
	p := New(db, zap.NewNop().Sugar())
	ctx := context.Background()

	_, err := p.Missing(ctx, "champion_transactions", ChampionTransactionOptional()...)
	require.Error(t, err)
	require.Error(t, p.Warm(ctx))

	require.NoError(t, db.Exec(legacyChampionTransactions).Error)
	ok, err := p.Has(ctx, "champion_transactions", "tier_name")
	require.NoError(t, err)
	require.True(t, ok)
}
