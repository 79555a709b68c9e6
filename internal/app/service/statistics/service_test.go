package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/internal/app/service/capability"
	"github.com/fablecast/entitlement/internal/app/service/champion"
	"github.com/fablecast/entitlement/internal/app/service/unlock"
	"github.com/fablecast/entitlement/internal/app/service/wallet"
	"github.com/fablecast/entitlement/internal/platform/db/dbtest"
	"github.com/fablecast/entitlement/internal/platform/lock"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/types"
)

func TestGetLedgerStatistic(t *testing.T) {
	db := dbtest.New(t)
	l := zap.NewNop().Sugar()
	cfg := config.Default()
	caps := capability.New(db, l)
	locker := lock.NewLocal(2 * time.Second)
	wl := wallet.New(db, l)
	unlocks := unlock.New(db, wl, locker, config.Default(), l)
	ch := champion.New(db, cfg, locker, caps, l)
	svc := New(db, caps, cfg, l)
	ctx := context.Background()

	u := dbtest.SeedUser(t, db, 0)
	other := dbtest.SeedUser(t, db, 0)
	n := dbtest.SeedNovel(t, db)
	dbtest.SeedTier(t, db, n.ID, 1, 5, "2.99")
	dbtest.SeedTier(t, db, n.ID, 2, 10, "4.99")
	c1 := dbtest.SeedChapter(t, db, n.ID, 1, dbtest.Price(30), dbtest.Locked())
	c2 := dbtest.SeedChapter(t, db, n.ID, 2, dbtest.Price(20), dbtest.Locked())

	_, err := wl.Credit(ctx, u.ID, 500, types.KarmaTransactionTypePurchase, nil)
	require.NoError(t, err)
	_, err = wl.Credit(ctx, u.ID, 50, types.KarmaTransactionTypeReward, nil)
	require.NoError(t, err)
	_, err = unlocks.ConsumeKarma(ctx, u.ID, c1.ID, 30)
	require.NoError(t, err)
	_, err = unlocks.ConsumeKarma(ctx, u.ID, c2.ID, 20)
	require.NoError(t, err)
	_, err = ch.Subscribe(ctx, u.ID, n.ID, 1, "card")
	require.NoError(t, err)
	_, err = ch.Subscribe(ctx, other.ID, n.ID, 2, "paypal")
	require.NoError(t, err)

	today := time.Now().UTC().Format(time.DateOnly)
	res, err := svc.GetLedgerStatistic(ctx, &StatisticRequest{DataItems: []*StatisticDataItem{
		{ID: StatisticTypeDailyKarmaConsumed},
		{ID: StatisticTypeDailyKarmaPurchased},
		{ID: StatisticTypeDailyChampionRevenue},
		{ID: StatisticTypeActiveChampionCount},
		{ID: StatisticTypeDailyUnlockCount},
	}})
	require.NoError(t, err)

	require.Equal(t, []StatisticResponseDataItem{{Date: today, Value: 50, Value2: 2}}, res.DataItems[StatisticTypeDailyKarmaConsumed])
	require.Equal(t, []StatisticResponseDataItem{{Date: today, Value: 500, Value2: 1}}, res.DataItems[StatisticTypeDailyKarmaPurchased])
	require.Equal(t, []StatisticResponseDataItem{{Date: today, Label: "USD", Value: 798, Value2: 2}}, res.DataItems[StatisticTypeDailyChampionRevenue])
	require.Equal(t, []StatisticResponseDataItem{{Date: today, Value: 2}}, res.DataItems[StatisticTypeActiveChampionCount])
	require.Equal(t, []StatisticResponseDataItem{{Date: today, Label: "karma", Value: 2, Value2: 50}}, res.DataItems[StatisticTypeDailyUnlockCount])
}

func TestGetLedgerStatistic_Filters(t *testing.T) {
	db := dbtest.New(t)
	l := zap.NewNop().Sugar()
	cfg := config.Default()
	caps := capability.New(db, l)
	ch := champion.New(db, cfg, lock.NewLocal(2*time.Second), caps, l)
	svc := New(db, caps, cfg, l)
	ctx := context.Background()

	u := dbtest.SeedUser(t, db, 0)
	n := dbtest.SeedNovel(t, db)
	dbtest.SeedTier(t, db, n.ID, 1, 5, "2.99")
	_, err := ch.Subscribe(ctx, u.ID, n.ID, 1, "card")
	require.NoError(t, err)

	res, err := svc.GetLedgerStatistic(ctx, &StatisticRequest{
		Filters: []*types.CommonFilter{{Field: "payment_method", Operator: types.CommonFilterOperatorEq, Values: []any{"paypal"}}},
		DataItems: []*StatisticDataItem{
			{ID: StatisticTypeDailyChampionRevenue},
			{ID: StatisticTypeDailyKarmaPurchased},
		},
	})
	require.NoError(t, err)
	require.Empty(t, res.DataItems[StatisticTypeDailyChampionRevenue])
	// payment_method does not apply to karma rows.
	require.Contains(t, res.DataItems, StatisticTypeDailyKarmaPurchased)
	require.Nil(t, res.DataItems[StatisticTypeDailyKarmaPurchased])

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format(time.DateOnly)
	res, err = svc.GetLedgerStatistic(ctx, &StatisticRequest{
		Filters:   []*types.CommonFilter{{Field: "created_at", Operator: types.CommonFilterOperatorDateRange, Values: []any{tomorrow, nil}}},
		DataItems: []*StatisticDataItem{{ID: StatisticTypeDailyChampionRevenue}},
	})
	require.NoError(t, err)
	require.Empty(t, res.DataItems[StatisticTypeDailyChampionRevenue])
}

func TestGetLedgerStatistic_Validation(t *testing.T) {
	db := dbtest.New(t)
	l := zap.NewNop().Sugar()
	svc := New(db, capability.New(db, l), config.Default(), l)
	ctx := context.Background()

	_, err := svc.GetLedgerStatistic(ctx, &StatisticRequest{})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.GetLedgerStatistic(ctx, &StatisticRequest{
		Filters:   []*types.CommonFilter{{Field: "user_id; drop table users", Operator: types.CommonFilterOperatorEq, Values: []any{1}}},
		DataItems: []*StatisticDataItem{{ID: StatisticTypeDailyKarmaConsumed}},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.GetLedgerStatistic(ctx, &StatisticRequest{DataItems: []*StatisticDataItem{{ID: "daily_gmv"}}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}
