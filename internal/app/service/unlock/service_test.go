package unlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fablecast/entitlement/internal/app/service/wallet"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/internal/platform/db/dbtest"
	"github.com/fablecast/entitlement/internal/platform/lock"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/types"
)

type fixture struct {
	db     *gorm.DB
	wallet *wallet.Service
	svc    *Service
	novel  *models.Novel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	l := zap.NewNop().Sugar()
	w := wallet.New(db, l)
	return &fixture{
		db:     db,
		wallet: w,
		svc:    New(db, w, lock.NewLocal(2*time.Second), config.Default(), l),
		novel:  dbtest.SeedNovel(t, db),
	}
}

func (f *fixture) user(t *testing.T, karma int64) *models.User {
	t.Helper()
	u := dbtest.SeedUser(t, f.db, 0)
	if karma > 0 {
		_, err := f.wallet.Credit(context.Background(), u.ID, karma, types.KarmaTransactionTypePurchase, nil)
		require.NoError(t, err)
	}
	return u
}

func TestConsumeKarma_ScenarioA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 100)
	ch := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Price(30), dbtest.Locked())

	res, err := f.svc.ConsumeKarma(ctx, u.ID, ch.ID, 30)
	require.NoError(t, err)
	require.True(t, res.Charged)
	require.Equal(t, int64(70), res.NewBalance)

	var txns []models.KarmaTransaction
	require.NoError(t, f.db.Where("user_id = ? AND transaction_type = ?", u.ID, types.KarmaTransactionTypeConsumption).Find(&txns).Error)
	require.Len(t, txns, 1)
	require.Equal(t, int64(-30), txns[0].KarmaAmount)
	require.Equal(t, int64(100), txns[0].BalanceBefore)
	require.Equal(t, int64(70), txns[0].BalanceAfter)
	require.Equal(t, ch.ID, *txns[0].ChapterID)

	row, err := f.svc.Get(ctx, u.ID, ch.ID)
	require.NoError(t, err)
	require.Equal(t, types.UnlockStatusUnlocked, row.Status)
	require.Equal(t, types.UnlockMethodKarma, row.UnlockMethod)
	require.Equal(t, int64(30), row.Cost)
}

func TestConsumeKarma_AlreadyUnlockedNotCharged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 100)
	ch := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Price(30))

	_, err := f.svc.ConsumeKarma(ctx, u.ID, ch.ID, 30)
	require.NoError(t, err)
	res, err := f.svc.ConsumeKarma(ctx, u.ID, ch.ID, 30)
	require.NoError(t, err)
	require.False(t, res.Charged)
	require.Equal(t, int64(70), res.NewBalance)
	require.Equal(t, int64(70), dbtest.Balance(t, f.db, u.ID))
}

func TestConsumeKarma_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 20)
	ch := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Price(30))

	_, err := f.svc.ConsumeKarma(ctx, u.ID, ch.ID, 0)
	require.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.ConsumeKarma(ctx, u.ID, ch.ID, 25)
	require.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.ConsumeKarma(ctx, u.ID, 424242, 30)
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.ConsumeKarma(ctx, u.ID, ch.ID, 30)
	require.True(t, errors.Is(err, apperr.ErrInsufficientKarma))

	state, err := f.svc.ResolveStatus(ctx, u.ID, ch.ID)
	require.NoError(t, err)
	require.Equal(t, types.UnlockStateNone, state, "failed unlock must leave no row")
	require.Equal(t, int64(20), dbtest.Balance(t, f.db, u.ID))
}

func TestConsumeKarma_ConcurrentSameChapterChargesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 30)
	ch := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Price(30))

	var wg sync.WaitGroup
	results := make([]*ConsumeResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ConsumeKarma(ctx, u.ID, ch.ID, 30)
		}(i)
	}
	wg.Wait()

	charged := 0
	for i := range errs {
		if errs[i] != nil {
			require.True(t, errors.Is(errs[i], apperr.ErrConflict) || errors.Is(errs[i], apperr.ErrInsufficientKarma), errs[i])
			continue
		}
		if results[i].Charged {
			charged++
		}
	}
	require.Equal(t, 1, charged)
	require.Equal(t, int64(0), dbtest.Balance(t, f.db, u.ID))

	var n int64
	require.NoError(t, f.db.Model(&models.KarmaTransaction{}).Where("user_id = ? AND transaction_type = ?", u.ID, types.KarmaTransactionTypeConsumption).Count(&n).Error)
	require.Equal(t, int64(1), n)
}

func TestConsumeKarma_ConcurrentDifferentChaptersRespectBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 30)
	a := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Price(30))
	b := dbtest.SeedChapter(t, f.db, f.novel.ID, 2, dbtest.Price(30))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, ch := range []*models.Chapter{a, b} {
		wg.Add(1)
		go func(i int, id uint64) {
			defer wg.Done()
			_, errs[i] = f.svc.ConsumeKarma(ctx, u.ID, id, 30)
		}(i, ch.ID)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.True(t, errors.Is(err, apperr.ErrInsufficientKarma), err)
	}
	require.Equal(t, 1, ok)

	rec, err := f.wallet.Reconcile(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, rec.Consistent)
	require.Equal(t, int64(0), rec.Balance)
}

func TestScheduleTimeUnlock_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 0)
	ch := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Locked())
	at := time.Now().Add(24 * time.Hour)

	first, err := f.svc.ScheduleTimeUnlock(ctx, u.ID, ch.ID, at)
	require.NoError(t, err)
	second, err := f.svc.ScheduleTimeUnlock(ctx, u.ID, ch.ID, at)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var n int64
	require.NoError(t, f.db.Model(&models.ChapterUnlock{}).Where("user_id = ? AND chapter_id = ?", u.ID, ch.ID).Count(&n).Error)
	require.Equal(t, int64(1), n)

	state, err := f.svc.ResolveStatus(ctx, u.ID, ch.ID)
	require.NoError(t, err)
	require.Equal(t, types.UnlockStatePending, state)

	later := at.Add(time.Hour)
	moved, err := f.svc.ScheduleTimeUnlock(ctx, u.ID, ch.ID, later)
	require.NoError(t, err)
	require.True(t, moved.UnlockAt.Equal(later.UTC().Truncate(time.Microsecond)))

	_, err = f.svc.ScheduleTimeUnlock(ctx, u.ID, ch.ID, time.Time{})
	require.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestMonotonic_UnlockedNeverReturnsToPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 50)
	ch := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Price(50))

	_, err := f.svc.ScheduleTimeUnlock(ctx, u.ID, ch.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	res, err := f.svc.ConsumeKarma(ctx, u.ID, ch.ID, 50)
	require.NoError(t, err)
	require.True(t, res.Charged)

	row, err := f.svc.ScheduleTimeUnlock(ctx, u.ID, ch.ID, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	require.Equal(t, types.UnlockStatusUnlocked, row.Status)

	n, err := f.svc.PromoteDue(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, n)

	state, err := f.svc.ResolveStatus(ctx, u.ID, ch.ID)
	require.NoError(t, err)
	require.Equal(t, types.UnlockStateUnlocked, state)
}

func TestResolveStatus_DuePendingAndSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 0)
	due := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Locked())
	future := dbtest.SeedChapter(t, f.db, f.novel.ID, 2, dbtest.Locked())
	none := dbtest.SeedChapter(t, f.db, f.novel.ID, 3, dbtest.Locked())

	_, err := f.svc.ScheduleTimeUnlock(ctx, u.ID, due.ID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = f.svc.ScheduleTimeUnlock(ctx, u.ID, future.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	states, err := f.svc.ResolveStatuses(ctx, u.ID, []uint64{due.ID, future.ID, none.ID})
	require.NoError(t, err)
	require.Equal(t, types.UnlockStateUnlocked, states[due.ID])
	require.Equal(t, types.UnlockStatePending, states[future.ID])
	require.Equal(t, types.UnlockStateNone, states[none.ID])

	sw := &Sweeper{svc: f.svc, batch: 1, log: zap.NewNop().Sugar()}
	n, err := sw.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	row, err := f.svc.Get(ctx, u.ID, due.ID)
	require.NoError(t, err)
	require.Equal(t, types.UnlockStatusUnlocked, row.Status)
	require.Equal(t, types.UnlockMethodTimeUnlock, row.UnlockMethod)
}

func TestConsumeKarma_DuePendingIsFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 30)
	ch := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Price(30))

	_, err := f.svc.ScheduleTimeUnlock(ctx, u.ID, ch.ID, time.Now().Add(-time.Second))
	require.NoError(t, err)
	res, err := f.svc.ConsumeKarma(ctx, u.ID, ch.ID, 30)
	require.NoError(t, err)
	require.False(t, res.Charged)
	require.Equal(t, int64(30), dbtest.Balance(t, f.db, u.ID))
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 30)
	ch := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Price(30))

	require.True(t, errors.Is(f.svc.MarkRead(ctx, u.ID, ch.ID), apperr.ErrNotFound))
	_, err := f.svc.ConsumeKarma(ctx, u.ID, ch.ID, 30)
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkRead(ctx, u.ID, ch.ID))

	row, err := f.svc.Get(ctx, u.ID, ch.ID)
	require.NoError(t, err)
	require.True(t, row.Readed)
}

func TestRequestTimeUnlock_ServerChosenDelay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 0)
	ch := dbtest.SeedChapter(t, f.db, f.novel.ID, 1, dbtest.Price(30), dbtest.Locked())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	f.svc.wait = 6 * time.Hour

	row, err := f.svc.RequestTimeUnlock(ctx, u.ID, ch.ID)
	require.NoError(t, err)
	require.Equal(t, types.UnlockStatusPending, row.Status)
	require.True(t, row.UnlockAt.Equal(now.Add(6*time.Hour)))

	f.svc.now = func() time.Time { return now.Add(6*time.Hour - time.Second) }
	state, err := f.svc.ResolveStatus(ctx, u.ID, ch.ID)
	require.NoError(t, err)
	require.Equal(t, types.UnlockStatePending, state)

	again, err := f.svc.RequestTimeUnlock(ctx, u.ID, ch.ID)
	require.NoError(t, err)
	require.Equal(t, row.ID, again.ID)
	require.True(t, again.UnlockAt.Equal(now.Add(6*time.Hour)), "asking again keeps the original time")

	f.svc.now = func() time.Time { return now.Add(6 * time.Hour) }
	state, err = f.svc.ResolveStatus(ctx, u.ID, ch.ID)
	require.NoError(t, err)
	require.Equal(t, types.UnlockStateUnlocked, state)
	require.Equal(t, int64(0), dbtest.Balance(t, f.db, u.ID))
}

func TestRequestTimeUnlock_RejectsFreeAndUnpublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 0)
	free := dbtest.SeedChapter(t, f.db, f.novel.ID, 1)
	draft := dbtest.SeedChapter(t, f.db, f.novel.ID, 2, dbtest.Price(30), dbtest.Unreleased())

	_, err := f.svc.RequestTimeUnlock(ctx, u.ID, free.ID)
	require.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = f.svc.RequestTimeUnlock(ctx, u.ID, draft.ID)
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestConsumeKarma_NothingToBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 100)
	free := dbtest.SeedChapter(t, f.db, f.novel.ID, 1)
	draft := dbtest.SeedChapter(t, f.db, f.novel.ID, 2, dbtest.Price(30), dbtest.Unreleased())
	rejected := dbtest.SeedChapter(t, f.db, f.novel.ID, 3, dbtest.Price(30), dbtest.Review(types.ReviewStatusRejected))

	_, err := f.svc.ConsumeKarma(ctx, u.ID, free.ID, 10)
	require.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = f.svc.ConsumeKarma(ctx, u.ID, draft.ID, 30)
	require.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = f.svc.ConsumeKarma(ctx, u.ID, rejected.ID, 30)
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	require.Equal(t, int64(100), dbtest.Balance(t, f.db, u.ID))
	var n int64
	require.NoError(t, f.db.Model(&models.ChapterUnlock{}).Where("user_id = ?", u.ID).Count(&n).Error)
	require.Zero(t, n)
}

func TestNew_WaitFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Unlock.WaitForFree = 2 * time.Hour
	svc := New(nil, nil, lock.NewLocal(time.Second), cfg, zap.NewNop().Sugar())
	require.Equal(t, 2*time.Hour, svc.wait)
	require.Equal(t, DefaultWaitForFree, NewWithDebiter(nil, nil, nil, zap.NewNop().Sugar()).wait)
}
