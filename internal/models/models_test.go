package models

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/fablecast/entitlement/pkg/types"
)

func TestChapterUnlock_State(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var missing *ChapterUnlock
	require.Equal(t, types.UnlockStateNone, missing.State(now))

	pending := &ChapterUnlock{Status: types.UnlockStatusPending, UnlockAt: lo.ToPtr(now.Add(time.Hour))}
	require.Equal(t, types.UnlockStatePending, pending.State(now))

	due := &ChapterUnlock{Status: types.UnlockStatusPending, UnlockAt: lo.ToPtr(now)}
	require.Equal(t, types.UnlockStateUnlocked, due.State(now))

	unlocked := &ChapterUnlock{Status: types.UnlockStatusUnlocked, UnlockAt: lo.ToPtr(now.Add(48 * time.Hour))}
	require.Equal(t, types.UnlockStateUnlocked, unlocked.State(now))
}

func TestChapter_Predicates(t *testing.T) {
	c := &Chapter{IsReleased: true, ReviewStatus: types.ReviewStatusApproved}
	require.True(t, c.Published())
	require.False(t, c.Paywalled())

	c.ReviewStatus = types.ReviewStatusPending
	require.False(t, c.Published())

	c.UnlockPrice = 30
	require.True(t, c.Paywalled())
}

func TestChampionSubscription_Current(t *testing.T) {
	now := time.Now()
	var none *ChampionSubscription
	require.False(t, none.Current(now))
	require.Nil(t, none.Snapshot())

	s := &ChampionSubscription{TierLevel: 2, TierName: "Gold", IsActive: true, EndDate: now.Add(time.Hour)}
	require.True(t, s.Current(now))
	require.False(t, s.Current(now.Add(time.Hour)))
	require.Equal(t, 2, s.Snapshot().TierLevel)

	s.IsActive = false
	require.False(t, s.Current(now))
}
