// Package dbtest opens throwaway sqlite databases migrated with the ledger
// schema, plus seed helpers for service tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/types"
)

var seq atomic.Int64

// Open returns an empty database. Pass migrate=false to get a bare
// connection for building legacy schemas by hand.
func Open(t testing.TB, migrate bool) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if migrate {
		require.NoError(t, db.AutoMigrate(models.All()...))
	}
	return db
}

func New(t testing.TB) *gorm.DB { return Open(t, true) }

func SeedUser(t testing.TB, db *gorm.DB, karma int64) *models.User {
	t.Helper()
	u := &models.User{Karma: karma}
	require.NoError(t, db.Create(u).Error)
	return u
}

func SeedVIP(t testing.TB, db *gorm.DB) *models.User {
	t.Helper()
	u := &models.User{IsVIP: true}
	require.NoError(t, db.Create(u).Error)
	return u
}

func SeedNovel(t testing.TB, db *gorm.DB) *models.Novel {
	t.Helper()
	n := &models.Novel{Title: fmt.Sprintf("novel-%d", seq.Add(1))}
	require.NoError(t, db.Create(n).Error)
	return n
}

// ChapterOption adjusts a seeded chapter.
type ChapterOption func(*models.Chapter)

func Price(p int64) ChapterOption { return func(c *models.Chapter) { c.UnlockPrice = p } }
func Locked() ChapterOption       { return func(c *models.Chapter) { c.IsLocked = true } }
func Advance() ChapterOption      { return func(c *models.Chapter) { c.IsAdvance = true } }
func VIPOnly() ChapterOption      { return func(c *models.Chapter) { c.IsVIPOnly = true } }
func Unreleased() ChapterOption   { return func(c *models.Chapter) { c.IsReleased = false } }
func Review(s types.ReviewStatus) ChapterOption {
	return func(c *models.Chapter) { c.ReviewStatus = s }
}

// SeedChapter creates a released, approved, free chapter unless opts say otherwise.
func SeedChapter(t testing.TB, db *gorm.DB, novelID uint64, number int, opts ...ChapterOption) *models.Chapter {
	t.Helper()
	c := &models.Chapter{
		NovelID:       novelID,
		ChapterNumber: number,
		Title:         fmt.Sprintf("Chapter %d", number),
		IsVisible:     true,
		IsReleased:    true,
		ReviewStatus:  types.ReviewStatusApproved,
	}
	for _, o := range opts {
		o(c)
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func SeedTier(t testing.TB, db *gorm.DB, novelID uint64, level, advance int, price string) *models.ChampionTier {
	t.Helper()
	tier := &models.ChampionTier{
		NovelID:         novelID,
		TierLevel:       level,
		TierName:        fmt.Sprintf("Tier %d", level),
		MonthlyPrice:    decimal.RequireFromString(price),
		Currency:        "USD",
		AdvanceChapters: advance,
		IsActive:        true,
		SortOrder:       level,
	}
	require.NoError(t, db.Create(tier).Error)
	return tier
}

func Balance(t testing.TB, db *gorm.DB, userID uint64) int64 {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, userID).Error)
	return u.Karma
}
