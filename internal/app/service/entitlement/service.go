// Package entitlement decides what a user may read. It is read-only and is
// the only place chapter access is computed; callers must not read chapter
// rows directly to make that decision.
package entitlement

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fablecast/entitlement/internal/app/service/champion"
	"github.com/fablecast/entitlement/internal/app/service/unlock"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/types"
)

type SubscriptionReader interface {
	GetActiveTiers(ctx context.Context, novelID uint64) ([]*models.ChampionTier, error)
	GetActiveSubscription(ctx context.Context, userID, novelID uint64) (*models.ChampionSubscription, error)
}

type UnlockResolver interface {
	ResolveStatus(ctx context.Context, userID, chapterID uint64) (types.UnlockState, error)
	ResolveStatuses(ctx context.Context, userID uint64, chapterIDs []uint64) (map[uint64]types.UnlockState, error)
}

type TierInfo struct {
	Level           int       `json:"tier_level"`
	Name            string    `json:"tier_name"`
	AdvanceChapters int       `json:"advance_chapters"`
	EndDate         time.Time `json:"end_date"`
}

type Visibility struct {
	NovelID         uint64    `json:"novel_id"`
	ChampionEnabled bool      `json:"champion_enabled"`
	IsChampion      bool      `json:"is_champion"`
	Tier            *TierInfo `json:"tier,omitempty"`
	// LatestChapterNumber is the highest publicly released chapter.
	LatestChapterNumber int `json:"latest_chapter_number"`
	// VisibleMaxChapterNumber is set for champions only.
	VisibleMaxChapterNumber *int `json:"visible_max_chapter_number,omitempty"`
}

type ChapterEntry struct {
	ID             uint64            `json:"id"`
	ChapterNumber  int               `json:"chapter_number"`
	Title          string            `json:"title"`
	IsAdvance      bool              `json:"is_advance"`
	IsVIPOnly      bool              `json:"is_vip_only"`
	UnlockPrice    int64             `json:"unlock_price"`
	UnlockState    types.UnlockState `json:"unlock_state"`
	RequiresUnlock bool              `json:"requires_unlock"`
}

type Reason string

const (
	ReasonFree            Reason = "free"
	ReasonUnlocked        Reason = "unlocked"
	ReasonVIP             Reason = "vip"
	ReasonChampion        Reason = "champion"
	ReasonNotPublished    Reason = "not_published"
	ReasonAdvance         Reason = "advance_requires_champion"
	ReasonBeyondAllowance Reason = "beyond_advance_allowance"
	ReasonVIPOnly         Reason = "vip_only"
	ReasonRequiresUnlock  Reason = "requires_unlock"
)

type Decision struct {
	ChapterID   uint64            `json:"chapter_id"`
	NovelID     uint64            `json:"novel_id"`
	Allowed     bool              `json:"allowed"`
	Reason      Reason            `json:"reason"`
	UnlockState types.UnlockState `json:"unlock_state"`
	UnlockPrice int64             `json:"unlock_price"`
}

type Service struct {
	db      *gorm.DB
	subs    SubscriptionReader
	unlocks UnlockResolver
	log     *zap.SugaredLogger
}

func New(db *gorm.DB, subs *champion.Service, unlocks *unlock.Service, log *zap.SugaredLogger) *Service {
	return NewWith(db, subs, unlocks, log)
}

func NewWith(db *gorm.DB, subs SubscriptionReader, unlocks UnlockResolver, log *zap.SugaredLogger) *Service {
	return &Service{db: db, subs: subs, unlocks: unlocks, log: log}
}

// published is the base predicate; every read path starts from it.
func published(db *gorm.DB) *gorm.DB {
	return db.Where("is_released = ? AND review_status = ?", true, types.ReviewStatusApproved)
}

func (s *Service) latestChapterNumber(ctx context.Context, novelID uint64) (int, error) {
	var latest int
	err := published(s.db.WithContext(ctx).Model(&models.Chapter{})).
		Select("COALESCE(MAX(chapter_number), 0)").
		Where("novel_id = ? AND is_advance = ?", novelID, false).
		Scan(&latest).Error
	if err != nil {
		return 0, apperr.FromStore(err, "latest chapter of novel %d", novelID)
	}
	return latest, nil
}

func (s *Service) isVIP(ctx context.Context, userID uint64) (bool, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Select("id", "is_vip").Where("id = ?", userID).Limit(1).Find(&users).Error; err != nil {
		return false, apperr.FromStore(err, "user %d", userID)
	}
	return len(users) == 1 && users[0].IsVIP, nil
}

// ResolveVisibility reports the user's Champion standing on a novel and how
// far ahead of the public release it lets them read.
func (s *Service) ResolveVisibility(ctx context.Context, userID, novelID uint64) (*Visibility, error) {
	if err := s.db.WithContext(ctx).Select("id").First(&models.Novel{}, novelID).Error; err != nil {
		return nil, apperr.FromStore(err, "novel %d", novelID)
	}
	tiers, err := s.subs.GetActiveTiers(ctx, novelID)
	if err != nil {
		return nil, err
	}
	v := &Visibility{NovelID: novelID, ChampionEnabled: len(tiers) > 0}
	if v.LatestChapterNumber, err = s.latestChapterNumber(ctx, novelID); err != nil {
		return nil, err
	}
	if !v.ChampionEnabled {
		return v, nil
	}
	sub, err := s.subs.GetActiveSubscription(ctx, userID, novelID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return v, nil
	}
	v.IsChampion = true
	v.Tier = &TierInfo{Level: sub.TierLevel, Name: sub.TierName, AdvanceChapters: sub.AdvanceChapters, EndDate: sub.EndDate}
	visibleMax := v.LatestChapterNumber + v.Tier.AdvanceChapters
	v.VisibleMaxChapterNumber = &visibleMax
	return v, nil
}

// ListVisibleChapters returns the chapters of a novel the user may see in the
// table of contents, by ascending chapter number.
func (s *Service) ListVisibleChapters(ctx context.Context, novelID, userID uint64) ([]*ChapterEntry, *Visibility, error) {
	vis, err := s.ResolveVisibility(ctx, userID, novelID)
	if err != nil {
		return nil, nil, err
	}
	q := published(s.db.WithContext(ctx).Model(&models.Chapter{})).Where("novel_id = ?", novelID)
	if vis.IsChampion {
		q = q.Where("chapter_number <= ?", *vis.VisibleMaxChapterNumber)
	} else {
		q = q.Where("is_advance = ?", false)
	}
	var chapters []*models.Chapter
	if err := q.Order("chapter_number ASC").Find(&chapters).Error; err != nil {
		return nil, nil, apperr.FromStore(err, "list chapters of novel %d", novelID)
	}

	vip, err := s.isVIP(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	var paywalled []uint64
	for _, c := range chapters {
		if c.Paywalled() {
			paywalled = append(paywalled, c.ID)
		}
	}
	states, err := s.unlocks.ResolveStatuses(ctx, userID, paywalled)
	if err != nil {
		return nil, nil, err
	}

	out := make([]*ChapterEntry, 0, len(chapters))
	for _, c := range chapters {
		e := &ChapterEntry{
			ID:            c.ID,
			ChapterNumber: c.ChapterNumber,
			Title:         c.Title,
			IsAdvance:     c.IsAdvance,
			IsVIPOnly:     c.IsVIPOnly,
			UnlockPrice:   c.UnlockPrice,
			UnlockState:   types.UnlockStateNone,
		}
		if st, ok := states[c.ID]; ok {
			e.UnlockState = st
		}
		e.RequiresUnlock = c.Paywalled() && !vip && !vis.IsChampion && e.UnlockState != types.UnlockStateUnlocked
		out = append(out, e)
	}
	return out, vis, nil
}

// CanReadChapter is the access decision for one chapter. A denial carries the
// gate that failed.
func (s *Service) CanReadChapter(ctx context.Context, userID, chapterID uint64) (*Decision, error) {
	var ch models.Chapter
	if err := s.db.WithContext(ctx).First(&ch, chapterID).Error; err != nil {
		return nil, apperr.FromStore(err, "chapter %d", chapterID)
	}
	d := &Decision{ChapterID: ch.ID, NovelID: ch.NovelID, UnlockState: types.UnlockStateNone, UnlockPrice: ch.UnlockPrice}
	deny := func(r Reason) (*Decision, error) {
		d.Reason = r
		return d, nil
	}
	allow := func(r Reason) (*Decision, error) {
		d.Allowed, d.Reason = true, r
		return d, nil
	}

	if !ch.Published() {
		return deny(ReasonNotPublished)
	}
	vis, err := s.ResolveVisibility(ctx, userID, ch.NovelID)
	if err != nil {
		return nil, err
	}
	if ch.IsAdvance {
		if !vis.IsChampion {
			return deny(ReasonAdvance)
		}
		if ch.ChapterNumber > *vis.VisibleMaxChapterNumber {
			return deny(ReasonBeyondAllowance)
		}
	}
	vip, err := s.isVIP(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ch.IsVIPOnly && !vip && !vis.IsChampion {
		return deny(ReasonVIPOnly)
	}
	if !ch.Paywalled() {
		return allow(ReasonFree)
	}
	if d.UnlockState, err = s.unlocks.ResolveStatus(ctx, userID, ch.ID); err != nil {
		return nil, err
	}
	switch {
	case d.UnlockState == types.UnlockStateUnlocked:
		return allow(ReasonUnlocked)
	case vis.IsChampion:
		return allow(ReasonChampion)
	case vip:
		return allow(ReasonVIP)
	}
	return deny(ReasonRequiresUnlock)
}

var Module = fx.Options(
	fx.Provide(New),
)
