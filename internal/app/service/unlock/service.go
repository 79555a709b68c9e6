// Package unlock keeps the per (user, chapter) unlock state machine:
// NONE -> PENDING -> UNLOCKED through a schedule, or NONE -> UNLOCKED by
// spending Karma. An unlocked row never goes back.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fablecast/entitlement/internal/app/service/wallet"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/internal/platform/lock"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/metrics"
	"github.com/fablecast/entitlement/pkg/tool"
	"github.com/fablecast/entitlement/pkg/types"
)

// Debiter charges Karma inside a caller-owned transaction.
type Debiter interface {
	DebitTx(ctx context.Context, tx *gorm.DB, userID uint64, amount int64, reason types.KarmaTransactionType, meta *wallet.Meta) (*wallet.Result, error)
}

type ConsumeResult struct {
	// Charged is false when the chapter was already unlocked.
	Charged    bool                  `json:"charged"`
	NewBalance int64                 `json:"new_balance"`
	TxnID      string                `json:"txn_id,omitempty"`
	Unlock     *models.ChapterUnlock `json:"unlock"`
}

const DefaultWaitForFree = 24 * time.Hour

type Service struct {
	db     *gorm.DB
	wallet Debiter
	locker lock.Locker
	log    *zap.SugaredLogger
	now    func() time.Time
	// wait is the delay applied to reader-requested time unlocks.
	wait time.Duration
}

func New(db *gorm.DB, w *wallet.Service, locker lock.Locker, cfg *config.Config, log *zap.SugaredLogger) *Service {
	s := NewWithDebiter(db, w, locker, log)
	if cfg != nil && cfg.Unlock.WaitForFree > 0 {
		s.wait = cfg.Unlock.WaitForFree
	}
	return s
}

func NewWithDebiter(db *gorm.DB, w Debiter, locker lock.Locker, log *zap.SugaredLogger) *Service {
	return &Service{
		db:     db,
		wallet: w,
		locker: locker,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		wait:   DefaultWaitForFree,
	}
}

func (s *Service) chapter(ctx context.Context, chapterID uint64) (*models.Chapter, error) {
	var ch models.Chapter
	if err := s.db.WithContext(ctx).First(&ch, chapterID).Error; err != nil {
		return nil, apperr.FromStore(err, "chapter %d", chapterID)
	}
	return &ch, nil
}

func findForUpdate(tx *gorm.DB, userID, chapterID uint64) (*models.ChapterUnlock, error) {
	var row models.ChapterUnlock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND chapter_id = ?", userID, chapterID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.FromStore(err, "load unlock of chapter %d", chapterID)
	}
	return &row, nil
}

// unlockable loads a chapter a reader may buy or wait for. Unpublished
// chapters are reported missing and free ones are rejected.
func (s *Service) unlockable(ctx context.Context, chapterID uint64) (*models.Chapter, error) {
	ch, err := s.chapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if !ch.Published() {
		return nil, apperr.NotFound("chapter %d", chapterID)
	}
	if !ch.Paywalled() {
		return nil, apperr.Validation("chapter %d is free to read", chapterID)
	}
	return ch, nil
}

// RequestTimeUnlock is the reader-facing schedule: the chapter opens after the
// configured wait. A pending row keeps its time, so asking again never
// brings the unlock forward or pushes it back.
func (s *Service) RequestTimeUnlock(ctx context.Context, userID, chapterID uint64) (*models.ChapterUnlock, error) {
	ch, err := s.unlockable(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	unlockAt := s.now().Add(s.wait).Truncate(time.Microsecond)
	row, err := s.schedule(ctx, userID, ch, unlockAt, false)
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("time_unlock_requested", "user_id", userID, "chapter_id", chapterID, "unlock_at", row.UnlockAt, "status", row.Status)
	return row, nil
}

// ScheduleTimeUnlock records that the chapter opens for the user at unlockAt.
// Repeated calls keep a single row and move a pending one to the new time; an
// unlocked row is left untouched. Callers are trusted with unlockAt.
func (s *Service) ScheduleTimeUnlock(ctx context.Context, userID, chapterID uint64, unlockAt time.Time) (*models.ChapterUnlock, error) {
	if unlockAt.IsZero() {
		return nil, apperr.Validation("unlock_at is required")
	}
	unlockAt = unlockAt.UTC().Truncate(time.Microsecond)
	ch, err := s.chapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	return s.schedule(ctx, userID, ch, unlockAt, true)
}

func (s *Service) schedule(ctx context.Context, userID uint64, ch *models.Chapter, unlockAt time.Time, reschedule bool) (*models.ChapterUnlock, error) {
	chapterID := ch.ID
	var out *models.ChapterUnlock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &models.ChapterUnlock{
			ID:           tool.GenerateUUIDV7(),
			UserID:       userID,
			ChapterID:    chapterID,
			NovelID:      ch.NovelID,
			UnlockMethod: types.UnlockMethodTimeUnlock,
			Status:       types.UnlockStatusPending,
			UnlockAt:     &unlockAt,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "chapter_id"}},
			DoNothing: true,
		}).Create(row).Error
		if err != nil {
			return apperr.FromStore(err, "schedule unlock of chapter %d", chapterID)
		}

		existing, err := findForUpdate(tx, userID, chapterID)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.Conflict("unlock of chapter %d vanished", chapterID)
		}
		if reschedule && existing.Status == types.UnlockStatusPending && (existing.UnlockAt == nil || !existing.UnlockAt.Equal(unlockAt)) {
			if err := tx.Model(existing).Update("unlock_at", unlockAt).Error; err != nil {
				return apperr.FromStore(err, "reschedule unlock of chapter %d", chapterID)
			}
			existing.UnlockAt = &unlockAt
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConsumeKarma unlocks the chapter by spending cost Karma. Calls for the same
// (user, chapter) are serialized; an already unlocked chapter is not charged
// again.
func (s *Service) ConsumeKarma(ctx context.Context, userID, chapterID uint64, cost int64) (*ConsumeResult, error) {
	start := time.Now()
	defer metrics.ObserveBusinessProcess("unlock", "consume_karma", start)
	log := logctx.FromCtx(ctx, s.log)

	if cost <= 0 {
		return nil, apperr.Validation("cost must be positive, got %d", cost)
	}
	ch, err := s.unlockable(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if ch.UnlockPrice > 0 && cost != ch.UnlockPrice {
		return nil, apperr.Validation("cost %d does not match chapter price %d", cost, ch.UnlockPrice)
	}

	release, err := s.locker.Acquire(ctx, lock.UnlockKey(userID, chapterID))
	if err != nil {
		return nil, err
	}
	defer release()

	out := &ConsumeResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "karma").First(&u, userID).Error; err != nil {
			return apperr.FromStore(err, "user %d", userID)
		}
		row, err := findForUpdate(tx, userID, chapterID)
		if err != nil {
			return err
		}
		now := s.now()
		if row.State(now) == types.UnlockStateUnlocked {
			if row.Status != types.UnlockStatusUnlocked {
				if err := tx.Model(row).Update("status", types.UnlockStatusUnlocked).Error; err != nil {
					return apperr.FromStore(err, "promote unlock of chapter %d", chapterID)
				}
				row.Status = types.UnlockStatusUnlocked
			}
			out.NewBalance, out.Unlock = u.Karma, row
			return nil
		}

		res, err := s.wallet.DebitTx(ctx, tx, userID, cost, types.KarmaTransactionTypeConsumption, &wallet.Meta{
			NovelID:     &ch.NovelID,
			ChapterID:   &ch.ID,
			Description: fmt.Sprintf("unlock chapter %d", ch.ChapterNumber),
		})
		if err != nil {
			return err
		}

		if row == nil {
			row = &models.ChapterUnlock{
				ID:           tool.GenerateUUIDV7(),
				UserID:       userID,
				ChapterID:    chapterID,
				NovelID:      ch.NovelID,
				UnlockMethod: types.UnlockMethodKarma,
				Cost:         cost,
				Status:       types.UnlockStatusUnlocked,
				UnlockAt:     &now,
			}
			if err := tx.Create(row).Error; err != nil {
				return apperr.FromStore(err, "record unlock of chapter %d", chapterID)
			}
		} else {
			err := tx.Model(row).Updates(map[string]any{
				"status":        types.UnlockStatusUnlocked,
				"unlock_method": types.UnlockMethodKarma,
				"cost":          cost,
				"unlock_at":     now,
			}).Error
			if err != nil {
				return apperr.FromStore(err, "record unlock of chapter %d", chapterID)
			}
			row.Status, row.UnlockMethod, row.Cost, row.UnlockAt = types.UnlockStatusUnlocked, types.UnlockMethodKarma, cost, &now
		}
		out.Charged, out.NewBalance, out.TxnID, out.Unlock = true, res.NewBalance, res.TxnID, row
		return nil
	})
	if err != nil {
		log.Infow("consume_karma_failed", "user_id", userID, "chapter_id", chapterID, "cost", cost, "err", err)
		return nil, err
	}
	log.Infow("chapter_unlocked", "user_id", userID, "chapter_id", chapterID, "charged", out.Charged, "balance", out.NewBalance)
	return out, nil
}

// Get returns the unlock row, or nil when there is none.
func (s *Service) Get(ctx context.Context, userID, chapterID uint64) (*models.ChapterUnlock, error) {
	var row models.ChapterUnlock
	err := s.db.WithContext(ctx).Where("user_id = ? AND chapter_id = ?", userID, chapterID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.FromStore(err, "load unlock of chapter %d", chapterID)
	}
	return &row, nil
}

// ResolveStatus reports the unlock state at now. Due pending rows read as
// unlocked whether or not the sweeper has persisted them yet.
func (s *Service) ResolveStatus(ctx context.Context, userID, chapterID uint64) (types.UnlockState, error) {
	row, err := s.Get(ctx, userID, chapterID)
	if err != nil {
		return "", err
	}
	return row.State(s.now()), nil
}

// ResolveStatuses is ResolveStatus over many chapters in one query. Chapters
// without a row are reported as none.
func (s *Service) ResolveStatuses(ctx context.Context, userID uint64, chapterIDs []uint64) (map[uint64]types.UnlockState, error) {
	out := make(map[uint64]types.UnlockState, len(chapterIDs))
	for _, id := range chapterIDs {
		out[id] = types.UnlockStateNone
	}
	if len(chapterIDs) == 0 {
		return out, nil
	}
	var rows []*models.ChapterUnlock
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND chapter_id IN ?", userID, chapterIDs).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.FromStore(err, "load unlocks")
	}
	now := s.now()
	for _, r := range rows {
		out[r.ChapterID] = r.State(now)
	}
	return out, nil
}

// PromoteDue persists up to batch due pending rows as unlocked and returns how
// many changed.
func (s *Service) PromoteDue(ctx context.Context, batch int) (int64, error) {
	if batch <= 0 {
		batch = 500
	}
	now := s.now()
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.ChapterUnlock{}).
		Where("status = ? AND unlock_at <= ?", types.UnlockStatusPending, now).
		Order("unlock_at").
		Limit(batch).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to scan due unlocks: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	r := s.db.WithContext(ctx).Model(&models.ChapterUnlock{}).
		Where("id IN ? AND status = ?", ids, types.UnlockStatusPending).
		Update("status", types.UnlockStatusUnlocked)
	if r.Error != nil {
		return 0, fmt.Errorf("failed to promote due unlocks: %w", r.Error)
	}
	return r.RowsAffected, nil
}

// MarkRead flags an existing unlock as read.
func (s *Service) MarkRead(ctx context.Context, userID, chapterID uint64) error {
	r := s.db.WithContext(ctx).Model(&models.ChapterUnlock{}).
		Where("user_id = ? AND chapter_id = ?", userID, chapterID).
		Update("readed", true)
	if r.Error != nil {
		return apperr.FromStore(r.Error, "mark chapter %d read", chapterID)
	}
	if r.RowsAffected == 0 {
		return apperr.NotFound("no unlock for chapter %d", chapterID)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(NewSweeper),
	fx.Invoke(func(*Sweeper) {}),
)
