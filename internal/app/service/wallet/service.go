// Package wallet owns the Karma balance of every user. All balance changes go
// through here and each one writes exactly one karma_transactions row in the
// same database transaction.
package wallet

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/metrics"
	"github.com/fablecast/entitlement/pkg/tool"
	"github.com/fablecast/entitlement/pkg/types"
)

// Meta is the optional context recorded on a transaction row.
type Meta struct {
	NovelID     *uint64
	ChapterID   *uint64
	Description string
	// Provider and ProviderRef identify an external payment. The pair is
	// unique so a provider purchase is credited at most once.
	Provider    *string
	ProviderRef *string
	Status      types.TransactionStatus
}

type Result struct {
	NewBalance int64  `json:"new_balance"`
	TxnID      string `json:"txn_id"`
}

type Reconciliation struct {
	UserID     uint64 `json:"user_id"`
	Balance    int64  `json:"balance"`
	LedgerSum  int64  `json:"ledger_sum"`
	Entries    int64  `json:"entries"`
	Consistent bool   `json:"consistent"`
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	now func() time.Time
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) GetBalance(ctx context.Context, userID uint64) (int64, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Select("id", "karma").First(&u, userID).Error; err != nil {
		return 0, apperr.FromStore(err, "user %d", userID)
	}
	return u.Karma, nil
}

// Debit removes amount from the balance. The caller gets InsufficientKarma
// when the balance cannot cover it.
func (s *Service) Debit(ctx context.Context, userID uint64, amount int64, reason types.KarmaTransactionType, meta *Meta) (*Result, error) {
	var res *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.DebitTx(ctx, tx, userID, amount, reason, meta)
		return err
	})
	return res, err
}

// DebitTx is Debit for callers already inside a transaction.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, userID uint64, amount int64, reason types.KarmaTransactionType, meta *Meta) (*Result, error) {
	if !reason.IsDebit() {
		return nil, apperr.Validation("%s is not a debit", reason)
	}
	if amount <= 0 {
		return nil, apperr.Validation("debit amount must be positive, got %d", amount)
	}
	return s.apply(ctx, tx, userID, -amount, reason, meta)
}

func (s *Service) Credit(ctx context.Context, userID uint64, amount int64, reason types.KarmaTransactionType, meta *Meta) (*Result, error) {
	var res *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.CreditTx(ctx, tx, userID, amount, reason, meta)
		return err
	})
	return res, err
}

func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, userID uint64, amount int64, reason types.KarmaTransactionType, meta *Meta) (*Result, error) {
	if !reason.Valid() || reason.IsDebit() {
		return nil, apperr.Validation("%s is not a credit", reason)
	}
	if amount <= 0 {
		return nil, apperr.Validation("credit amount must be positive, got %d", amount)
	}
	return s.apply(ctx, tx, userID, amount, reason, meta)
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, userID uint64, delta int64, reason types.KarmaTransactionType, meta *Meta) (*Result, error) {
	start := time.Now()
	defer metrics.ObserveBusinessProcess("wallet", string(reason), start)
	log := logctx.FromCtx(ctx, s.log)

	var u models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "karma").First(&u, userID).Error; err != nil {
		return nil, apperr.FromStore(err, "user %d", userID)
	}
	if delta < 0 && u.Karma < -delta {
		return nil, apperr.InsufficientKarma("balance %d is below cost %d", u.Karma, -delta)
	}

	q := tx.Model(&models.User{}).Where("id = ?", userID)
	if delta < 0 {
		q = q.Where("karma >= ?", -delta)
	}
	r := q.Update("karma", gorm.Expr("karma + ?", delta))
	if r.Error != nil {
		return nil, apperr.FromStore(r.Error, "update balance of user %d", userID)
	}
	if r.RowsAffected == 0 {
		return nil, apperr.InsufficientKarma("balance changed concurrently for user %d", userID)
	}

	if meta == nil {
		meta = &Meta{}
	}
	status := meta.Status
	if status == "" {
		status = types.TransactionStatusCompleted
	}
	row := &models.KarmaTransaction{
		ID:              tool.GenerateUUIDV7(),
		UserID:          userID,
		TransactionType: reason,
		KarmaAmount:     delta,
		BalanceBefore:   u.Karma,
		BalanceAfter:    u.Karma + delta,
		NovelID:         meta.NovelID,
		ChapterID:       meta.ChapterID,
		Status:          status,
		Description:     meta.Description,
		Provider:        meta.Provider,
		ProviderRef:     meta.ProviderRef,
		CreatedAt:       s.now(),
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, apperr.FromStore(err, "record karma transaction")
	}

	log.Infow("karma_balance_changed", "user_id", userID, "type", reason, "amount", delta,
		"balance_before", row.BalanceBefore, "balance_after", row.BalanceAfter, "txn_id", row.ID)
	return &Result{NewBalance: row.BalanceAfter, TxnID: row.ID}, nil
}

// History returns the latest trail rows of a user, newest first.
func (s *Service) History(ctx context.Context, userID uint64, limit int) ([]*models.KarmaTransaction, error) {
	_, limit = tool.NormalizePage(1, limit)
	var rows []*models.KarmaTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list karma transactions: %w", err)
	}
	return rows, nil
}

// Reconcile checks that the stored balance equals the sum of the trail.
func (s *Service) Reconcile(ctx context.Context, userID uint64) (*Reconciliation, error) {
	out := &Reconciliation{UserID: userID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Select("id", "karma").First(&u, userID).Error; err != nil {
			return apperr.FromStore(err, "user %d", userID)
		}
		out.Balance = u.Karma
		var agg struct {
			Total   int64
			Entries int64
		}
		err := tx.Model(&models.KarmaTransaction{}).
			Select("COALESCE(SUM(karma_amount), 0) AS total, COUNT(*) AS entries").
			Where("user_id = ?", userID).
			Scan(&agg).Error
		if err != nil {
			return fmt.Errorf("failed to sum karma transactions: %w", err)
		}
		out.LedgerSum, out.Entries = agg.Total, agg.Entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Consistent = out.Balance == out.LedgerSum && out.Balance >= 0
	if !out.Consistent {
		s.log.Errorw("karma_ledger_mismatch", "user_id", userID, "balance", out.Balance, "ledger_sum", out.LedgerSum)
	}
	return out, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
