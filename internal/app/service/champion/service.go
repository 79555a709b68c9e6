// Package champion manages the per-novel Champion tier catalog, user
// subscriptions and the eligibility gate for offering Champion at all.
package champion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fablecast/entitlement/internal/app/service/capability"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/internal/platform/lock"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/metrics"
	"github.com/fablecast/entitlement/pkg/tool"
	"github.com/fablecast/entitlement/pkg/types"
)

const transactionsTable = "champion_transactions"

type Service struct {
	db     *gorm.DB
	cfg    *config.Config
	locker lock.Locker
	caps   *capability.Prober
	log    *zap.SugaredLogger
	now    func() time.Time
}

func New(db *gorm.DB, cfg *config.Config, locker lock.Locker, caps *capability.Prober, log *zap.SugaredLogger) *Service {
	return &Service{db: db, cfg: cfg, locker: locker, caps: caps, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// GetActiveTiers returns the novel's active tiers by ascending tier_level.
func (s *Service) GetActiveTiers(ctx context.Context, novelID uint64) ([]*models.ChampionTier, error) {
	var tiers []*models.ChampionTier
	err := s.db.WithContext(ctx).
		Where("novel_id = ? AND is_active = ?", novelID, true).
		Order("tier_level ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, apperr.FromStore(err, "list tiers of novel %d", novelID)
	}
	return tiers, nil
}

// GetActiveSubscription returns the subscription granting access now, or nil.
// Should several rows qualify, the highest tier wins.
func (s *Service) GetActiveSubscription(ctx context.Context, userID, novelID uint64) (*models.ChampionSubscription, error) {
	var rows []*models.ChampionSubscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND novel_id = ? AND is_active = ? AND end_date > ?", userID, novelID, true, s.now()).
		Order("tier_level DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.FromStore(err, "load subscription")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

type subscribeOptions struct {
	providerRef string
	autoRenew   bool
}

type SubscribeOption func(*subscribeOptions)

// WithProviderRef records the reference issued by the payment provider.
func WithProviderRef(ref string) SubscribeOption {
	return func(o *subscribeOptions) { o.providerRef = ref }
}

func WithAutoRenew(on bool) SubscribeOption {
	return func(o *subscribeOptions) { o.autoRenew = on }
}

type SubscribeResult struct {
	Subscription *models.ChampionSubscription `json:"subscription"`
	Transaction  *models.ChampionTransaction  `json:"transaction"`
}

// Subscribe replaces the user's subscription to the novel with a fresh term
// of the given tier. Tier name and price are snapshotted from the catalog.
func (s *Service) Subscribe(ctx context.Context, userID, novelID uint64, tierLevel int, paymentMethod string, opts ...SubscribeOption) (*SubscribeResult, error) {
	start := time.Now()
	defer metrics.ObserveBusinessProcess("champion", "subscribe", start)
	log := logctx.FromCtx(ctx, s.log)

	o := subscribeOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	if tierLevel <= 0 {
		return nil, apperr.Validation("tier_level must be positive")
	}
	if !s.cfg.PaymentMethodAllowed(paymentMethod) {
		return nil, apperr.Validation("payment method %q is not accepted", paymentMethod)
	}
	if err := s.db.WithContext(ctx).Select("id").First(&models.Novel{}, novelID).Error; err != nil {
		return nil, apperr.FromStore(err, "novel %d", novelID)
	}

	release, err := s.locker.Acquire(ctx, lock.ChampionKey(userID, novelID))
	if err != nil {
		return nil, err
	}
	defer release()

	omit, err := s.caps.Missing(ctx, transactionsTable, capability.ChampionTransactionOptional()...)
	if err != nil {
		return nil, apperr.Upstream(err, "inspect champion transactions")
	}
	out := &SubscribeResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tier models.ChampionTier
		err := tx.Where("novel_id = ? AND tier_level = ? AND is_active = ?", novelID, tierLevel, true).Take(&tier).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Validation("tier %d is not an active tier of novel %d", tierLevel, novelID)
		}
		if err != nil {
			return apperr.FromStore(err, "load tier")
		}

		var prev *models.ChampionSubscription
		var existing models.ChampionSubscription
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND novel_id = ?", userID, novelID).
			Take(&existing).Error
		switch {
		case err == nil:
			prev = &existing
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return apperr.FromStore(err, "load subscription")
		}

		now := s.now()
		currency := tier.Currency
		if currency == "" {
			currency = s.cfg.Champion.DefaultCurrency
		}
		next := &models.ChampionSubscription{
			ID:              tool.GenerateUUIDV7(),
			UserID:          userID,
			NovelID:         novelID,
			TierLevel:       tier.TierLevel,
			TierName:        tier.TierName,
			MonthlyPrice:    tier.MonthlyPrice,
			Currency:        currency,
			AdvanceChapters: tier.AdvanceChapters,
			StartDate:       now,
			EndDate:         now.AddDate(0, s.cfg.Champion.TermMonths, 0),
			PaymentMethod:   paymentMethod,
			AutoRenew:       o.autoRenew,
			IsActive:        true,
		}
		tr := Replace(prev, next, now)

		ref := o.providerRef
		if ref == "" {
			ref = tool.GenerateRef("chp")
		}
		txn := &models.ChampionTransaction{
			ID:               tool.GenerateUUIDV7(),
			UserID:           userID,
			NovelID:          novelID,
			TierLevel:        tier.TierLevel,
			TierName:         tier.TierName,
			MonthlyPrice:     tier.MonthlyPrice,
			SubscriptionType: tr.Type,
			PaymentStatus:    types.TransactionStatusCompleted,
			PaymentMethod:    paymentMethod,
			ProviderRef:      &ref,
			Currency:         &currency,
			MembershipBefore: datatypes.NewJSONType(tr.Before),
			MembershipAfter:  datatypes.NewJSONType(tr.After),
		}
		next.TransactionID = txn.ID

		if prev != nil {
			if err := tx.Delete(prev).Error; err != nil {
				return apperr.FromStore(err, "replace subscription")
			}
		}
		if err := tx.Create(next).Error; err != nil {
			return apperr.FromStore(err, "create subscription")
		}
		if err := tx.Omit(omit...).Create(txn).Error; err != nil {
			return apperr.FromStore(err, "record champion transaction")
		}
		out.Subscription, out.Transaction = next, txn
		return nil
	})
	if err != nil {
		log.Infow("champion_subscribe_failed", "user_id", userID, "novel_id", novelID, "tier_level", tierLevel, "err", err)
		return nil, err
	}
	log.Infow("champion_subscribed", "user_id", userID, "novel_id", novelID, "tier_level", tierLevel,
		"type", out.Transaction.SubscriptionType, "end_date", out.Subscription.EndDate)
	return out, nil
}

// Cancel turns auto renewal off. Access lasts until the current end date.
func (s *Service) Cancel(ctx context.Context, userID, novelID uint64) (*models.ChampionSubscription, error) {
	var sub models.ChampionSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND novel_id = ?", userID, novelID).Take(&sub).Error; err != nil {
			return apperr.FromStore(err, "subscription of user %d to novel %d", userID, novelID)
		}
		if err := tx.Model(&sub).Update("auto_renew", false).Error; err != nil {
			return apperr.FromStore(err, "cancel subscription")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Eligibility is the outcome of a Champion application.
type Eligibility struct {
	NovelID             uint64               `json:"novel_id"`
	Status              types.ChampionStatus `json:"champion_status"`
	ApprovedChapters    int64                `json:"approved_chapters"`
	MaxAdvanceChapters  int64                `json:"max_advance_chapters"`
	MinApprovedChapters int                  `json:"min_approved_chapters"`
}

// ApplyForChampion moves a novel from invalid to submitted when it has enough
// approved chapters both in absolute terms and above its largest advance
// allowance.
func (s *Service) ApplyForChampion(ctx context.Context, novelID uint64) (*Eligibility, error) {
	release, err := s.locker.Acquire(ctx, lock.NovelKey(novelID))
	if err != nil {
		return nil, err
	}
	defer release()

	out := &Eligibility{NovelID: novelID, MinApprovedChapters: s.cfg.Champion.MinApprovedChapters}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var novel models.Novel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&novel, novelID).Error; err != nil {
			return apperr.FromStore(err, "novel %d", novelID)
		}
		out.Status = novel.ChampionStatus
		if novel.ChampionStatus != types.ChampionStatusInvalid {
			return apperr.Conflict("novel %d champion status is %s", novelID, novel.ChampionStatus)
		}
		err := tx.Model(&models.Chapter{}).
			Where("novel_id = ? AND review_status = ?", novelID, types.ReviewStatusApproved).
			Count(&out.ApprovedChapters).Error
		if err != nil {
			return apperr.FromStore(err, "count approved chapters")
		}
		err = tx.Model(&models.ChampionTier{}).
			Select("COALESCE(MAX(advance_chapters), 0)").
			Where("novel_id = ? AND is_active = ?", novelID, true).
			Scan(&out.MaxAdvanceChapters).Error
		if err != nil {
			return apperr.FromStore(err, "load advance allowance")
		}
		if out.ApprovedChapters <= int64(s.cfg.Champion.MinApprovedChapters) ||
			out.ApprovedChapters <= int64(s.cfg.Champion.AdvanceBuffer)+out.MaxAdvanceChapters {
			return apperr.Validation("novel %d has %d approved chapters, needs more than %d and more than %d",
				novelID, out.ApprovedChapters, s.cfg.Champion.MinApprovedChapters,
				int64(s.cfg.Champion.AdvanceBuffer)+out.MaxAdvanceChapters)
		}
		if err := tx.Model(&novel).Update("champion_status", types.ChampionStatusSubmitted).Error; err != nil {
			return apperr.FromStore(err, "update champion status")
		}
		out.Status = types.ChampionStatusSubmitted
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("champion_application_submitted", "novel_id", novelID, "approved_chapters", out.ApprovedChapters)
	return out, nil
}

type TierInput struct {
	TierLevel       int             `json:"tier_level" binding:"required,min=1"`
	TierName        string          `json:"tier_name" binding:"required"`
	MonthlyPrice    decimal.Decimal `json:"monthly_price" swaggertype:"string"`
	Currency        string          `json:"currency"`
	AdvanceChapters int             `json:"advance_chapters" binding:"min=0"`
	SortOrder       int             `json:"sort_order"`
}

func (in *TierInput) validate() error {
	switch {
	case in.TierLevel <= 0:
		return apperr.Validation("tier_level must be positive")
	case strings.TrimSpace(in.TierName) == "":
		return apperr.Validation("tier_name is required")
	case in.MonthlyPrice.IsNegative():
		return apperr.Validation("monthly_price must not be negative")
	case in.AdvanceChapters < 0:
		return apperr.Validation("advance_chapters must not be negative")
	}
	return nil
}

// UpsertTier creates or edits the active tier at in.TierLevel. Existing
// subscriptions keep their snapshotted name and price.
func (s *Service) UpsertTier(ctx context.Context, novelID uint64, in TierInput) (*models.ChampionTier, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Currency == "" {
		in.Currency = s.cfg.Champion.DefaultCurrency
	}
	var tier models.ChampionTier
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Novel{}, novelID).Error; err != nil {
			return apperr.FromStore(err, "novel %d", novelID)
		}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("novel_id = ? AND tier_level = ? AND is_active = ?", novelID, in.TierLevel, true).
			Take(&tier).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			tier = models.ChampionTier{
				NovelID:         novelID,
				TierLevel:       in.TierLevel,
				TierName:        in.TierName,
				MonthlyPrice:    in.MonthlyPrice,
				Currency:        in.Currency,
				AdvanceChapters: in.AdvanceChapters,
				IsActive:        true,
				SortOrder:       in.SortOrder,
			}
			return apperr.FromStore(tx.Create(&tier).Error, "create tier")
		}
		if err != nil {
			return apperr.FromStore(err, "load tier")
		}
		tier.TierName, tier.MonthlyPrice, tier.Currency = in.TierName, in.MonthlyPrice, in.Currency
		tier.AdvanceChapters, tier.SortOrder = in.AdvanceChapters, in.SortOrder
		return apperr.FromStore(tx.Save(&tier).Error, "update tier")
	})
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (s *Service) DeactivateTier(ctx context.Context, novelID uint64, tierLevel int) error {
	r := s.db.WithContext(ctx).Model(&models.ChampionTier{}).
		Where("novel_id = ? AND tier_level = ? AND is_active = ?", novelID, tierLevel, true).
		Update("is_active", false)
	if r.Error != nil {
		return apperr.FromStore(r.Error, "deactivate tier")
	}
	if r.RowsAffected == 0 {
		return apperr.NotFound("no active tier %d for novel %d", tierLevel, novelID)
	}
	return nil
}

// ApplyPaymentStatus records a provider status change on the transaction with
// providerRef. A refund or failure ends the subscription it produced.
func (s *Service) ApplyPaymentStatus(ctx context.Context, providerRef string, status types.TransactionStatus) (*models.ChampionTransaction, error) {
	switch status {
	case types.TransactionStatusPending, types.TransactionStatusCompleted, types.TransactionStatusFailed, types.TransactionStatusRefunded:
	default:
		return nil, apperr.Validation("unknown payment status %q", status)
	}
	if providerRef == "" {
		return nil, apperr.Validation("provider_ref is required")
	}
	omit, err := s.caps.Missing(ctx, transactionsTable, capability.ChampionTransactionOptional()...)
	if err != nil {
		return nil, apperr.Upstream(err, "inspect champion transactions")
	}
	if lo.Contains(omit, models.ColumnProviderRef) {
		return nil, apperr.NotFound("provider references are not tracked by this deployment")
	}

	var txn models.ChampionTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Omit(omit...).
			Where("provider_ref = ?", providerRef).
			Take(&txn).Error
		if err != nil {
			return apperr.FromStore(err, "champion transaction %s", providerRef)
		}
		if txn.PaymentStatus == status {
			return nil
		}
		if err := tx.Model(&txn).Update("payment_status", status).Error; err != nil {
			return apperr.FromStore(err, "update payment status")
		}
		txn.PaymentStatus = status
		if status == types.TransactionStatusRefunded || status == types.TransactionStatusFailed {
			err := tx.Model(&models.ChampionSubscription{}).
				Where("transaction_id = ? AND is_active = ?", txn.ID, true).
				Updates(map[string]any{"is_active": false, "auto_renew": false}).Error
			if err != nil {
				return apperr.FromStore(err, "deactivate subscription")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("champion_payment_status_applied", "provider_ref", providerRef, "status", status, "transaction_id", txn.ID)
	return &txn, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
