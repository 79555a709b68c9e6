// Package billing presents one ledger per user, merged from the Karma trail
// and the Champion payment history.
package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fablecast/entitlement/internal/app/service/capability"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/tool"
	"github.com/fablecast/entitlement/pkg/types"
)

const (
	championTable = "champion_transactions"
	karmaCurrency = "KARMA"
)

type Request struct {
	// UserID, when given, must be the caller.
	UserID   *uint64
	Type     types.LedgerType
	Status   types.TransactionStatus
	Query    string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type Row struct {
	ID          string                  `json:"id"`
	Source      types.LedgerSource      `json:"source"`
	Type        types.LedgerType        `json:"type"`
	Status      types.TransactionStatus `json:"status"`
	Description string                  `json:"description"`
	Amount      decimal.Decimal         `json:"amount" swaggertype:"string"`
	Currency    string                  `json:"currency"`
	BeforeLabel *string                 `json:"before_label"`
	AfterLabel  *string                 `json:"after_label"`
	ProviderRef *string                 `json:"provider_ref"`
	NovelID     *uint64                 `json:"novel_id,omitempty"`
	ChapterID   *uint64                 `json:"chapter_id,omitempty"`
	OccurredAt  time.Time               `json:"occurred_at"`
}

type Page struct {
	Rows     []*Row `json:"rows"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

type Service struct {
	db   *gorm.DB
	caps *capability.Prober
	cfg  *config.Config
	log  *zap.SugaredLogger
}

func New(db *gorm.DB, caps *capability.Prober, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, caps: caps, cfg: cfg, log: log}
}

func (r *Request) validate() error {
	if r.Type != "" {
		if _, ok := r.Type.Source(); !ok {
			return apperr.Validation("unknown ledger type %q", r.Type)
		}
	}
	switch r.Status {
	case "", types.TransactionStatusPending, types.TransactionStatusCompleted, types.TransactionStatusFailed, types.TransactionStatusRefunded:
	default:
		return apperr.Validation("unknown status %q", r.Status)
	}
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return apperr.Validation("from must be before to")
	}
	return nil
}

// ListTransactions returns one page of the caller's merged ledger, newest
// first. Filters apply to both sources before merging; pagination applies to
// the merged result. Each source contributes at most the rows up to the end
// of the requested page.
func (s *Service) ListTransactions(ctx context.Context, callerID uint64, req *Request) (*Page, error) {
	if callerID == 0 {
		return nil, apperr.Unauthorized("missing caller identity")
	}
	if req == nil {
		req = &Request{}
	}
	if req.UserID != nil && *req.UserID != callerID {
		logctx.FromCtx(ctx, s.log).Warnw("cross_user_ledger_request", "caller_id", callerID, "user_id", *req.UserID)
		return nil, apperr.Forbidden("ledger of another user")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	var only types.LedgerSource
	if req.Type != "" {
		only, _ = req.Type.Source()
	}
	q := strings.ToLower(strings.TrimSpace(req.Query))

	var sources []*source
	if only == "" || only == types.LedgerSourceKarma {
		sources = append(sources, s.karmaSource(ctx, callerID, req, q))
	}
	if only == "" || only == types.LedgerSourceChampion {
		src, err := s.championSource(ctx, callerID, req, q)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	total := 0
	for _, src := range sources {
		n, err := src.count()
		if err != nil {
			return nil, err
		}
		total += n
	}

	page, size := tool.NormalizePage(req.Page, req.PageSize)
	out := &Page{Rows: []*Row{}, Total: total, Page: page, PageSize: size}
	start, end := tool.PageBounds(page, size, total)
	if start == end {
		return out, nil
	}
	var rows []*Row
	for _, src := range sources {
		rs, err := src.fetch(end)
		if err != nil {
			return nil, err
		}
		rows = append(rows, rs...)
	}
	sortRows(rows)
	// rows may have gone between count and fetch
	end = min(end, len(rows))
	start = min(start, end)
	out.Rows = rows[start:end]
	return out, nil
}

// source is one ledger with its filters applied. fetch returns the newest
// limit rows.
type source struct {
	count func() (int, error)
	fetch func(limit int) ([]*Row, error)
}

func dateRange(field string, from, to *time.Time) *types.CommonFilter {
	var start, end any
	if from != nil {
		start = from.UTC()
	}
	if to != nil {
		end = to.UTC()
	}
	return &types.CommonFilter{Field: field, Operator: types.CommonFilterOperatorDateRange, Values: []any{start, end}}
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

// karmaSource filters entirely in the database. The text filter matches the
// stored description, the provider reference and the mapped type name; an
// empty description is shown as the type name, so that case is covered too.
func (s *Service) karmaSource(ctx context.Context, userID uint64, req *Request, q string) *source {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Model(&models.KarmaTransaction{}).
			Where("user_id = ?", userID).
			Where(types.FiltersAnd{dateRange("created_at", req.From, req.To)})
		if req.Type != "" {
			db = karmaTypeIs("transaction_type", req.Type).apply(db)
		}
		if req.Status != "" {
			db = statusIs("status", req.Status).apply(db)
		}
		if q != "" {
			match := []predicate{contains("description", q), contains("provider_ref", q)}
			for _, t := range typesMatching(types.LedgerSourceKarma, q) {
				match = append(match, karmaTypeIs("transaction_type", t))
			}
			db = anyOf(match...).apply(db)
		}
		return db
	}
	return &source{
		count: func() (int, error) {
			var n int64
			if err := s.db.WithContext(ctx).Scopes(scope).Count(&n).Error; err != nil {
				return 0, apperr.FromStore(err, "count karma transactions")
			}
			return int(n), nil
		},
		fetch: func(limit int) ([]*Row, error) {
			var txns []*models.KarmaTransaction
			err := s.db.WithContext(ctx).Scopes(scope, newestFirst).Limit(limit).Find(&txns).Error
			if err != nil {
				return nil, apperr.FromStore(err, "list karma transactions")
			}
			out := make([]*Row, 0, len(txns))
			for _, t := range txns {
				out = append(out, karmaRow(t))
			}
			return out, nil
		},
	}
}

func karmaRow(t *models.KarmaTransaction) *Row {
	desc := t.Description
	if desc == "" {
		desc = string(MapKarmaType(string(t.TransactionType)))
	}
	before := fmt.Sprintf("Balance %d", t.BalanceBefore)
	after := fmt.Sprintf("Balance %d", t.BalanceAfter)
	return &Row{
		ID:          t.ID,
		Source:      types.LedgerSourceKarma,
		Type:        MapKarmaType(string(t.TransactionType)),
		Status:      MapKarmaStatus(string(t.Status)),
		Description: desc,
		Amount:      decimal.NewFromInt(t.KarmaAmount),
		Currency:    karmaCurrency,
		BeforeLabel: &before,
		AfterLabel:  &after,
		ProviderRef: t.ProviderRef,
		NovelID:     t.NovelID,
		ChapterID:   t.ChapterID,
		OccurredAt:  t.CreatedAt,
	}
}

type championRecord struct {
	ID               string
	NovelID          uint64
	TierLevel        int
	TierName         string
	MonthlyPrice     decimal.Decimal
	SubscriptionType string
	PaymentStatus    string
	ProviderRef      *string
	Currency         *string
	MembershipBefore *string
	MembershipAfter  *string
	CreatedAt        time.Time
}

// championSource pushes type, status and date filters into the database.
// Descriptions are derived from the membership snapshots, so a text filter
// runs on the loaded rows; Champion history only grows with subscription
// changes.
func (s *Service) championSource(ctx context.Context, userID uint64, req *Request, q string) (*source, error) {
	cols := []string{
		"id", "novel_id", "tier_level", "tier_name", "monthly_price",
		"subscription_type", "payment_status", "created_at",
	}
	for _, c := range capability.ChampionTransactionOptional() {
		col, err := s.caps.Column(ctx, championTable, c)
		if err != nil {
			return nil, apperr.Upstream(err, "inspect champion transactions")
		}
		cols = append(cols, col)
	}
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Table(championTable).
			Where("user_id = ?", userID).
			Where(types.FiltersAnd{dateRange("created_at", req.From, req.To)})
		if req.Type != "" {
			db = championTypeIs("payment_status", "subscription_type", req.Type).apply(db)
		}
		if req.Status != "" {
			db = statusIs("payment_status", req.Status).apply(db)
		}
		return db
	}
	list := func(limit int) ([]*Row, error) {
		db := s.db.WithContext(ctx).Scopes(scope, newestFirst).Select(strings.Join(cols, ", "))
		if limit > 0 {
			db = db.Limit(limit)
		}
		var recs []*championRecord
		if err := db.Scan(&recs).Error; err != nil {
			return nil, apperr.FromStore(err, "list champion transactions")
		}
		out := make([]*Row, 0, len(recs))
		for _, r := range recs {
			out = append(out, s.championRow(r))
		}
		return out, nil
	}

	if q == "" {
		return &source{
			count: func() (int, error) {
				var n int64
				if err := s.db.WithContext(ctx).Scopes(scope).Count(&n).Error; err != nil {
					return 0, apperr.FromStore(err, "count champion transactions")
				}
				return int(n), nil
			},
			fetch: list,
		}, nil
	}

	var matched []*Row
	loaded := false
	load := func() error {
		if loaded {
			return nil
		}
		rows, err := list(0)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if matches(r, q) {
				matched = append(matched, r)
			}
		}
		loaded = true
		return nil
	}
	return &source{
		count: func() (int, error) {
			if err := load(); err != nil {
				return 0, err
			}
			return len(matched), nil
		},
		fetch: func(limit int) ([]*Row, error) {
			if err := load(); err != nil {
				return nil, err
			}
			return matched[:min(limit, len(matched))], nil
		},
	}, nil
}

func (s *Service) championRow(r *championRecord) *Row {
	status := MapPaymentStatus(r.PaymentStatus)
	before, after := parseSnapshot(r.MembershipBefore), parseSnapshot(r.MembershipAfter)
	desc, beforeLabel, afterLabel := describeChampion(r.TierLevel, r.TierName, before, after)
	currency := s.cfg.Champion.DefaultCurrency
	if r.Currency != nil && *r.Currency != "" {
		currency = *r.Currency
	}
	novelID := r.NovelID
	return &Row{
		ID:          r.ID,
		Source:      types.LedgerSourceChampion,
		Type:        MapChampionType(status, r.SubscriptionType),
		Status:      status,
		Description: desc,
		Amount:      r.MonthlyPrice,
		Currency:    currency,
		BeforeLabel: beforeLabel,
		AfterLabel:  afterLabel,
		ProviderRef: r.ProviderRef,
		NovelID:     &novelID,
		OccurredAt:  r.CreatedAt,
	}
}

func matches(r *Row, q string) bool {
	if strings.Contains(strings.ToLower(r.Description), q) || strings.Contains(string(r.Type), q) {
		return true
	}
	return r.ProviderRef != nil && strings.Contains(strings.ToLower(*r.ProviderRef), q)
}

func sortRows(rows []*Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].OccurredAt.Equal(rows[j].OccurredAt) {
			return rows[i].OccurredAt.After(rows[j].OccurredAt)
		}
		return rows[i].ID > rows[j].ID
	})
}

var Module = fx.Options(
	fx.Provide(New),
)
