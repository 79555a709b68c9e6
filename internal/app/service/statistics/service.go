package statistics

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fablecast/entitlement/internal/app/service/capability"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/types"
)

type StatisticType string

const (
	// Karma wallet
	StatisticTypeDailyKarmaConsumed  StatisticType = "daily_karma_consumed"
	StatisticTypeDailyKarmaPurchased StatisticType = "daily_karma_purchased"

	// Champion
	StatisticTypeDailyChampionRevenue StatisticType = "daily_champion_revenue"
	StatisticTypeActiveChampionCount  StatisticType = "active_champion_count"

	// Unlocks
	StatisticTypeDailyUnlockCount StatisticType = "daily_unlock_count"
)

// FilterField is a column a statistic request may filter on.
type FilterField string

const (
	FilterFieldCreatedAt     FilterField = "created_at"
	FilterFieldNovelID       FilterField = "novel_id"
	FilterFieldPaymentMethod FilterField = "payment_method"
	FilterFieldUnlockMethod  FilterField = "unlock_method"
)

var validFilters = map[FilterField][]StatisticType{
	FilterFieldCreatedAt: {
		StatisticTypeDailyKarmaConsumed, StatisticTypeDailyKarmaPurchased,
		StatisticTypeDailyChampionRevenue, StatisticTypeDailyUnlockCount,
	},
	FilterFieldNovelID: {
		StatisticTypeDailyKarmaConsumed, StatisticTypeDailyChampionRevenue,
		StatisticTypeActiveChampionCount, StatisticTypeDailyUnlockCount,
	},
	FilterFieldPaymentMethod: {StatisticTypeDailyChampionRevenue, StatisticTypeActiveChampionCount},
	FilterFieldUnlockMethod:  {StatisticTypeDailyUnlockCount},
}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items" binding:"required"`
}

func (r *StatisticRequest) validate() error {
	if len(r.DataItems) == 0 {
		return apperr.Validation("data_items is required")
	}
	for _, f := range r.Filters {
		if f == nil {
			return apperr.Validation("filter is null")
		}
		if _, ok := validFilters[FilterField(f.Field)]; !ok {
			return apperr.Validation("unsupported filter field: %s", f.Field)
		}
	}
	return nil
}

// applicable reports whether every filter of r can be applied to typ.
func (r *StatisticRequest) applicable(typ StatisticType) bool {
	for _, f := range r.Filters {
		if !lo.Contains(validFilters[FilterField(f.Field)], typ) {
			return false
		}
	}
	return true
}

func (r *StatisticRequest) where() clause.Where {
	return clause.Where{Exprs: []clause.Expression{types.FiltersAnd(r.Filters)}}
}

type StatisticResponseDataItem struct {
	Date   string `json:"date"`
	Label  string `json:"label,omitempty"`
	Value  int64  `json:"value"`
	Value2 int64  `json:"value2,omitempty"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// Service computes admin aggregates over both ledgers.
type Service struct {
	db   *gorm.DB
	caps *capability.Prober
	cfg  *config.Config
	log  *zap.SugaredLogger
	now  func() time.Time
}

func New(db *gorm.DB, caps *capability.Prober, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, caps: caps, cfg: cfg, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// day renders a timestamp column as YYYY-MM-DD in the current dialect.
func (s *Service) day(column string) string {
	if s.db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", column)
	}
	return fmt.Sprintf("substr(%s, 1, 10)", column)
}

// Karma amounts per day: value is the Karma moved, value2 the row count.
func (s *Service) karmaDaily(ctx context.Context, request *StatisticRequest, typ types.KarmaTransactionType) ([]StatisticResponseDataItem, error) {
	sum := "SUM(karma_amount)"
	if typ.IsDebit() {
		sum = "-SUM(karma_amount)"
	}
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.KarmaTransaction{}).TableName()).
		Select(fmt.Sprintf("%s AS date, %s AS value, COUNT(*) AS value2", s.day("created_at"), sum)).
		Where("transaction_type = ? AND status = ?", typ, types.TransactionStatusCompleted).
		Where(request.where()).
		Group("date").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Completed Champion payments per day and currency, in minor units.
func (s *Service) getDailyChampionRevenue(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	table := (models.ChampionTransaction{}).TableName()
	label := "?"
	hasCurrency, err := s.caps.Has(ctx, table, models.ColumnCurrency)
	if err != nil {
		return nil, err
	}
	if hasCurrency {
		label = "COALESCE(currency, ?)"
	}
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table(table).
		Select(fmt.Sprintf("%s AS date, %s AS label, CAST(ROUND(SUM(monthly_price) * 100) AS BIGINT) AS value, COUNT(*) AS value2",
			s.day("created_at"), label), s.cfg.Champion.DefaultCurrency).
		Where("payment_status = ?", types.TransactionStatusCompleted).
		Where(request.where()).
		Group("date").
		Group("label").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true}).
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getActiveChampionCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	now := s.now()
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ChampionSubscription{}).
		Where("is_active = ? AND end_date > ?", true, now).
		Where(request.where()).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	return []StatisticResponseDataItem{{Date: now.Format(time.DateOnly), Value: count}}, nil
}

// Unlocks per day, labelled by unlock method.
func (s *Service) getDailyUnlockCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.ChapterUnlock{}).TableName()).
		Select(fmt.Sprintf("%s AS date, unlock_method AS label, COUNT(*) AS value, COALESCE(SUM(cost), 0) AS value2", s.day("created_at"))).
		Where("status = ?", types.UnlockStatusUnlocked).
		Where(request.where()).
		Group("date").
		Group("label").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true}).
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *StatisticRequest, dataItem *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyKarmaConsumed:
		return s.karmaDaily(ctx, request, types.KarmaTransactionTypeConsumption)
	case StatisticTypeDailyKarmaPurchased:
		return s.karmaDaily(ctx, request, types.KarmaTransactionTypePurchase)
	case StatisticTypeDailyChampionRevenue:
		return s.getDailyChampionRevenue(ctx, request)
	case StatisticTypeActiveChampionCount:
		return s.getActiveChampionCount(ctx, request)
	case StatisticTypeDailyUnlockCount:
		return s.getDailyUnlockCount(ctx, request)
	default:
		return nil, apperr.Validation("invalid data item id: %s", dataItem.ID)
	}
}

// GetLedgerStatistic computes the requested data items concurrently. An item
// that cannot honour every filter yields a null series.
func (s *Service) GetLedgerStatistic(ctx context.Context, request *StatisticRequest) (*StatisticResponse, error) {
	if err := request.validate(); err != nil {
		return nil, err
	}

	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		go func(di *StatisticDataItem) {
			if !request.applicable(di.ID) {
				resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: nil}
				return
			}
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	// Each worker sends exactly once, so N receives drain them all.
	results := make(map[StatisticType][]StatisticResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			logctx.FromCtx(ctx, s.log).Errorw("failed to compute statistic", "error", err)
			if apperr.Get(err) == nil {
				err = apperr.Upstream(err, "failed to compute statistic")
			}
			return nil, err
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &StatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
