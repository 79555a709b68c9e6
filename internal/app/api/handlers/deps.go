package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fablecast/entitlement/internal/app/api/middleware"
	"github.com/fablecast/entitlement/internal/app/service/billing"
	"github.com/fablecast/entitlement/internal/app/service/champion"
	"github.com/fablecast/entitlement/internal/app/service/entitlement"
	"github.com/fablecast/entitlement/internal/app/service/paymentevent"
	"github.com/fablecast/entitlement/internal/app/service/purchase"
	"github.com/fablecast/entitlement/internal/app/service/statistics"
	"github.com/fablecast/entitlement/internal/app/service/unlock"
	"github.com/fablecast/entitlement/internal/app/service/wallet"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/response"
	"github.com/fablecast/entitlement/pkg/tool"
	"github.com/fablecast/entitlement/pkg/types"
)

type EntitlementService interface {
	ResolveVisibility(ctx context.Context, userID, novelID uint64) (*entitlement.Visibility, error)
	ListVisibleChapters(ctx context.Context, novelID, userID uint64) ([]*entitlement.ChapterEntry, *entitlement.Visibility, error)
	CanReadChapter(ctx context.Context, userID, chapterID uint64) (*entitlement.Decision, error)
}

type ChampionService interface {
	GetActiveTiers(ctx context.Context, novelID uint64) ([]*models.ChampionTier, error)
	Subscribe(ctx context.Context, userID, novelID uint64, tierLevel int, paymentMethod string, opts ...champion.SubscribeOption) (*champion.SubscribeResult, error)
	Cancel(ctx context.Context, userID, novelID uint64) (*models.ChampionSubscription, error)
	ApplyForChampion(ctx context.Context, novelID uint64) (*champion.Eligibility, error)
	UpsertTier(ctx context.Context, novelID uint64, in champion.TierInput) (*models.ChampionTier, error)
	DeactivateTier(ctx context.Context, novelID uint64, tierLevel int) error
}

type UnlockService interface {
	ConsumeKarma(ctx context.Context, userID, chapterID uint64, cost int64) (*unlock.ConsumeResult, error)
	RequestTimeUnlock(ctx context.Context, userID, chapterID uint64) (*models.ChapterUnlock, error)
	ScheduleTimeUnlock(ctx context.Context, userID, chapterID uint64, unlockAt time.Time) (*models.ChapterUnlock, error)
	MarkRead(ctx context.Context, userID, chapterID uint64) error
}

type WalletService interface {
	GetBalance(ctx context.Context, userID uint64) (int64, error)
	History(ctx context.Context, userID uint64, limit int) ([]*models.KarmaTransaction, error)
	Credit(ctx context.Context, userID uint64, amount int64, reason types.KarmaTransactionType, meta *wallet.Meta) (*wallet.Result, error)
	Reconcile(ctx context.Context, userID uint64) (*wallet.Reconciliation, error)
}

type BillingService interface {
	ListTransactions(ctx context.Context, callerID uint64, req *billing.Request) (*billing.Page, error)
}

type PurchaseService interface {
	VerifyPurchase(ctx context.Context, userID uint64, req *purchase.Request) (*purchase.Result, error)
}

type PaymentEventService interface {
	Authenticate(provider types.PaymentProvider, secret string) error
	Handle(ctx context.Context, provider types.PaymentProvider, body []byte) (*paymentevent.Outcome, error)
}

type StatisticsService interface {
	GetLedgerStatistic(ctx context.Context, request *statistics.StatisticRequest) (*statistics.StatisticResponse, error)
}

type NotificationLogService interface {
	FindByTransaction(ctx context.Context, transactionID string) ([]*models.PaymentNotificationLog, error)
}

// pathID reads a positive numeric path parameter, failing the request
// otherwise.
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, ok := tool.ParseID(c.Param(name))
	if !ok {
		response.Fail(c, apperr.Validation("invalid %s", name))
		return 0, false
	}
	return id, true
}

// caller returns the authenticated user, failing the request when absent.
func caller(c *gin.Context) (uint64, bool) {
	id := middleware.UserID(c)
	if id == 0 {
		response.Fail(c, apperr.Unauthorized("missing user"))
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Fail(c, apperr.Validation("invalid request body: %v", err))
		return false
	}
	return true
}
