package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fablecast/entitlement/internal/app/service/statistics"
	"github.com/fablecast/entitlement/internal/app/service/wallet"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/response"
	"github.com/fablecast/entitlement/pkg/types"
)

type RewardRequest struct {
	UserID      uint64 `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description"`
	// OperatorID is the admin granting the reward; defaults to the caller.
	OperatorID uint64 `json:"operator_id"`
}

// ScheduleRequest sets an explicit time unlock for a user, e.g. for a
// promotion. Past times open the chapter immediately.
type ScheduleRequest struct {
	UserID    uint64    `json:"user_id" binding:"required"`
	ChapterID uint64    `json:"chapter_id" binding:"required"`
	UnlockAt  time.Time `json:"unlock_at" binding:"required"`
}

// @Summary      Ledger statistics (Admin)
// @Description  Daily aggregates over the Karma and Champion ledgers.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.StatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespLedgerStatistic
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/admin/get_ledger_statistic [post]
func ApiGetLedgerStatistic(svc StatisticsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if !bindJSON(c, &req) {
			return
		}
		res, err := svc.GetLedgerStatistic(c.Request.Context(), &req)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Reward Karma (Admin)
// @Description  Credits a user's wallet with a reward transaction.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body handlers.RewardRequest true "Reward"
// @Success      200  {object}  handlers.RespCredit
// @Failure      400  {object}  handlers.RespError
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/admin/reward [post]
func ApiRewardKarma(svc WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, ok := caller(c)
		if !ok {
			return
		}
		var req RewardRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.OperatorID == 0 {
			req.OperatorID = adminID
		}
		desc := req.Description
		if desc == "" {
			desc = "Reward"
		}
		res, err := svc.Credit(c.Request.Context(), req.UserID, req.Amount, types.KarmaTransactionTypeReward, &wallet.Meta{
			Description: desc,
			Status:      types.TransactionStatusCompleted,
		})
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Reconcile wallet (Admin)
// @Description  Compares a user's stored balance with the sum of their Karma ledger.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        user_id path int true "User ID"
// @Success      200  {object}  handlers.RespReconciliation
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/admin/reconcile/{user_id} [get]
func ApiReconcile(svc WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := pathID(c, "user_id")
		if !ok {
			return
		}
		res, err := svc.Reconcile(c.Request.Context(), userID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Payment notification logs (Admin)
// @Description  Audit trail of provider notifications and purchase verifications for a transaction.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        transaction_id query string true "Provider transaction id"
// @Success      200  {object}  handlers.RespNotificationLogs
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/admin/notification_logs [get]
func ApiNotificationLogs(svc NotificationLogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		txID := c.Query("transaction_id")
		if txID == "" {
			response.Fail(c, apperr.Validation("transaction_id is required"))
			return
		}
		logs, err := svc.FindByTransaction(c.Request.Context(), txID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(logs))
	}
}

// @Summary      Schedule time unlock (Admin)
// @Description  Schedules or moves a pending time unlock for any user. Idempotent; never affects an unlocked chapter.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body handlers.ScheduleRequest true "Unlock"
// @Success      200  {object}  handlers.RespUnlock
// @Failure      400  {object}  handlers.RespError
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/admin/unlocks/schedule [post]
func ApiScheduleUnlock(svc UnlockService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScheduleRequest
		if !bindJSON(c, &req) {
			return
		}
		row, err := svc.ScheduleTimeUnlock(c.Request.Context(), req.UserID, req.ChapterID, req.UnlockAt)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(row))
	}
}

func RegisterAdminRoutes(r gin.IRouter, stats StatisticsService, wl WalletService, notif NotificationLogService, ul UnlockService) {
	r.POST("/get_ledger_statistic", ApiGetLedgerStatistic(stats))
	r.POST("/reward", ApiRewardKarma(wl))
	r.GET("/reconcile/:user_id", ApiReconcile(wl))
	r.GET("/notification_logs", ApiNotificationLogs(notif))
	r.POST("/unlocks/schedule", ApiScheduleUnlock(ul))
}
