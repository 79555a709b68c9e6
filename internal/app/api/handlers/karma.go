package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fablecast/entitlement/internal/app/service/purchase"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/response"
)

type BalanceResponse struct {
	UserID  uint64 `json:"user_id"`
	Balance int64  `json:"balance"`
}

// @Summary      Karma balance
// @Tags         Karma
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespBalance
// @Router       /api/v1/karma/balance [get]
func ApiGetBalance(svc WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		bal, err := svc.GetBalance(c.Request.Context(), userID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&BalanceResponse{UserID: userID, Balance: bal}))
	}
}

// @Summary      Karma history
// @Description  Latest Karma transactions of the caller, newest first.
// @Tags         Karma
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Max rows (default 20, max 100)"
// @Success      200  {object}  handlers.RespKarmaHistory
// @Router       /api/v1/karma/history [get]
func ApiKarmaHistory(svc WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		limit := 0
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				response.Fail(c, apperr.Validation("invalid limit"))
				return
			}
			limit = n
		}
		rows, err := svc.History(c.Request.Context(), userID, limit)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

// @Summary      Buy Karma
// @Description  Verifies a provider purchase of a Karma pack and credits the caller once per provider transaction.
// @Tags         Karma
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body purchase.Request true "Provider transaction"
// @Success      200  {object}  handlers.RespPurchase
// @Failure      400  {object}  handlers.RespError
// @Failure      403  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/karma/purchase [post]
func ApiPurchaseKarma(svc PurchaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		var req purchase.Request
		if !bindJSON(c, &req) {
			return
		}
		res, err := svc.VerifyPurchase(c.Request.Context(), userID, &req)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterKarmaRoutes(r gin.IRouter, wl WalletService, pur PurchaseService) {
	r.GET("/karma/balance", ApiGetBalance(wl))
	r.GET("/karma/history", ApiKarmaHistory(wl))
	r.POST("/karma/purchase", ApiPurchaseKarma(pur))
}
