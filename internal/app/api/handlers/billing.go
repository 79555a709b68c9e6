package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fablecast/entitlement/internal/app/service/billing"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/response"
	"github.com/fablecast/entitlement/pkg/tool"
	"github.com/fablecast/entitlement/pkg/types"
)

// parseTimeParam accepts RFC3339 timestamps or plain dates (UTC midnight).
func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func atoiParam(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func billingRequest(c *gin.Context) (*billing.Request, error) {
	req := &billing.Request{
		Type:   types.LedgerType(c.Query("type")),
		Status: types.TransactionStatus(c.Query("status")),
		Query:  c.Query("q"),
	}
	if v := c.Query("user_id"); v != "" {
		id, ok := tool.ParseID(v)
		if !ok {
			return nil, apperr.Validation("invalid user_id")
		}
		req.UserID = &id
	}
	var err error
	if req.From, err = parseTimeParam(c.Query("from")); err != nil {
		return nil, apperr.Validation("invalid from")
	}
	if req.To, err = parseTimeParam(c.Query("to")); err != nil {
		return nil, apperr.Validation("invalid to")
	}
	if req.Page, err = atoiParam(c, "page"); err != nil {
		return nil, apperr.Validation("invalid page")
	}
	if req.PageSize, err = atoiParam(c, "page_size"); err != nil {
		return nil, apperr.Validation("invalid page_size")
	}
	return req, nil
}

// @Summary      Billing ledger
// @Description  Merged Karma and Champion transactions of the caller, newest first.
// @Tags         Billing
// @Produce      json
// @Security     BearerAuth
// @Param        user_id   query int    false "Must equal the caller when given"
// @Param        type      query string false "purchase|consumption|reward|refund|champion_new|champion_renew|champion_upgrade|champion_refund"
// @Param        status    query string false "pending|completed|failed|refunded"
// @Param        q         query string false "Matches description, type or provider reference"
// @Param        from      query string false "Inclusive lower bound (RFC3339 or YYYY-MM-DD)"
// @Param        to        query string false "Exclusive upper bound (RFC3339 or YYYY-MM-DD)"
// @Param        page      query int    false "Page, default 1"
// @Param        page_size query int    false "Page size, default 20, max 100"
// @Success      200  {object}  handlers.RespBillingPage
// @Failure      400  {object}  handlers.RespError
// @Failure      403  {object}  handlers.RespError
// @Router       /api/v1/billing/transactions [get]
func ApiListBillingTransactions(svc BillingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		req, err := billingRequest(c)
		if err != nil {
			response.Fail(c, err)
			return
		}
		page, err := svc.ListTransactions(c.Request.Context(), userID, req)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(page))
	}
}

func RegisterBillingRoutes(r gin.IRouter, svc BillingService) {
	r.GET("/billing/transactions", ApiListBillingTransactions(svc))
}
