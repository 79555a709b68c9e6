package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fablecast/entitlement/internal/app/service/champion"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/response"
)

type SubscribeRequest struct {
	TierLevel     int    `json:"tier_level" binding:"required,min=1"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	// ProviderRef is the payment reference issued by the provider, if any.
	ProviderRef string `json:"provider_ref"`
	AutoRenew   *bool  `json:"auto_renew"`
}

// @Summary      Active tiers
// @Description  Lists the active Champion tiers of a novel, lowest level first.
// @Tags         Champion
// @Produce      json
// @Security     BearerAuth
// @Param        novel_id path int true "Novel ID"
// @Success      200  {object}  handlers.RespTiers
// @Router       /api/v1/novels/{novel_id}/tiers [get]
func ApiListTiers(svc ChampionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		novelID, ok := pathID(c, "novel_id")
		if !ok {
			return
		}
		tiers, err := svc.GetActiveTiers(c.Request.Context(), novelID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(tiers))
	}
}

// @Summary      Subscribe
// @Description  Subscribes the caller to a Champion tier of a novel for one term, replacing any existing subscription.
// @Tags         Champion
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        novel_id path int true "Novel ID"
// @Param        request body handlers.SubscribeRequest true "Tier and payment method"
// @Success      200  {object}  handlers.RespSubscribe
// @Failure      400  {object}  handlers.RespError
// @Failure      404  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/novels/{novel_id}/subscribe [post]
func ApiSubscribe(svc ChampionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		novelID, ok := pathID(c, "novel_id")
		if !ok {
			return
		}
		var req SubscribeRequest
		if !bindJSON(c, &req) {
			return
		}
		var opts []champion.SubscribeOption
		if req.ProviderRef != "" {
			opts = append(opts, champion.WithProviderRef(req.ProviderRef))
		}
		if req.AutoRenew != nil {
			opts = append(opts, champion.WithAutoRenew(*req.AutoRenew))
		}
		res, err := svc.Subscribe(c.Request.Context(), userID, novelID, req.TierLevel, req.PaymentMethod, opts...)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Cancel auto-renew
// @Description  Turns auto-renew off. Access continues until the end of the paid term.
// @Tags         Champion
// @Produce      json
// @Security     BearerAuth
// @Param        novel_id path int true "Novel ID"
// @Success      200  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/novels/{novel_id}/subscribe/cancel [post]
func ApiCancelSubscription(svc ChampionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		novelID, ok := pathID(c, "novel_id")
		if !ok {
			return
		}
		sub, err := svc.Cancel(c.Request.Context(), userID, novelID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Apply for Champion
// @Description  Submits a novel for Champion when it has enough approved chapters.
// @Tags         Champion
// @Produce      json
// @Security     BearerAuth
// @Param        novel_id path int true "Novel ID"
// @Success      200  {object}  handlers.RespEligibility
// @Failure      400  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/novels/{novel_id}/champion/apply [post]
func ApiApplyForChampion(svc ChampionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		novelID, ok := pathID(c, "novel_id")
		if !ok {
			return
		}
		res, err := svc.ApplyForChampion(c.Request.Context(), novelID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Upsert tier
// @Description  Creates or updates the active tier at a level.
// @Tags         Champion
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        novel_id path int true "Novel ID"
// @Param        request body champion.TierInput true "Tier"
// @Success      200  {object}  handlers.RespTier
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/novels/{novel_id}/tiers [put]
func ApiUpsertTier(svc ChampionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		novelID, ok := pathID(c, "novel_id")
		if !ok {
			return
		}
		var in champion.TierInput
		if !bindJSON(c, &in) {
			return
		}
		tier, err := svc.UpsertTier(c.Request.Context(), novelID, in)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(tier))
	}
}

// @Summary      Deactivate tier
// @Tags         Champion
// @Produce      json
// @Security     BearerAuth
// @Param        novel_id path int true "Novel ID"
// @Param        tier_level path int true "Tier level"
// @Success      200  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/novels/{novel_id}/tiers/{tier_level} [delete]
func ApiDeactivateTier(svc ChampionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		novelID, ok := pathID(c, "novel_id")
		if !ok {
			return
		}
		level, err := strconv.Atoi(c.Param("tier_level"))
		if err != nil || level < 1 {
			response.Fail(c, apperr.Validation("invalid tier_level"))
			return
		}
		if err := svc.DeactivateTier(c.Request.Context(), novelID, level); err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// RegisterChampionRoutes mounts reader routes on r; writer tools additionally
// pass through writer.
func RegisterChampionRoutes(r gin.IRouter, svc ChampionService, writer gin.HandlerFunc) {
	r.GET("/novels/:novel_id/tiers", ApiListTiers(svc))
	r.POST("/novels/:novel_id/subscribe", ApiSubscribe(svc))
	r.POST("/novels/:novel_id/subscribe/cancel", ApiCancelSubscription(svc))

	r.POST("/novels/:novel_id/champion/apply", writer, ApiApplyForChampion(svc))
	r.PUT("/novels/:novel_id/tiers", writer, ApiUpsertTier(svc))
	r.DELETE("/novels/:novel_id/tiers/:tier_level", writer, ApiDeactivateTier(svc))
}
