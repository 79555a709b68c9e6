package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/response"
)

type ConsumeRequest struct {
	// UserID, when given, must be the caller.
	UserID *uint64 `json:"user_id"`
	Cost   int64   `json:"cost" binding:"required"`
}

// @Summary      Unlock with Karma
// @Description  Spends Karma to unlock a chapter. Unlocking an already unlocked chapter charges nothing.
// @Tags         Unlock
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        chapter_id path int true "Chapter ID"
// @Param        request body handlers.ConsumeRequest true "Cost"
// @Success      200  {object}  handlers.RespConsume
// @Failure      400  {object}  handlers.RespError
// @Failure      402  {object}  handlers.RespError
// @Failure      403  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/v1/chapters/{chapter_id}/consume [post]
func ApiConsumeKarma(svc UnlockService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		chapterID, ok := pathID(c, "chapter_id")
		if !ok {
			return
		}
		var req ConsumeRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.UserID != nil && *req.UserID != userID {
			response.Fail(c, apperr.Forbidden("cannot spend another user's karma"))
			return
		}
		res, err := svc.ConsumeKarma(c.Request.Context(), userID, chapterID, req.Cost)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Wait for free
// @Description  Schedules a free unlock of a paid chapter after the configured wait. Asking again keeps the original time; never affects an unlocked chapter.
// @Tags         Unlock
// @Produce      json
// @Security     BearerAuth
// @Param        chapter_id path int true "Chapter ID"
// @Success      200  {object}  handlers.RespUnlock
// @Failure      400  {object}  handlers.RespError
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/chapters/{chapter_id}/schedule [post]
func ApiRequestTimeUnlock(svc UnlockService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		chapterID, ok := pathID(c, "chapter_id")
		if !ok {
			return
		}
		row, err := svc.RequestTimeUnlock(c.Request.Context(), userID, chapterID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(row))
	}
}

// @Summary      Mark chapter read
// @Tags         Unlock
// @Produce      json
// @Security     BearerAuth
// @Param        chapter_id path int true "Chapter ID"
// @Success      200  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/chapters/{chapter_id}/read [post]
func ApiMarkRead(svc UnlockService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		chapterID, ok := pathID(c, "chapter_id")
		if !ok {
			return
		}
		if err := svc.MarkRead(c.Request.Context(), userID, chapterID); err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterUnlockRoutes(r gin.IRouter, svc UnlockService) {
	r.POST("/chapters/:chapter_id/consume", ApiConsumeKarma(svc))
	r.POST("/chapters/:chapter_id/schedule", ApiRequestTimeUnlock(svc))
	r.POST("/chapters/:chapter_id/read", ApiMarkRead(svc))
}
