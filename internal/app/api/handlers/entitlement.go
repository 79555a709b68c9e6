package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fablecast/entitlement/internal/app/service/entitlement"
	"github.com/fablecast/entitlement/pkg/response"
)

type ListChaptersResponse struct {
	Visibility *entitlement.Visibility     `json:"visibility"`
	Chapters   []*entitlement.ChapterEntry `json:"chapters"`
}

// @Summary      Novel entitlement
// @Description  Champion visibility of a novel for the caller: whether Champion is enabled, whether the caller is a Champion, the tier and the highest chapter number the caller may see.
// @Tags         Entitlement
// @Produce      json
// @Security     BearerAuth
// @Param        novel_id path int true "Novel ID"
// @Success      200  {object}  handlers.RespVisibility
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/novels/{novel_id}/entitlement [get]
func ApiGetEntitlement(svc EntitlementService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		novelID, ok := pathID(c, "novel_id")
		if !ok {
			return
		}
		vis, err := svc.ResolveVisibility(c.Request.Context(), userID, novelID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(vis))
	}
}

// @Summary      Visible chapters
// @Description  Lists the chapters of a novel the caller may see, with each chapter's unlock state.
// @Tags         Entitlement
// @Produce      json
// @Security     BearerAuth
// @Param        novel_id path int true "Novel ID"
// @Success      200  {object}  handlers.RespListChapters
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/novels/{novel_id}/chapters [get]
func ApiListChapters(svc EntitlementService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		novelID, ok := pathID(c, "novel_id")
		if !ok {
			return
		}
		chapters, vis, err := svc.ListVisibleChapters(c.Request.Context(), novelID, userID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListChaptersResponse{Visibility: vis, Chapters: chapters}))
	}
}

// @Summary      Chapter access
// @Description  Decides whether the caller may read a chapter and why.
// @Tags         Entitlement
// @Produce      json
// @Security     BearerAuth
// @Param        chapter_id path int true "Chapter ID"
// @Success      200  {object}  handlers.RespDecision
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/chapters/{chapter_id}/access [get]
func ApiChapterAccess(svc EntitlementService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := caller(c)
		if !ok {
			return
		}
		chapterID, ok := pathID(c, "chapter_id")
		if !ok {
			return
		}
		d, err := svc.CanReadChapter(c.Request.Context(), userID, chapterID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(d))
	}
}

func RegisterEntitlementRoutes(r gin.IRouter, svc EntitlementService) {
	r.GET("/novels/:novel_id/entitlement", ApiGetEntitlement(svc))
	r.GET("/novels/:novel_id/chapters", ApiListChapters(svc))
	r.GET("/chapters/:chapter_id/access", ApiChapterAccess(svc))
}
