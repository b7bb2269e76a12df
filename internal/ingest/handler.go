package ingest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"locscout/internal/scraper"
)

// Handler exposes the on-demand refresh to operators.
type Handler struct {
	Scheduler *Scheduler
}

func NewHandler(s *Scheduler) *Handler {
	return &Handler{Scheduler: s}
}

// RegisterRoutes mounts POST /refresh on an already-protected group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/refresh", h.refresh)
}

type refreshReq struct {
	IDs      []int64 `json:"ids"`
	Language string  `json:"language"`
	APIKey   string  `json:"api_key"`
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.IDs) == 0 || len(req.IDs) > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids must hold between 1 and 50 app ids"})
		return
	}
	lang := strings.TrimSpace(req.Language)
	if !scraper.IsKnownLanguage(lang) {
		resp := gin.H{"error": "unknown language code"}
		if hint := scraper.SuggestLanguage(lang); hint != "" {
			resp["did_you_mean"] = hint
		}
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	items, err := h.Scheduler.RefreshOne(c.Request.Context(), req.IDs, lang, strings.TrimSpace(req.APIKey))
	if err != nil {
		h.Scheduler.Log.Error("on-demand refresh failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"refreshed": len(items),
		"items":     items,
	})
}
