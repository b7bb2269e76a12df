package compare

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"locscout/internal/catalog"
	"locscout/internal/scraper"
)

type Handler struct {
	Engine *Engine
}

func NewHandler(e *Engine) *Handler {
	return &Handler{Engine: e}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/analyze/tags", h.byTags)
	rg.GET("/analyze/items/:id", h.byItem)

	// paths and parameter names of the first public release
	rg.GET("/analyze_by_tags", h.byTags)
	rg.GET("/analyze/v2/:id", h.byItem)
}

type comparisonResp struct {
	Language        string    `json:"analyzed_language"`
	AvgWith         int64     `json:"avg_reviews_with_language"`
	AvgWithout      int64     `json:"avg_reviews_without_language"`
	WithExamples    []Example `json:"with_language_examples"`
	WithoutExamples []Example `json:"without_language_examples"`
}

type resultResp struct {
	Query      Query          `json:"query"`
	Target     *Target        `json:"target_game,omitempty"`
	Comparison comparisonResp `json:"comparison"`
}

func toResp(r Result) resultResp {
	return resultResp{
		Query:  r.Query,
		Target: r.Target,
		Comparison: comparisonResp{
			Language:        r.Comparison.Language,
			AvgWith:         int64(math.Round(r.Comparison.AvgWith)),
			AvgWithout:      int64(math.Round(r.Comparison.AvgWithout)),
			WithExamples:    r.Comparison.WithExamples,
			WithoutExamples: r.Comparison.WithoutExamples,
		},
	}
}

func languageParam(c *gin.Context) (string, bool) {
	lang := strings.TrimSpace(c.Query("language"))
	if !scraper.IsKnownLanguage(lang) {
		resp := gin.H{"error": "unknown language code"}
		if hint := scraper.SuggestLanguage(lang); hint != "" {
			resp["did_you_mean"] = hint
		}
		c.JSON(http.StatusBadRequest, resp)
		return "", false
	}
	return lang, true
}

func (h *Handler) byTags(c *gin.Context) {
	lang, ok := languageParam(c)
	if !ok {
		return
	}
	res, err := h.Engine.CompareByTags(c.Request.Context(), c.Query("tags"), lang)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toResp(res))
}

func (h *Handler) byItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app id"})
		return
	}
	lang, ok := languageParam(c)
	if !ok {
		return
	}
	key := strings.TrimSpace(c.DefaultQuery("api_key", c.Query("user_api_key")))
	res, err := h.Engine.CompareByItem(c.Request.Context(), id, lang, key)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toResp(res))
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEmptyTags):
		c.JSON(http.StatusBadRequest, gin.H{"error": "tag list is empty, provide at least one tag"})
	case errors.Is(err, ErrNoTags):
		c.JSON(http.StatusBadRequest, gin.H{"error": "item has no tags, comparison is not possible"})
	case errors.Is(err, ErrCredentialRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "analyzing this language requires an api key"})
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
	default:
		h.Engine.Log.Error("comparison failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
