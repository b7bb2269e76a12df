package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"locscout/internal/logging"
	"locscout/internal/scraper"
)

// KeyChecker validates a user-supplied marketplace API key.
type KeyChecker interface {
	Validate(ctx context.Context, key string) error
}

type Handler struct {
	Repo       *Repo
	Keys       KeyChecker
	StaleAfter time.Duration
	Log        *slog.Logger
}

func NewHandler(repo *Repo, keys KeyChecker, staleAfter time.Duration, log *slog.Logger) *Handler {
	return &Handler{Repo: repo, Keys: keys, StaleAfter: staleAfter, Log: logging.OrDefault(log)}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/languages", h.languages)
	rg.GET("/get_languages", h.languages)
	rg.GET("/validate_api_key", h.validateKey)
	rg.GET("/search", h.search)
	rg.GET("/items/:id", h.getByID)
	rg.GET("/stats", h.stats)
}

// languages accepts full or the older full_list flag.
func (h *Handler) languages(c *gin.Context) {
	full, _ := strconv.ParseBool(c.DefaultQuery("full", c.Query("full_list")))
	if full {
		c.JSON(http.StatusOK, scraper.AllLanguages)
		return
	}
	c.JSON(http.StatusOK, scraper.CoreLanguages)
}

func (h *Handler) validateKey(c *gin.Context) {
	key := strings.TrimSpace(c.Query("api_key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key required"})
		return
	}
	err := h.Keys.Validate(c.Request.Context(), key)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"valid": true})
	case errors.Is(err, scraper.ErrInvalidKey):
		c.JSON(http.StatusForbidden, gin.H{"valid": false, "error": "api key rejected"})
	default:
		h.Log.Warn("key validation failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not reach the marketplace"})
	}
}

func (h *Handler) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("query"))
	if q == "" {
		c.JSON(http.StatusOK, []NameMatch{})
		return
	}
	hits, err := h.Repo.SearchByName(c.Request.Context(), q, parseInt(c.Query("limit"), 10))
	if err != nil {
		h.Log.Error("search failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, hits)
}

func (h *Handler) getByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app id"})
		return
	}
	it, err := h.Repo.Get(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.Log.Error("get failed", "app_id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	c.JSON(http.StatusOK, it)
}

func (h *Handler) stats(c *gin.Context) {
	s, err := h.Repo.Stats(c.Request.Context(), time.Now().Add(-h.StaleAfter))
	if err != nil {
		h.Log.Error("stats failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
