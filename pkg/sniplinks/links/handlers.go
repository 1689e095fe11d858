// Package links serves an owner's view of their links and click statistics.
package links

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/auth"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/store"
)

// Store is what the handler reads. It should not be the cached store: the
// cache leaves out click counts.
type Store interface {
	store.LinkLister
	FindLinkByCode(ctx context.Context, code string) (*models.Link, error)
}

// Handler handles link-related requests
type Handler struct {
	store    Store
	baseURL  string
	secret   []byte
	reporter report.Reporter
}

// NewHandler creates a new links handler
func NewHandler(st Store, baseURL string, secret []byte, reporter report.Reporter) *Handler {
	if reporter == nil {
		reporter = report.Discard
	}
	return &Handler{store: st, baseURL: strings.TrimRight(baseURL, "/"), secret: secret, reporter: reporter}
}

// LinkResponse represents a link in API responses
type LinkResponse struct {
	ShortCode   string `json:"short_code"`
	ShortURL    string `json:"short_url"`
	OriginalURL string `json:"original_url"`
	ClickCount  uint   `json:"click_count"`
	CreatedAt   string `json:"created_at"`
}

// ListResponse is a page of links
type ListResponse struct {
	Links  []LinkResponse `json:"links"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// StatsResponse is a link with its click statistics
type StatsResponse struct {
	LinkResponse
	Stats *store.ClickStats `json:"stats"`
}

func (h *Handler) linkToResponse(link models.Link) LinkResponse {
	return LinkResponse{
		ShortCode:   link.ShortCode,
		ShortURL:    h.baseURL + "/" + link.ShortCode,
		OriginalURL: link.OriginalURL,
		ClickCount:  link.ClickCount,
		CreatedAt:   link.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// List returns the caller's links, newest first
// @Summary List my links
// @Tags links
// @Produce json
// @Param limit query int false "Max results (default 50, max 100)"
// @Param offset query int false "Offset for pagination"
// @Success 200 {object} ListResponse
// @Security BearerAuth
// @Router /links [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	// Pagination
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	links, total, err := h.store.ListLinksForOwner(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.reporter.Report(err, "list links", report.Fields(c.Request.Context(), "owner", userID)...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch links"})
		return
	}

	responses := make([]LinkResponse, len(links))
	for i, link := range links {
		responses[i] = h.linkToResponse(link)
	}

	c.JSON(http.StatusOK, ListResponse{Links: responses, Total: total, Limit: limit, Offset: offset})
}

// Get returns one of the caller's links with click statistics
// @Summary Get link statistics
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Param days query int false "Days of daily history (default 30, max 365)"
// @Success 200 {object} StatsResponse
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{code} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	ctx := c.Request.Context()

	link, err := h.store.FindLinkByCode(ctx, c.Param("code"))
	if err != nil && !store.IsNotFound(err) {
		h.reporter.Report(err, "get link", report.Fields(ctx, "code", c.Param("code"))...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch link"})
		return
	}
	// Other owners' links look the same as missing ones.
	if link == nil || !link.OwnedBy(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}

	days := 30
	if d := c.Query("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 && parsed <= 365 {
			days = parsed
		}
	}
	since := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))

	stats, err := h.store.ClickStats(ctx, link.ID, since)
	if err != nil {
		h.reporter.Report(err, "click stats", report.Fields(ctx, "code", link.ShortCode)...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch statistics"})
		return
	}

	c.JSON(http.StatusOK, StatsResponse{LinkResponse: h.linkToResponse(*link), Stats: stats})
}

// RegisterRoutes registers link routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	links := rg.Group("/links", auth.RequireAuth(h.secret))
	links.GET("", h.List)
	links.GET("/:code", h.Get)
}
