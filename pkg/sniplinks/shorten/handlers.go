package shorten

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/auth"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/quota"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/store"
)

// Handler handles shortening requests
type Handler struct {
	service  *Service
	store    store.LinkStore
	enforcer *quota.Enforcer
	secret   []byte
}

// NewHandler creates a new shorten handler
func NewHandler(service *Service, st store.LinkStore, enforcer *quota.Enforcer, secret []byte) *Handler {
	return &Handler{service: service, store: st, enforcer: enforcer, secret: secret}
}

// ShortenRequest represents the request to shorten a URL
type ShortenRequest struct {
	URL        string `json:"url"`
	CustomCode string `json:"customCode"`
}

// QuotaResponse describes the caller's monthly usage
type QuotaResponse struct {
	Tier      models.Tier `json:"tier"`
	Premium   bool        `json:"premium"`
	Unlimited bool        `json:"unlimited"`
	Current   int64       `json:"current"`
	Limit     int64       `json:"limit"`
}

// Shorten creates a short link
// @Summary Shorten a URL
// @Description Create a short link, optionally with a custom code (premium only)
// @Tags shorten
// @Accept json
// @Produce json
// @Param request body ShortenRequest true "URL to shorten"
// @Success 200 {object} Result
// @Failure 400 {object} map[string]string "Invalid URL or code"
// @Failure 403 {object} map[string]string "Custom code requires premium"
// @Failure 409 {object} map[string]string "Code taken"
// @Failure 429 {object} map[string]interface{} "Monthly limit reached"
// @Router /shorten [post]
func (h *Handler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is required"})
		return
	}

	sreq := Request{URL: req.URL, CustomCode: req.CustomCode}
	if userID, ok := auth.GetUserID(c); ok {
		sreq.Owner = &Owner{ID: userID}
	}

	result, err := h.service.Shorten(c.Request.Context(), sreq)
	if err != nil {
		writeError(c, err)
		return
	}

	if h.service.BaseURL() == "" {
		result.ShortURL = requestBaseURL(c) + "/" + result.ShortCode
	}
	c.JSON(http.StatusOK, result)
}

// Quota returns the caller's usage for the current month
// @Summary Get monthly quota
// @Tags shorten
// @Produce json
// @Success 200 {object} QuotaResponse
// @Security BearerAuth
// @Router /quota [get]
func (h *Handler) Quota(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	ctx := c.Request.Context()

	tier, err := h.store.GetSubscriptionTier(ctx, userID)
	if err != nil {
		writeError(c, h.service.storeError(ctx, err, "get subscription tier", "owner", userID))
		return
	}
	decision, err := h.enforcer.CheckAndReserve(ctx, userID, tier)
	if err != nil {
		writeError(c, h.service.storeError(ctx, err, "check quota", "owner", userID))
		return
	}

	c.JSON(http.StatusOK, QuotaResponse{
		Tier:      tier,
		Premium:   tier.Premium(),
		Unlimited: decision.Unlimited,
		Current:   decision.Current,
		Limit:     decision.Limit,
	})
}

func writeError(c *gin.Context, err error) {
	if qe, ok := IsQuotaExceeded(err); ok {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   qe.Error(),
			"current": qe.Current,
			"limit":   qe.Limit,
		})
		return
	}

	switch {
	case errors.Is(err, ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid URL format"})
	case errors.Is(err, ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Custom code can only contain letters, numbers, hyphens, and underscores"})
	case errors.Is(err, ErrCustomCodeRequiresPremium):
		c.JSON(http.StatusForbidden, gin.H{"error": "Custom short codes are only available for premium users"})
	case errors.Is(err, ErrCodeTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "This custom code is already taken"})
	case errors.Is(err, ErrStoreTimeout):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Service temporarily unavailable, please retry"})
	case errors.Is(err, ErrGenerationExhausted):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create short link"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}

// RegisterRoutes registers shorten routes. limiters run after the optional
// auth middleware, so they can tell anonymous callers apart.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, limiters ...gin.HandlerFunc) {
	shorten := append([]gin.HandlerFunc{auth.OptionalAuth(h.secret)}, limiters...)
	shorten = append(shorten, h.Shorten)
	rg.POST("/shorten", shorten...)
	rg.GET("/quota", auth.RequireAuth(h.secret), h.Quota)
}
