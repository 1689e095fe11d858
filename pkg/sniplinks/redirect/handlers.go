package redirect

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/analytics"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
)

// DefaultNotFoundURL is where unknown codes are sent.
const DefaultNotFoundURL = "/not-found"

// Handler handles redirect requests
type Handler struct {
	dispatcher  *Dispatcher
	analytics   *analytics.Dispatcher
	status      int
	notFoundURL string
}

// NewHandler creates a new redirect handler. clicks may be nil to disable
// click recording.
func NewHandler(dispatcher *Dispatcher, clicks *analytics.Dispatcher) *Handler {
	return &Handler{
		dispatcher:  dispatcher,
		analytics:   clicks,
		status:      http.StatusFound,
		notFoundURL: DefaultNotFoundURL,
	}
}

// WithStatus sets the redirect status code. Only 301, 302, 307 and 308 are
// accepted.
func (h *Handler) WithStatus(status int) (*Handler, error) {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		h.status = status
		return h, nil
	}
	return h, fmt.Errorf("unsupported redirect status %d", status)
}

// WithNotFoundURL sets where unknown codes are redirected.
func (h *Handler) WithNotFoundURL(url string) *Handler {
	if url != "" {
		h.notFoundURL = url
	}
	return h
}

// Redirect handles short URL redirects
// Unknown codes and store failures redirect to the not-found page.
// The click is recorded in the background; the response never waits for it.
// ?no_stat=1 skips recording, for link previews.
func (h *Handler) Redirect(c *gin.Context) {
	code := c.Param("code")

	res, _ := h.dispatcher.Resolve(c.Request.Context(), code)
	if !res.Found {
		c.Redirect(http.StatusFound, h.notFoundURL)
		return
	}

	if h.analytics != nil && c.Query("no_stat") != "1" {
		h.analytics.Dispatch(analytics.Event{
			LinkID:    res.Link.ID,
			ClickedAt: time.Now(),
			Referrer:  c.Request.Referer(),
			UserAgent: c.Request.UserAgent(),
			RequestID: report.GetRequestID(c),
		})
	}

	// Location is written as stored; http.Redirect would re-escape it.
	c.Header("Location", res.Link.OriginalURL)
	c.Header("Cache-Control", "private, max-age=0")
	c.Status(h.status)
}

// NotFound serves the page unknown codes are redirected to.
func (h *Handler) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
}

// RegisterRoutes registers redirect routes on the root router
// This should be called AFTER all other routes to avoid conflicts
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	if h.notFoundURL == DefaultNotFoundURL {
		r.GET(DefaultNotFoundURL, h.NotFound)
	}
	// Registered last so /api, /health and friends win.
	r.GET("/:code", h.Redirect)
}
