package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/analytics"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/links"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/quota"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/ratelimit"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/redirect"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/shorten"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/store"
)

// deps is everything the router needs. main builds it from config; tests
// build it by hand.
type deps struct {
	store          store.LinkStore // possibly cached; used on the hot paths
	db             *store.GormStore
	reporter       report.Reporter
	clicks         *analytics.Dispatcher
	limiter        *ratelimit.Store // nil disables anonymous limiting
	secret         []byte
	baseURL        string
	codeLength     int
	freeLimit      int64
	redirectStatus int
	notFoundURL    string
	corsOrigins    []string
	trustedProxies []string // nil: client IP is always the socket peer
}

func newRouter(d deps) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(d.trustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	r.Use(report.RequestID(), gin.Logger(), report.Recovery(d.reporter))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	if len(d.corsOrigins) > 0 {
		api.Use(cors.New(cors.Config{
			AllowOrigins:     d.corsOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After", report.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
		// Preflights need a route to match.
		api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "sniplinks",
			})
		})

		enforcer := quota.NewEnforcer(d.store, d.freeLimit)
		svc := shorten.NewService(d.store, enforcer,
			shorten.WithBaseURL(d.baseURL),
			shorten.WithCodeLength(d.codeLength),
			shorten.WithReporter(d.reporter),
		)
		var limiters []gin.HandlerFunc
		if d.limiter != nil {
			limiters = append(limiters, ratelimit.AnonymousOnly(d.limiter))
		}
		shorten.NewHandler(svc, d.store, enforcer, d.secret).RegisterRoutes(api, limiters...)

		// Listing reads the database directly; cached links carry no click count.
		links.NewHandler(d.db, d.baseURL, d.secret, d.reporter).RegisterRoutes(api)
	}

	// Redirect routes (public, must be registered LAST to avoid conflicts)
	redirectHandler, err := redirect.NewHandler(redirect.NewDispatcher(d.store, d.reporter), d.clicks).
		WithNotFoundURL(d.notFoundURL).
		WithStatus(d.redirectStatus)
	if err != nil {
		return nil, err
	}
	redirectHandler.RegisterRoutes(r)

	return r, nil
}
