// Package api serves the status API of the package manager.
//
// Read-only routes are open: health, registered packages, package details
// and update results. Routes that change the site (installs, forced sweeps)
// require the configured bearer token and are rate limited per client.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/fairpm/fair-go/internal/db/models"
	"github.com/fairpm/fair-go/internal/installer"
	"github.com/fairpm/fair-go/internal/middleware"
	"github.com/fairpm/fair-go/internal/registry"
	"github.com/fairpm/fair-go/internal/storage"
	"github.com/fairpm/fair-go/internal/updates"
)

// Installer runs installs. *installer.Installer satisfies it.
type Installer interface {
	Install(ctx context.Context, id, version string) (*installer.Result, error)
}

// InstallStore records and lists install runs.
// *repositories.InstallRepository satisfies it.
type InstallStore interface {
	RecordInstall(ctx context.Context, res *installer.Result, startedAt time.Time, installErr error) error
	List(ctx context.Context, did string, limit int) ([]models.Install, error)
}

// CheckHistory reads update check history.
// *repositories.UpdateCheckRepository satisfies it.
type CheckHistory interface {
	Recent(ctx context.Context, limit int) ([]models.UpdateCheck, error)
	ListByDID(ctx context.Context, did string, limit int) ([]models.UpdateCheck, error)
	Summary(ctx context.Context, since time.Time) ([]models.OutcomeCount, error)
}

// Pinger reports database liveness. *sqlx.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server holds the dependencies of the handlers. Registry, Checker and Job
// are required; the rest are optional and disable their routes or checks
// when nil.
type Server struct {
	Registry  *registry.Registry
	Checker   *updates.Checker
	Job       *updates.Job
	Installer Installer

	Installs InstallStore
	History  CheckHistory
	DB       Pinger
	Storage  storage.Storage

	// Redis, when set, holds the rate limit budgets so they are shared
	// across processes. Nil keeps them in memory.
	Redis redis.UniversalClient

	APIToken string
	Version  string
}

// BackgroundServices holds the rate limiters started by NewRouter. Call
// Shutdown after the HTTP server has drained.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops the rate limiter cleanup goroutines.
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("api background services stopped")
}

// NewRouter creates the Gin engine.
func NewRouter(s *Server) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthHandler())
	router.GET("/ready", readinessHandler(s.DB, s.Storage))
	router.GET("/version", versionHandler(s.Version))

	bg := &BackgroundServices{}
	installLimit := s.rateLimit(bg, "install", middleware.InstallRateLimitConfig())
	checkLimit := s.rateLimit(bg, "check", middleware.CheckRateLimitConfig())

	v1 := router.Group("/v1")
	{
		v1.GET("/packages", s.listPackages)
		v1.GET("/packages/:slug", s.packageDetails)
		v1.GET("/updates", s.getUpdates)

		auth := middleware.TokenAuthMiddleware(s.APIToken)
		v1.POST("/updates/check", checkLimit, auth, s.forceCheck)
		if s.Installer != nil {
			v1.POST("/install", installLimit, auth, s.install)
		}

		if s.History != nil {
			v1.GET("/history/checks", s.listChecks)
			v1.GET("/history/summary", s.checkSummary)
		}
		if s.Installs != nil {
			v1.GET("/history/installs", s.listInstalls)
		}
	}

	return router, bg
}

// rateLimit returns the limiter middleware for one route budget.
func (s *Server) rateLimit(bg *BackgroundServices, name string, cfg middleware.RateLimitConfig) gin.HandlerFunc {
	if s.Redis != nil {
		return middleware.RedisRateLimitMiddleware(redis_rate.NewLimiter(s.Redis), name, cfg)
	}
	rl := middleware.NewRateLimiter(cfg)
	bg.rateLimiters = append(bg.rateLimiters, rl)
	return middleware.RateLimitMiddleware(rl)
}
