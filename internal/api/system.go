package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fairpm/fair-go/internal/storage"
)

// readinessProbeKey is a path never written, used to exercise the storage
// backend without creating state.
const readinessProbeKey = ".readiness-probe"

// healthHandler is the liveness probe. It checks nothing beyond the process
// answering.
func healthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler checks the history database and the archive cache when
// they are configured.
func readinessHandler(db Pinger, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				checks["database"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "database not ready",
				})
				return
			}
			checks["database"] = "healthy"
		}

		if store != nil {
			if _, err := store.Exists(c.Request.Context(), readinessProbeKey); err != nil {
				checks["storage"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "storage backend not ready",
				})
				return
			}
			checks["storage"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler(version string) gin.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     version,
			"api_version": "v1",
		})
	}
}
