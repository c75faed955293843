package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fairpm/fair-go/internal/registry"
	"github.com/fairpm/fair-go/internal/updates"
)

// getUpdates handles GET /v1/updates?type=&context=. A context naming a
// trigger page runs a fresh sweep; any other context, or none, returns the
// last sweep of the periodic job. When no sweep has run yet one is run now.
func (s *Server) getUpdates(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	trigger := c.Query("context")
	if trigger == "" || !updates.ShouldRun(trigger) {
		if last := s.Job.Last(kind); last != nil {
			c.JSON(http.StatusOK, gin.H{"ran": false, "result": last})
			return
		}
		if trigger != "" {
			c.JSON(http.StatusOK, gin.H{"ran": false, "result": nil})
			return
		}
	}

	t, err := s.Checker.Sweep(c.Request.Context(), kind)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ran": true, "result": t})
}

// forceCheck handles POST /v1/updates/check: a full rescan and sweep of
// both kinds. A sweep already in progress yields 409.
func (s *Server) forceCheck(c *gin.Context) {
	start := time.Now()
	if !s.Job.RunOnce(c.Request.Context()) {
		c.JSON(http.StatusConflict, gin.H{"error": "an update sweep is already running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"duration_ms": time.Since(start).Milliseconds(),
		"plugin":      s.Job.Last(registry.KindPlugin),
		"theme":       s.Job.Last(registry.KindTheme),
	})
}
