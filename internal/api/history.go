package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultSummaryWindow = 24 * time.Hour

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return n
}

// listChecks handles GET /v1/history/checks?did=&limit=.
func (s *Server) listChecks(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		rows any
		err  error
	)
	if id := c.Query("did"); id != "" {
		rows, err = s.History.ListByDID(ctx, id, limitParam(c))
	} else {
		rows, err = s.History.Recent(ctx, limitParam(c))
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checks": rows})
}

// checkSummary handles GET /v1/history/summary?window=24h.
func (s *Server) checkSummary(c *gin.Context) {
	window := defaultSummaryWindow
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			badRequest(c, "window must be a positive duration such as 24h")
			return
		}
		window = d
	}
	since := time.Now().Add(-window)
	counts, err := s.History.Summary(c.Request.Context(), since)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since.UTC().Format(time.RFC3339), "outcomes": counts})
}

// listInstalls handles GET /v1/history/installs?did=&limit=.
func (s *Server) listInstalls(c *gin.Context) {
	rows, err := s.Installs.List(c.Request.Context(), c.Query("did"), limitParam(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"installs": rows})
}
