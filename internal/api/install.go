package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/did"
	"github.com/fairpm/fair-go/internal/installer"
	"github.com/fairpm/fair-go/internal/registry"
)

// installRequest is the body of POST /v1/install.
type installRequest struct {
	DID     string `json:"did" binding:"required"`
	Version string `json:"version"`
}

// installResponse reports a finished run, successful or not.
type installResponse struct {
	RunID       string            `json:"run_id"`
	DID         string            `json:"did"`
	Kind        registry.Kind     `json:"kind,omitempty"`
	Version     string            `json:"version,omitempty"`
	Slug        string            `json:"slug,omitempty"`
	Destination string            `json:"destination,omitempty"`
	PackageURL  string            `json:"package_url,omitempty"`
	KeyID       string            `json:"key_id,omitempty"`
	States      []installer.State `json:"states"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
}

func newInstallResponse(res *installer.Result, err error) installResponse {
	out := installResponse{
		RunID:       res.RunID,
		DID:         res.DID,
		Kind:        res.Kind,
		Version:     res.Version,
		Slug:        res.Slug,
		Destination: res.Destination,
		PackageURL:  res.Artifact.URL,
		States:      res.States,
	}
	if res.Signature != nil {
		out.KeyID = res.Signature.KeyID
	}
	if err != nil {
		out.Error = err.Error()
		out.ErrorKind = apperr.Kind(err)
	}
	return out
}

// install handles POST /v1/install.
func (s *Server) install(c *gin.Context) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be JSON with a \"did\" field")
		return
	}
	if !did.IsValid(req.DID) {
		abortWithError(c, apperr.ErrInvalidDID)
		return
	}

	ctx := c.Request.Context()
	started := time.Now()
	res, err := s.Installer.Install(ctx, req.DID, req.Version)

	if s.Installs != nil {
		if rerr := s.Installs.RecordInstall(ctx, res, started, err); rerr != nil {
			slog.Warn("failed to record install", "run_id", res.RunID, "error", rerr)
		}
	}

	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), newInstallResponse(res, err))
		return
	}
	c.JSON(http.StatusCreated, newInstallResponse(res, nil))
}
