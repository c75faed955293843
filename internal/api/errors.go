package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/updates"
)

// statusFor maps an error to an HTTP status by its apperr kind.
func statusFor(err error) int {
	if errors.Is(err, updates.ErrPackageNotFound) {
		return http.StatusNotFound
	}
	switch apperr.Kind(err) {
	case "invalid_did", "metadata_invalid":
		return http.StatusBadRequest
	case "no_releases":
		return http.StatusNotFound
	case "destination_exists":
		return http.StatusConflict
	case "no_service", "no_signing_keys", "incompatible_archive", "incompatible_version",
		"missing_extension", "signature_invalid", "did_mismatch":
		return http.StatusUnprocessableEntity
	case "transport_error", "resolution_failed":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// abortWithError writes {"error", "kind"} with the status for err.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{
		"error": err.Error(),
		"kind":  apperr.Kind(err),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
