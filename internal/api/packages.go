package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fairpm/fair-go/internal/registry"
)

// packageView is a registered package as listed by the API.
type packageView struct {
	DID          string        `json:"did"`
	DIDHash      string        `json:"did_hash"`
	Kind         registry.Kind `json:"kind"`
	Slug         string        `json:"slug"`
	RelativePath string        `json:"relative_path"`
	LocalVersion string        `json:"local_version,omitempty"`
}

// kindParam reads ?type=, defaulting to plugin.
func kindParam(c *gin.Context) (registry.Kind, bool) {
	raw := c.DefaultQuery("type", string(registry.KindPlugin))
	kind, err := registry.ParseKind(raw)
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return kind, true
}

// listPackages handles GET /v1/packages?type=plugin|theme. Without a type
// both kinds are listed.
func (s *Server) listPackages(c *gin.Context) {
	kinds := []registry.Kind{registry.KindPlugin, registry.KindTheme}
	if _, ok := c.GetQuery("type"); ok {
		kind, ok := kindParam(c)
		if !ok {
			return
		}
		kinds = []registry.Kind{kind}
	}

	out := []packageView{}
	for _, kind := range kinds {
		for _, p := range s.Registry.All(kind) {
			out = append(out, packageView{
				DID:          p.DID,
				DIDHash:      p.DIDHash(),
				Kind:         p.Kind,
				Slug:         p.Slug(),
				RelativePath: p.RelativePath(),
				LocalVersion: p.LocalVersion,
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"packages": out, "count": len(out)})
}

// packageDetails handles GET /v1/packages/:slug?type=. The slug may carry
// the "-<didhash>" suffix used in update results.
func (s *Server) packageDetails(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	payload, err := s.Checker.Details(c.Request.Context(), kind, c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}
