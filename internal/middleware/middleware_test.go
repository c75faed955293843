package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairpm/fair-go/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// collectCounter reads the value of the series matching labels, or -1.
func collectCounter(cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	m, err := cv.GetMetricWith(labels)
	if err != nil {
		return -1
	}
	var dm dto.Metric
	if err := m.Write(&dm); err != nil {
		return -1
	}
	return dm.GetCounter().GetValue()
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/v1/packages/:slug", func(c *gin.Context) { c.Status(http.StatusOK) })

	labels := prometheus.Labels{"method": "GET", "path": "/v1/packages/:slug", "status": "200"}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)

	serve(r, httptest.NewRequest(http.MethodGet, "/v1/packages/hello", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/v1/packages/other", nil))

	assert.Equal(t, before+2, collectCounter(telemetry.HTTPRequestsTotal, labels))
}

func TestMetricsMiddleware_NoRoute(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())

	labels := prometheus.Labels{"method": "GET", "path": NoRouteLabel, "status": "404"}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)
	serve(r, httptest.NewRequest(http.MethodGet, "/nope/did:plc:abc", nil))
	assert.Equal(t, before+1, collectCounter(telemetry.HTTPRequestsTotal, labels))
}

// ---------------------------------------------------------------------------
// RequestIDMiddleware
// ---------------------------------------------------------------------------

func newRequestIDRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.Header("X-Context-Request-ID", RequestID(c))
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequestIDMiddleware_GeneratesUUID(t *testing.T) {
	w := serve(newRequestIDRouter(), httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get(RequestIDHeader)
	require.Len(t, id, 36)
	assert.Equal(t, id, w.Header().Get("X-Context-Request-ID"))
}

func TestRequestIDMiddleware_PropagatesIncomingID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-1")
	w := serve(newRequestIDRouter(), req)
	assert.Equal(t, "upstream-1", w.Header().Get(RequestIDHeader))
}

func TestRequestIDMiddleware_DifferentIDsPerRequest(t *testing.T) {
	r := newRequestIDRouter()
	a := serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Header().Get(RequestIDHeader)
	b := serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Header().Get(RequestIDHeader)
	assert.NotEqual(t, a, b)
}

// ---------------------------------------------------------------------------
// LoggerMiddleware
// ---------------------------------------------------------------------------

func TestLoggerMiddleware_PassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggerMiddleware())
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/fail?x=1", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

// ---------------------------------------------------------------------------
// TokenAuthMiddleware
// ---------------------------------------------------------------------------

func TestTokenAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"valid", "s3cret", "Bearer s3cret", http.StatusOK},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"basic scheme", "s3cret", "Basic czNjcmV0", http.StatusUnauthorized},
		{"no token configured", "", "Bearer anything", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/", TokenAuthMiddleware(tt.token), func(c *gin.Context) {
				assert.True(t, c.GetBool(AuthenticatedKey))
				c.Status(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, serve(r, req).Code)
		})
	}
}

// ---------------------------------------------------------------------------
// SecurityHeadersMiddleware
// ---------------------------------------------------------------------------

func TestSecurityHeadersMiddleware_API(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(APISecurityHeadersConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	h := serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Header()
	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "default-src 'none'")
}

func TestSecurityHeadersMiddleware_NoHSTS(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(SecurityHeadersConfig{}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	h := serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Header()
	assert.Empty(t, h.Get("Strict-Transport-Security"))
	assert.Empty(t, h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
}
