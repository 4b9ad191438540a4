package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.UserProvisioned()
	m.UserProvisioned()
	m.ProvisioningFailed()
	m.Login(LoginSuccess)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.usersProvisioned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.provisioningErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues(LoginSuccess)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.logins.WithLabelValues(LoginFailure)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.UserProvisioned()
		m.ProvisioningFailed()
		m.Login(LoginFailure)
	})
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/things/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "portal_http_requests_total")
}
