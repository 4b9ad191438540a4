package metrics

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login results
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// Metrics holds the application's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	usersProvisioned   prometheus.Counter
	provisioningErrors prometheus.Counter
	logins             *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		usersProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "users_provisioned_total",
			Help:      "Local user records created on first login.",
		}),
		provisioningErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "provisioning_errors_total",
			Help:      "User directory failures during the provisioning check.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "logins_total",
			Help:      "Completed login callbacks by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.usersProvisioned,
		m.provisioningErrors,
		m.logins,
		m.httpRequests,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) UserProvisioned() {
	if m != nil {
		m.usersProvisioned.Inc()
	}
}

func (m *Metrics) ProvisioningFailed() {
	if m != nil {
		m.provisioningErrors.Inc()
	}
}

func (m *Metrics) Login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

// Middleware counts requests by matched route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
