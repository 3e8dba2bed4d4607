// Package metrics exposes auth outcomes to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/layer-3/assetgate/ports"
)

// Collector is the Prometheus implementation of ports.MetricsCollector.
type Collector struct {
	logins         *prometheus.CounterVec
	tokensRejected *prometheus.CounterVec
	webhooks       *prometheus.CounterVec
}

var _ ports.MetricsCollector = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assetgate_login_attempts_total",
			Help: "Login attempts by method and outcome",
		}, []string{"method", "outcome"}),
		tokensRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assetgate_tokens_rejected_total",
			Help: "Rejected bearer tokens by diagnostic code",
		}, []string{"code"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assetgate_kyc_webhooks_total",
			Help: "KYC webhooks by vendor and resulting status",
		}, []string{"vendor", "status"}),
	}

	reg.MustRegister(c.logins, c.tokensRejected, c.webhooks)

	return c
}

func (c *Collector) RecordLogin(method, outcome string) {
	c.logins.WithLabelValues(method, outcome).Inc()
}

func (c *Collector) RecordTokenRejected(code string) {
	c.tokensRejected.WithLabelValues(code).Inc()
}

func (c *Collector) RecordWebhook(vendor, status string) {
	c.webhooks.WithLabelValues(vendor, status).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
