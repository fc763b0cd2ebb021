// Package metrics collects and exposes Prometheus metrics for the
// credential manager.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records the manager's counters.
type Collector struct {
	refreshSuccess prometheus.Counter
	refreshFail    prometheus.Counter
	confirmedBans  prometheus.Counter
	notifications  *prometheus.CounterVec
	inspected      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warpsurge_refresh_success_total",
			Help: "Total successful token refreshes",
		}),
		refreshFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warpsurge_refresh_fail_total",
			Help: "Total failed token refreshes",
		}),
		confirmedBans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warpsurge_confirmed_bans_total",
			Help: "Total confirmed account bans",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warpsurge_notifications_total",
			Help: "Notifications appended, by type",
		}, []string{"type"}),
		inspected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warpsurge_inspected_responses_total",
			Help: "Intercepted responses inspected, by endpoint class",
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		c.refreshSuccess,
		c.refreshFail,
		c.confirmedBans,
		c.notifications,
		c.inspected,
	)

	return c
}

func (c *Collector) RecordRefreshSuccess() { c.refreshSuccess.Inc() }

func (c *Collector) RecordRefreshFailure() { c.refreshFail.Inc() }

func (c *Collector) RecordConfirmedBan() { c.confirmedBans.Inc() }

func (c *Collector) RecordNotification(notificationType string) {
	c.notifications.WithLabelValues(notificationType).Inc()
}

func (c *Collector) RecordInspected(endpoint string) {
	c.inspected.WithLabelValues(endpoint).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
