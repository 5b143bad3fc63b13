package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// GatewayRequestTotal counts outbound gateway request outcomes.
	GatewayRequestTotal *prometheus.CounterVec
	// WebhookTotal counts inbound processor webhook outcomes.
	WebhookTotal *prometheus.CounterVec
	// StatusTransitionTotal counts applied and rejected transaction transitions.
	StatusTransitionTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific
// Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		GatewayRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_request_total",
			Help:      "Count of outbound payment gateway requests by action and result.",
		}, []string{"action", "result"})
		WebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_total",
			Help:      "Count of processed transaction status webhooks by outcome.",
		}, []string{"result"})
		StatusTransitionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transition_total",
			Help:      "Count of transaction state transitions by transition and result.",
		}, []string{"transition", "result"})

		mustRegisterCollector(reg, GatewayRequestTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				GatewayRequestTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookTotal = v
			}
		})
		mustRegisterCollector(reg, StatusTransitionTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StatusTransitionTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
