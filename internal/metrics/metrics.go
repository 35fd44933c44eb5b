// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions counts form submissions by endpoint and outcome
	// (accepted, already_subscribed, honeypot, validation_error,
	// rate_limited, upstream_error, partial).
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forms_submissions_total",
		Help: "Form submissions by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// WebhookEvents counts inbound CMS webhook deliveries by result.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forms_webhook_events_total",
		Help: "CMS webhook deliveries by result (ok, unauthorized, error).",
	}, []string{"result"})

	// UpstreamDuration tracks vendor API call latency.
	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forms_upstream_duration_seconds",
		Help:    "Latency of content-store and email vendor calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"vendor", "op"})
)

// ObserveUpstream records one vendor call's duration. Meant for defer:
//
//	defer metrics.ObserveUpstream("storyblok", "create_record", time.Now())
func ObserveUpstream(vendor, op string, start time.Time) {
	UpstreamDuration.WithLabelValues(vendor, op).Observe(time.Since(start).Seconds())
}
