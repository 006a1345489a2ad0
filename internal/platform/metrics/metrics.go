// Package metrics registers the control plane's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "saas"

var (
	// CouponRedemptions counts redemption attempts by outcome (redeemed, invalid, error).
	CouponRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "coupon_redemptions_total",
		Help:      "Coupon redemption attempts by outcome.",
	}, []string{"outcome"})

	// CouponsExpired counts coupons marked expired by batch expiry.
	CouponsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "coupons_expired_total",
		Help:      "Coupons marked expired by batch expiry.",
	})

	// Recalculations counts plan recalculations by result (changed, unchanged, error).
	Recalculations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "plan_recalculations_total",
		Help:      "Organization plan recalculations by result.",
	}, []string{"result"})

	// AuthorizationDenials counts gate denials by required role.
	AuthorizationDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "authz",
		Name:      "denials_total",
		Help:      "Authorization gate denials by required role.",
	}, []string{"required_role"})

	// HTTPRequests counts API requests by route template, method, and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method, and status code.",
	}, []string{"route", "method", "status"})

	// HTTPDuration tracks API request latency by route template.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// NotificationFailures counts notification deliveries that failed, by kind.
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "failures_total",
		Help:      "Failed notification deliveries by kind.",
	}, []string{"kind"})

	// SweepRemoved counts rows removed by the worker's sweeps, by table.
	SweepRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "sweep_removed_total",
		Help:      "Rows removed by scheduled sweeps.",
	}, []string{"table"})
)
