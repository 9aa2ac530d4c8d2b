package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Routing metrics
	routingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raiden_routing_requests_total",
		Help: "Total number of route selection attempts by outcome",
	}, []string{"outcome"})

	routesResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raiden_routes_resolved_total",
		Help: "Total number of peer-supplied routes resolved for mediation",
	})

	// Path-finding service metrics
	pfsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raiden_pfs_requests_total",
		Help: "Total number of path-finding service requests",
	}, []string{"endpoint", "status"})

	pfsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "raiden_pfs_request_duration_seconds",
		Help:    "Duration of path-finding service requests",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"endpoint"})

	// State gauges
	channelsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "raiden_channels",
		Help: "Current number of known channels per token network",
	}, []string{"token_network"})

	pendingFeedbackGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "raiden_pending_feedback_reports",
		Help: "Route feedback reports waiting to be delivered to the PFS",
	})

	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raiden_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "raiden_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
