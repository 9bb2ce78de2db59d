package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolutions counts stream resolution attempts per provider and outcome.
// The "outcome" label is one of: ok, timeout, error, rejected.
var Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gamedvr_resolutions_total",
	Help: "Stream resolution attempts by provider and outcome",
}, []string{"provider", "outcome"})

// ProxyRequests counts rewrite proxy requests per endpoint kind and status class.
var ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gamedvr_proxy_requests_total",
	Help: "Rewrite proxy requests by kind and status",
}, []string{"kind", "status"})

// ProxyBytes tracks bytes streamed through the segment endpoint.
var ProxyBytes = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gamedvr_proxy_segment_bytes_total",
	Help: "Total media segment bytes proxied to clients",
})

// CaptureAttempts counts supervisor capture attempts per league and outcome.
// The "outcome" label is one of: ok, no_output, error.
var CaptureAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gamedvr_capture_attempts_total",
	Help: "Capture attempts by league and outcome",
}, []string{"league", "outcome"})

// ActiveRecordings tracks how many supervisor loops are currently running.
var ActiveRecordings = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "gamedvr_active_recordings",
	Help: "Number of recordings currently being supervised",
})

// Remuxes counts duration-repair remux operations on finished captures.
var Remuxes = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gamedvr_remuxes_total",
	Help: "Number of capture files remuxed to repair runaway durations",
})
