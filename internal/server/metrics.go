package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isoline_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "isoline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Contouring metrics
	contourRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isoline_contour_requests_total",
			Help: "Total number of contour requests",
		},
		[]string{"type", "status"}, // type: http, websocket
	)

	contourProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "isoline_contour_processing_duration_seconds",
			Help:    "Contour tracing duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"type"},
	)

	contourPolylines = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "isoline_contour_polylines",
			Help:    "Number of polylines produced per request",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
		[]string{"type"},
	)

	contourRasterRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isoline_contour_rows_total",
			Help: "Total number of raster rows fed to the tracer",
		},
		[]string{"type"},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isoline_rate_limit_hits_total",
			Help: "Total number of rejected requests by limit",
		},
		[]string{"scope"},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "isoline_upload_size_bytes",
			Help:    "Size of uploaded rasters in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "isoline_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isoline_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
