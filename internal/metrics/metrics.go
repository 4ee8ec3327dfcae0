package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservoirviz_cache_requests_total",
			Help: "Memoized calls by function and result (hit, shared, miss, error)",
		},
		[]string{"function", "result"},
	)

	SurfaceLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservoirviz_surface_loads_total",
			Help: "Surface files decoded, by status",
		},
		[]string{"status"},
	)

	LayerRenderLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reservoirviz_layer_render_seconds",
			Help:    "Time to build a map layer from a surface, excluding cache hits",
			Buckets: prometheus.DefBuckets,
		},
	)

	FigureBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservoirviz_figure_builds_total",
			Help: "Figures built, by kind",
		},
		[]string{"kind"},
	)

	RowsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservoirviz_rows_ingested_total",
			Help: "Rows imported into the store, by table",
		},
		[]string{"table"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reservoirviz_fetch_latency_seconds",
			Help:    "Remote fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme", "status"},
	)
)
