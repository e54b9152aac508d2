// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_uploads_total",
		Help: "Upload attempts by result",
	}, []string{"result"})

	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_upload_bytes_total",
		Help: "Bytes written by successful uploads",
	})

	Streams = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_streams_total",
		Help: "Streams started by mode (full or partial)",
	}, []string{"mode"})

	StreamBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_stream_bytes_total",
		Help: "Body bytes written by streams",
	})

	RangeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_range_rejections_total",
		Help: "Rejected Range headers by reason",
	}, []string{"reason"})

	ProcessingJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_processing_jobs_total",
		Help: "Processing jobs by final status",
	}, []string{"status"})

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "video_processing_duration_seconds",
		Help:    "Wall time from claim to terminal status",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "video_processing_active_jobs",
		Help: "Jobs currently being processed",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "video_processing_queue_depth",
		Help: "Jobs waiting for a worker",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
