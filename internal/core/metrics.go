package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes recorded per image kind
const (
	OutcomeOK         = "ok"
	OutcomeNotFound   = "not_found"
	OutcomeWriteError = "write_error"
)

var (
	imageFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hamsternav_image_fetch_total",
		Help: "Image fetch attempts by kind and outcome",
	}, []string{"kind", "outcome"})

	imageFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hamsternav_image_fetch_duration_seconds",
		Help:    "Time spent resolving one image kind for a website",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
	}, []string{"kind"})
)

func recordFetch(kind, outcome string, start time.Time) {
	imageFetchTotal.WithLabelValues(kind, outcome).Inc()
	imageFetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

var fetchQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "hamsternav_fetch_queue_dropped_total",
	Help: "Websites not queued for an image fetch because the queue was full",
})
