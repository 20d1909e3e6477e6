// Package metrics exposes the service counters scraped at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecognitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recognitions_total",
		Help: "The total number of word crops recognized",
	})

	RecognitionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recognition_seconds",
		Help:    "Duration of recognition forward passes",
		Buckets: prometheus.DefBuckets,
	})

	RecognitionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recognition_errors_total",
		Help: "Total number of failed recognition requests",
	}, []string{"reason"})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recognition_batch_size",
		Help:    "Distribution of crops per request",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	})

	PredictionLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recognition_prediction_length",
		Help:    "Distribution of decoded text lengths in runes",
		Buckets: []float64{0, 2, 4, 8, 12, 16, 24, 32},
	})

	ModelLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "model_loaded",
		Help: "Which model variant is currently serving (1 = loaded)",
	}, []string{"variant"})
)

// RecordRecognition accounts one completed forward pass over a batch.
func RecordRecognition(crops int, duration time.Duration) {
	RecognitionsTotal.Add(float64(crops))
	BatchSize.Observe(float64(crops))
	RecognitionSeconds.Observe(duration.Seconds())
}

// RecordError counts a failed request by its reason label.
func RecordError(reason string) {
	RecognitionErrors.WithLabelValues(reason).Inc()
}

// RecordPrediction accounts one decoded text length.
func RecordPrediction(runes int) {
	PredictionLength.Observe(float64(runes))
}

// SetModelLoaded marks the serving variant on the model gauge.
func SetModelLoaded(variant string) {
	ModelLoaded.WithLabelValues(variant).Set(1)
}
