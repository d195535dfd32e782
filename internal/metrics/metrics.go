package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	extractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Name:      "extractions_total",
			Help:      "Total extraction attempts by document class and result",
		},
		[]string{"class", "result"},
	)

	extractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docextract",
			Name:      "extraction_duration_seconds",
			Help:      "Duration of document extraction by class",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"class"},
	)

	pagesRendered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Name:      "pages_rendered_total",
			Help:      "Total document pages rendered to images",
		},
	)

	summarizations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docextract",
			Name:      "summarization_ratio",
			Help:      "Output to input character ratio of summarization runs",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
		},
	)

	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Name:      "provider_requests_total",
			Help:      "Total provider requests by provider, model and result",
		},
		[]string{"provider", "model", "result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docextract",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider requests by provider and model",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Name:      "jobs_processed_total",
			Help:      "Total jobs processed by result (success, dlq, cancelled)",
		},
		[]string{"result"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Name:      "retries_total",
			Help:      "Total number of job retries",
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docextract",
			Name:      "queue_depth",
			Help:      "Queue depth gauges for stream, delayed and dlq",
		},
		[]string{"type"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(extractions, extractionDuration, pagesRendered, summarizations, providerReqs, providerLatency, jobsProcessed, retriesTotal, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func RecordExtraction(class, result string) { extractions.WithLabelValues(class, result).Inc() }

func ObserveExtractionDuration(class string, dur time.Duration) {
	extractionDuration.WithLabelValues(class).Observe(dur.Seconds())
}

func RecordPageRendered() { pagesRendered.Inc() }

func RecordSummarization(inChars, outChars int) {
	if inChars > 0 {
		summarizations.Observe(float64(outChars) / float64(inChars))
	}
}

func ObserveProvider(provider, model, result string, dur time.Duration) {
	providerReqs.WithLabelValues(provider, model, result).Inc()
	providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

// IncRefusal tracks content refusal events by provider and model
func IncRefusal(provider, model string) {
	providerReqs.WithLabelValues(provider, model, "content_refused").Inc()
}

func IncProcessed(result string) { jobsProcessed.WithLabelValues(result).Inc() }
func IncRetry()                  { retriesTotal.Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
