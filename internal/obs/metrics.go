package obs

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	appInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "competeiq",
			Subsystem: "app",
			Name:      "info",
			Help:      "Static app info for deployment verification.",
		},
		[]string{"service", "version"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "competeiq",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "route", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "competeiq",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	workerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "competeiq",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total worker jobs processed.",
		},
		[]string{"worker", "result"},
	)
	workerJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "competeiq",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Worker job duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160, 320},
		},
		[]string{"worker"},
	)

	analysisStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "competeiq",
			Subsystem: "analysis",
			Name:      "step_duration_seconds",
			Help:      "Duration of each analysis step.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"step", "result"},
	)

	llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "competeiq",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Latency of LLM provider calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		appInfo,
		httpRequestsTotal, httpRequestDuration,
		workerJobsTotal, workerJobDuration,
		analysisStepDuration, llmCallDuration,
	)
}

func SetAppInfo(service string) {
	ver := strings.TrimSpace(os.Getenv("APP_VERSION"))
	if ver == "" {
		ver = "dev"
	}
	appInfo.WithLabelValues(service, ver).Set(1)
}

// RecordHTTP records one request. route should be the router pattern, not
// the raw path.
func RecordHTTP(method, route, code string, start time.Time) {
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}

func RecordWorkerJob(worker string, start time.Time, err error) {
	workerJobsTotal.WithLabelValues(worker, result(err)).Inc()
	workerJobDuration.WithLabelValues(worker).Observe(time.Since(start).Seconds())
}

func RecordAnalysisStep(step string, start time.Time, err error) {
	analysisStepDuration.WithLabelValues(step, result(err)).Observe(time.Since(start).Seconds())
}

func RecordLLMCall(endpoint string, start time.Time, err error) {
	llmCallDuration.WithLabelValues(endpoint, result(err)).Observe(time.Since(start).Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
