package main

import (
	"time"

	"github.com/criyle/judgebox/capability"
	"github.com/criyle/judgebox/runner"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	metricsNamespace = "judgebox"

	// healthService is reported NOT_SERVING while a submission is pending
	healthService = "judgebox.Sandbox"
)

var (
	// 1ms -> 10s
	timeBuckets = []float64{
		0.001, 0.002, 0.005, 0.008, 0.010, 0.025, 0.050, 0.075, 0.1, 0.2,
		0.4, 0.6, 0.8, 1.0, 1.5, 2, 5, 10,
	}

	// 4k (1<<12) -> 4g (1<<32)
	memoryBucket = prometheus.ExponentialBuckets(1<<12, 2, 21)

	caseTimeHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "case_time_seconds",
		Help:      "Histogram for the running time of each test case",
		Buckets:   timeBuckets,
	}, []string{"status"})

	caseMemHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "case_memory_bytes",
		Help:      "Histogram for the peak memory of each test case",
		Buckets:   memoryBucket,
	}, []string{"status"})

	submissionTimeHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "submission_time_seconds",
		Help:      "Histogram for the time between accept and result of a submission",
		Buckets:   timeBuckets,
	})

	submissionCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "submissions_total",
		Help:      "Number of judged submissions",
	})

	rotationCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "loader_rotations_total",
		Help:      "Number of loader generation rotations",
	})

	generationGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "loader_generation",
		Help:      "Sequence number of the current loader generation",
	})

	busyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "busy",
		Help:      "1 while a submission is queued or running",
	})

	deniedCount = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "capability_denied_total",
		Help:      "Number of requests denied by the capability gate",
	}, func() float64 {
		if g := capability.Current(); g != nil {
			return float64(g.Denied())
		}
		return 0
	})
)

func init() {
	prometheus.MustRegister(
		caseTimeHist, caseMemHist,
		submissionTimeHist, submissionCount,
		rotationCount, generationGauge, busyGauge, deniedCount,
	)
}

func caseObserve(r runner.TestCaseResult) {
	status := r.Status.String()
	caseTimeHist.WithLabelValues(status).Observe(r.Time.Seconds())
	caseMemHist.WithLabelValues(status).Observe(float64(r.Memory))
}

// observer forwards orchestrator state to metrics and gRPC health
type observer struct {
	metrics bool
	health  *health.Server
}

func newObserver(metrics bool, hs *health.Server) *observer {
	if hs != nil {
		hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	}
	return &observer{metrics: metrics, health: hs}
}

func (o *observer) Rotated(generation uint64) {
	if o.metrics {
		rotationCount.Inc()
		generationGauge.Set(float64(generation))
	}
}

func (o *observer) Busy(busy bool) {
	if o.metrics {
		if busy {
			busyGauge.Set(1)
		} else {
			busyGauge.Set(0)
		}
	}
	if o.health != nil {
		st := healthpb.HealthCheckResponse_SERVING
		if busy {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		o.health.SetServingStatus(healthService, st)
	}
}

func (o *observer) Judged(_ runner.SubmissionResult, d time.Duration) {
	if o.metrics {
		submissionCount.Inc()
		submissionTimeHist.Observe(d.Seconds())
	}
}
