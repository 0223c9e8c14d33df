// Package metrics exposes attempt engine counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	attemptsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_attempts_started_total",
		Help: "Attempts created, by whether the call resumed an existing attempt.",
	}, []string{"resumed"})

	attemptsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_attempts_finalized_total",
		Help: "Attempts reaching a terminal state.",
	}, []string{"status", "result"})

	answersRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_answers_recorded_total",
		Help: "Answers persisted, by source (submit or expiry) and correctness.",
	}, []string{"source", "correct"})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_operation_errors_total",
		Help: "Failed engine operations by operation and error kind.",
	}, []string{"operation", "kind"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quiz_operation_duration_seconds",
		Help:    "Engine operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	attemptsInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quiz_sweeper_in_progress_attempts",
		Help: "In-progress attempts seen by the last expiry sweep.",
	})
)

// Recorder is the engine's view of metrics. Prom writes to the process registry.
type Recorder interface {
	AttemptStarted(resumed bool)
	AttemptFinalized(status, result string)
	AnswerRecorded(source string, correct bool)
	OperationDone(op string, started time.Time, errKind string)
	InProgress(n int)
}

type Prom struct{}

func (Prom) AttemptStarted(resumed bool) {
	attemptsStarted.WithLabelValues(boolLabel(resumed)).Inc()
}

func (Prom) AttemptFinalized(status, result string) {
	attemptsFinalized.WithLabelValues(status, result).Inc()
}

func (Prom) AnswerRecorded(source string, correct bool) {
	answersRecorded.WithLabelValues(source, boolLabel(correct)).Inc()
}

func (Prom) OperationDone(op string, started time.Time, errKind string) {
	operationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if errKind != "" {
		operationErrors.WithLabelValues(op, errKind).Inc()
	}
}

func (Prom) InProgress(n int) { attemptsInProgress.Set(float64(n)) }

type Nop struct{}

func (Nop) AttemptStarted(bool) {}
func (Nop) AttemptFinalized(string, string) {}
func (Nop) AnswerRecorded(string, bool) {}
func (Nop) OperationDone(string, time.Time, string) {}
func (Nop) InProgress(int) {}

func Handler() http.Handler { return promhttp.Handler() }

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
