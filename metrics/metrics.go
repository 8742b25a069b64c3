package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-selenese/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "selenese"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_cases_total",
		Help:      "Count of finished test case runs",
	}, []string{
		"suite",
		"capabilities",
		"result",
		"cause",
	})

	testCaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_case_duration_seconds",
		Help:      "Duration of test case runs",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{
		"suite",
		"capabilities",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of orchestrated runs",
	}, []string{
		"suite",
		"run_id",
		"result",
	})

	runTestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_total",
		Help:      "Total number of test case runs per orchestrated run",
	}, []string{
		"suite",
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of orchestrated runs",
	}, []string{
		"suite",
		"run_id",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "sessions_active",
		Help:      "Number of open browser sessions",
	})
)

// Collectors returns every collector of this package, for registration in
// a registry other than the default one.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		errorsTotal,
		testCasesTotal,
		testCaseDuration,
		runResults,
		runTestTotal,
		runDuration,
		sessionsActive,
	}
}

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordTestCase records one finished test case run.
func RecordTestCase(suite string, caps string, result types.TestStatus, cause types.Cause, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordTestCase - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "test_cases_total",
			"suite", suite,
			"capabilities", caps,
			"result", result,
			"cause", cause)
	}
	testCasesTotal.WithLabelValues(suite, caps, string(result), string(cause)).Inc()
	testCaseDuration.WithLabelValues(suite, caps).Observe(duration.Seconds())
}

func RecordRun(
	suite string,
	runID string,
	result types.TestStatus,
	passed int,
	failed int,
	errored int,
	duration time.Duration,
) {
	runResults.WithLabelValues(suite, runID, string(result)).Set(1)
	runTestTotal.WithLabelValues(suite, runID, string(types.TestStatusPass)).Add(float64(passed))
	runTestTotal.WithLabelValues(suite, runID, string(types.TestStatusFail)).Add(float64(failed))
	runTestTotal.WithLabelValues(suite, runID, string(types.TestStatusError)).Add(float64(errored))
	runDuration.WithLabelValues(suite, runID).Set(duration.Seconds())
}

func SessionOpened() {
	sessionsActive.Inc()
}

func SessionClosed() {
	sessionsActive.Dec()
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
