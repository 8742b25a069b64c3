package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("browser unreachable"),
		},
		{
			name: "error with special chars",
			err:  errors.New("dial tcp 127.0.0.1:4444: connect refused"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("no   such session"),
		},
	}

	validLabelRegex := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			assert.Regexp(t, validLabelRegex, result)
		})
	}
}

func TestRecordError(t *testing.T) {
	before := value(t, errorsTotal.WithLabelValues("test_error"))
	RecordError("test_error")
	assert.Equal(t, before+1, value(t, errorsTotal.WithLabelValues("test_error")))
}

func TestRecordErrorDetails(t *testing.T) {
	RecordErrorDetails("dial", nil)
	before := value(t, errorsTotal.WithLabelValues("dial.boom"))
	RecordErrorDetails("dial", errors.New("boom"))
	assert.Equal(t, before+1, value(t, errorsTotal.WithLabelValues("dial.boom")))
}

func TestRecordTestCase(t *testing.T) {
	counter := testCasesTotal.WithLabelValues("suite", "Any browser", "fail", "assertion")
	before := value(t, counter)
	RecordTestCase("suite", "Any browser", types.TestStatusFail, types.CauseAssertion, time.Second)
	assert.Equal(t, before+1, value(t, counter))

	// unknown statuses are dropped
	RecordTestCase("suite", "Any browser", types.TestStatus("skip"), types.CauseNone, time.Second)
}

func TestRecordRun(t *testing.T) {
	RecordRun("suite", "run1", types.TestStatusFail, 2, 1, 1, 3*time.Second)
	assert.Equal(t, 2.0, value(t, runTestTotal.WithLabelValues("suite", "run1", "pass")))
	assert.Equal(t, 1.0, value(t, runTestTotal.WithLabelValues("suite", "run1", "error")))
	assert.Equal(t, 3.0, value(t, runDuration.WithLabelValues("suite", "run1")))
}

func TestSessionsActive(t *testing.T) {
	before := value(t, sessionsActive)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	assert.Equal(t, before+1, value(t, sessionsActive))
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %s", m.Desc())
	return 0
}

func TestCollectorsRegisterInFreshRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	for _, c := range Collectors() {
		require.NoError(t, registry.Register(c))
	}
	SessionOpened()
	defer SessionClosed()

	families, err := registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "selenese_sessions_active")
}
