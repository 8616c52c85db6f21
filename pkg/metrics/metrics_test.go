package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue sums a counter family, optionally restricted to one label value
func counterValue(t *testing.T, name string, labelValue string) float64 {
	t.Helper()
	families, err := Registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelValue != "" && !hasLabelValue(metric, labelValue) {
				continue
			}
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func hasLabelValue(metric *dto.Metric, value string) bool {
	for _, label := range metric.GetLabel() {
		if label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestRecordStop(t *testing.T) {
	before := counterValue(t, "proctree_stops_total", "killed")
	RecordStop(StopOutcomeKilled)
	RecordStop(StopOutcomeKilled)
	RecordStop(StopOutcomeGraceful)

	assert.Equal(t, before+2, counterValue(t, "proctree_stops_total", "killed"))
}

func TestRecordExit_Classes(t *testing.T) {
	assert.Equal(t, "success", exitCodeClass(0))
	assert.Equal(t, "signaled", exitCodeClass(-1))
	assert.Equal(t, "failure", exitCodeClass(3))

	before := counterValue(t, "proctree_exits_total", "failure")
	RecordExit(7)
	assert.Equal(t, before+1, counterValue(t, "proctree_exits_total", "failure"))
}

func TestHandler_Exposition(t *testing.T) {
	RecordLaunch()
	RecordTaskFailure()
	RecordChildSkipped()

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(recorder.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "proctree_launches_total")
	assert.Contains(t, string(body), "proctree_task_failures_total")
	assert.Contains(t, string(body), "proctree_children_skipped_total")
}
