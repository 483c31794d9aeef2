package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func TestMetricsServedOverHTTP(t *testing.T) {
	RoutingDecisions.WithLabelValues("local").Inc()
	SubtaskAssignments.WithLabelValues("single").Inc()
	FallbackSelections.Inc()
	CycleRepairs.Inc()
	ActiveJobs.Set(2)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	for _, name := range []string{
		"taskgate_routing_decisions_total",
		"taskgate_subtask_assignments_total",
		"taskgate_fallback_selections_total",
		"taskgate_cycle_repairs_total",
		"taskgate_active_jobs",
	} {
		require.Contains(t, body, name)
	}
	require.Contains(t, body, `provider="local"`)
}
