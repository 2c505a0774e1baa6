package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEndpoint(t *testing.T) {
	env := testServer(t)
	env.createExperiment(t, tokenFor(t, userU), "E1")
	env.do(t, http.MethodGet, "/api/v1/health", "", nil)

	w := env.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"cdl_http_requests_total",
		`route="/api/v1/health"`,
		"cdl_experiments_created_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_DomainCounters(t *testing.T) {
	env := testServer(t)
	staff := tokenFor(t, staffS)
	e := env.createExperiment(t, tokenFor(t, userU), "E1")
	env.do(t, http.MethodPatch, "/api/v1/experiments/"+e.ExperimentID, staff, map[string]any{"status": "RUNNING"})
	env.recordResult(t, e.ExperimentID, 5)

	m := env.srv.metrics
	if got := testutil.ToFloat64(m.ExperimentsCreated); got != 1 {
		t.Errorf("experiments created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StatusTransitions.WithLabelValues("IN_QUEUE", "RUNNING")); got != 1 {
		t.Errorf("IN_QUEUE->RUNNING transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ResultsRecorded); got != 1 {
		t.Errorf("results recorded = %v, want 1", got)
	}
}
