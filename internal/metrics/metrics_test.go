package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/grid"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/reconcile"
)

func TestPassResult(t *testing.T) {
	assert.Equal(t, "ok", PassResult(nil))
	assert.Equal(t, "partial", PassResult(ir.NewPartialFailure(1, 2)))
	assert.Equal(t, "busy", PassResult(ir.ErrPassInProgress))
	assert.Equal(t, "ROWS_FAILED", PassResult(ir.NewRowsFailed(2)))
	assert.Equal(t, "VALIDATION_ERROR", PassResult(ir.NewValidationError(nil)))
	assert.Equal(t, "error", PassResult(errors.New("boom")))
}

func TestObservePass(t *testing.T) {
	c := New(false)

	report := &reconcile.Report{
		Intent: ir.IntentUpsert,
		Result: ir.ReconciliationResult{
			Inserted:   2,
			Updated:    1,
			Duplicated: 1,
			Errors:     []ir.RowError{{RowPosition: 3, Message: "x"}},
		},
		WriteBack: grid.WriteReport{Written: 3},
	}
	c.ObservePass(report, ir.NewPartialFailure(1, 5), 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.passes.WithLabelValues("upsert", "partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rowOutcomes.WithLabelValues("insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rowOutcomes.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rowOutcomes.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.violations))
}

func TestObserveBulk(t *testing.T) {
	c := New(false)

	c.ObserveBulk("ports", ir.BulkResponse{
		Data:   []ir.RemoteOutcome{{ID: 1, Operation: ir.LabelInsert}, {ID: 2, Operation: ir.LabelInsert}},
		Errors: []ir.StoreRowError{{Error: "bad"}},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.storeRows.WithLabelValues("ports", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeRows.WithLabelValues("ports", "error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New(true)
	c.ObserveRequest("/healthz", http.MethodGet, http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `gridsync_server_requests_total{code="200",method="GET",route="/healthz"} 1`))
	assert.Contains(t, body, "go_goroutines")
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := New(false)
	b := New(false)
	a.ObserveRequest("/x", http.MethodGet, 200, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.requests.WithLabelValues("/x", "GET", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.requests.WithLabelValues("/x", "GET", "200")))
}
