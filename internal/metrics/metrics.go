// Package metrics holds the Prometheus collectors for reconciliation passes
// and for the store's HTTP front.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/reconcile"
)

const namespace = "gridsync"

// Collectors is a private registry plus the collectors registered in it.
// Each Collectors is independent, so tests can create as many as they like.
type Collectors struct {
	registry *prometheus.Registry

	passes        *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	rowOutcomes   *prometheus.CounterVec
	violations    prometheus.Counter
	writeFailures prometheus.Counter

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	storeRows      *prometheus.CounterVec
}

// New creates and registers every collector. When withRuntime is set the
// Go runtime and process collectors are registered too.
func New(withRuntime bool) *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Reconciliation passes by intent and result.",
		}, []string{"intent", "result"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"intent"}),
		rowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pass_rows_total",
			Help:      "Rows reconciled by outcome.",
		}, []string{"outcome"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_violations_total",
			Help:      "Result queues that did not reconcile with the rows sent.",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_back_failures_total",
			Help:      "Grid rows whose write-back failed.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"route"}),
		storeRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rows_total",
			Help:      "Rows applied by the store by target and outcome.",
		}, []string{"target", "outcome"}),
	}

	c.registry.MustRegister(
		c.passes, c.passDuration, c.rowOutcomes, c.violations, c.writeFailures,
		c.requests, c.requestLatency, c.storeRows,
	)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// Registry returns the registry the collectors live in.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// PassResult classifies a pass outcome for the passes_total label.
func PassResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case ir.IsPartialFailure(err):
		return "partial"
	case ir.IsPassInProgress(err):
		return "busy"
	default:
		if code := ir.CodeOf(err); code != "" {
			return string(code)
		}
		return "error"
	}
}

// ObservePass implements reconcile.Observer.
func (c *Collectors) ObservePass(r *reconcile.Report, err error, elapsed time.Duration) {
	intent := string(r.Intent)
	c.passes.WithLabelValues(intent, PassResult(err)).Inc()
	c.passDuration.WithLabelValues(intent).Observe(elapsed.Seconds())

	res := r.Result
	c.rowOutcomes.WithLabelValues(string(ir.LabelInsert)).Add(float64(res.Inserted))
	c.rowOutcomes.WithLabelValues(string(ir.LabelUpdate)).Add(float64(res.Updated))
	c.rowOutcomes.WithLabelValues(string(ir.LabelDelete)).Add(float64(res.Deleted))
	c.rowOutcomes.WithLabelValues(string(ir.LabelDuplicate)).Add(float64(res.Duplicated))
	c.rowOutcomes.WithLabelValues("failed").Add(float64(len(res.Errors)))

	c.violations.Add(float64(len(r.Violations)))
	c.writeFailures.Add(float64(len(r.WriteBack.Failed)))
}

// ObserveRequest records one HTTP request.
func (c *Collectors) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	c.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	c.requestLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveBulk records the outcomes of one bulk call applied by the store.
func (c *Collectors) ObserveBulk(target string, resp ir.BulkResponse) {
	for _, o := range resp.Data {
		c.storeRows.WithLabelValues(target, string(o.Operation)).Inc()
	}
	if n := len(resp.Errors); n > 0 {
		c.storeRows.WithLabelValues(target, "error").Add(float64(n))
	}
}
