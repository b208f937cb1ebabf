/*
Package metrics exposes Prometheus collectors for the payroll server.

COLLECTORS:
  payroll_journal_entries_total{type}        accepted journal entries
  payroll_journal_rejections_total{reason}   duplicate keys and store failures
  payroll_payouts_total{employer,status}     settled / failed / skipped attempts
  payroll_payout_amount_total{employer}      money settled, employer currency
  payroll_payout_duration_seconds{status}    time per attempt, settlement included
  payroll_http_requests_total{method,route,code}
  payroll_http_request_duration_seconds{method,route}

Each Metrics owns its registry so tests and multiple servers in one
process never collide on registration.
*/
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/payroll"
)

type Metrics struct {
	registry *prometheus.Registry

	entries        *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	payouts        *prometheus.CounterVec
	payoutAmount   *prometheus.CounterVec
	payoutDuration *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

var _ payroll.PayoutObserver = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payroll",
			Name:      "journal_entries_total",
			Help:      "Journal entries appended, by transaction type.",
		}, []string{"type"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payroll",
			Name:      "journal_rejections_total",
			Help:      "Journal appends that were rejected.",
		}, []string{"reason"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payroll",
			Name:      "payouts_total",
			Help:      "Payout attempts by outcome.",
		}, []string{"employer", "status"}),
		payoutAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payroll",
			Name:      "payout_amount_total",
			Help:      "Amount settled, in the employer's currency.",
		}, []string{"employer"}),
		payoutDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payroll",
			Name:      "payout_duration_seconds",
			Help:      "Duration of one payout attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payroll",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payroll",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.entries, m.rejections, m.payouts, m.payoutAmount, m.payoutDuration,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePayout implements payroll.PayoutObserver.
func (m *Metrics) ObservePayout(employer payroll.EmployerID, res payroll.PayoutResult, elapsed time.Duration) {
	m.payouts.WithLabelValues(string(employer), string(res.Status)).Inc()
	m.payoutDuration.WithLabelValues(string(res.Status)).Observe(elapsed.Seconds())
	if res.Status == generic.RunSettled {
		amount, _ := res.Amount.Value.Float64()
		m.payoutAmount.WithLabelValues(string(employer)).Add(amount)
	}
}

// =============================================================================
// JOURNAL DECORATOR
// =============================================================================

// Ledger counts appends on the wrapped journal.
type Ledger struct {
	generic.Ledger
	m *Metrics
}

// WrapLedger returns next with append counting.
func (m *Metrics) WrapLedger(next generic.Ledger) *Ledger {
	return &Ledger{Ledger: next, m: m}
}

func (l *Ledger) Append(ctx context.Context, tx generic.Transaction) error {
	return l.AppendBatch(ctx, []generic.Transaction{tx})
}

func (l *Ledger) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	err := l.Ledger.AppendBatch(ctx, txs)
	switch {
	case errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		l.m.rejections.WithLabelValues("duplicate_key").Inc()
	case err != nil:
		l.m.rejections.WithLabelValues("store").Inc()
	default:
		for _, tx := range txs {
			l.m.entries.WithLabelValues(string(tx.Type)).Inc()
		}
	}
	return err
}

// =============================================================================
// HTTP MIDDLEWARE
// =============================================================================

// Middleware records request counts and latency by chi route pattern, so
// path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
