// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rentals"

// Metrics holds every instrument on a dedicated registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ContractsCreated      prometheus.Counter
	InstallmentsGenerated prometheus.Counter
	PaymentsPaid          *prometheus.CounterVec
	PaymentsDeleted       prometheus.Counter
	LateChargesCents      prometheus.Counter
}

// New creates the instruments and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ContractsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contracts_created_total",
			Help:      "Contracts created",
		}),
		InstallmentsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installments_generated_total",
			Help:      "Installments generated from contracts",
		}),
		PaymentsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_paid_total",
			Help:      "Installments marked as paid, by lateness",
		}, []string{"late"}),
		PaymentsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_deleted_total",
			Help:      "Installments archived and removed",
		}),
		LateChargesCents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_charges_cents_total",
			Help:      "Late fees plus interest collected, in cents",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestCount,
		m.RequestDuration,
		m.ContractsCreated,
		m.InstallmentsGenerated,
		m.PaymentsPaid,
		m.PaymentsDeleted,
		m.LateChargesCents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ContractCreated counts a contract and its installments.
func (m *Metrics) ContractCreated(installments int) {
	if m == nil {
		return
	}
	m.ContractsCreated.Inc()
	m.InstallmentsGenerated.Add(float64(installments))
}

// Installments counts installments generated outside contract creation.
func (m *Metrics) Installments(n int) {
	if m == nil {
		return
	}
	m.InstallmentsGenerated.Add(float64(n))
}

// PaymentPaid counts a paid installment and its late charges.
func (m *Metrics) PaymentPaid(lateCharges int64) {
	if m == nil {
		return
	}
	m.PaymentsPaid.WithLabelValues(strconv.FormatBool(lateCharges > 0)).Inc()
	if lateCharges > 0 {
		m.LateChargesCents.Add(float64(lateCharges))
	}
}

// PaymentDeleted counts an archived installment.
func (m *Metrics) PaymentDeleted(n int) {
	if m == nil {
		return
	}
	m.PaymentsDeleted.Add(float64(n))
}

// Middleware records request count and latency labelled by chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
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
		m.RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
