package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP and lifecycle metrics shared across modules.
// All methods are safe on a nil receiver so services can run without metrics.
type Metrics struct {
	HTTPLatency        *prometheus.HistogramVec
	InstrumentsCreated *prometheus.CounterVec
	PurchasesConfirmed *prometheus.CounterVec
	PurchasesCancelled prometheus.Counter
	ClaimsRaised       prometheus.Counter
	ClaimsDecided      *prometheus.CounterVec
	DocumentsUploaded  prometheus.Counter
	NotificationsSent  prometheus.Counter
	RateLimited        *prometheus.CounterVec
}

// New creates and registers all metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coverline_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
		InstrumentsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverline_instruments_created_total",
			Help: "Total number of priced instruments created, by kind",
		}, []string{"kind"}),
		PurchasesConfirmed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverline_purchases_confirmed_total",
			Help: "Total number of instruments confirmed into purchases, by kind",
		}, []string{"kind"}),
		PurchasesCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "coverline_purchases_cancelled_total",
			Help: "Total number of purchases cancelled directly or by cascade",
		}),
		ClaimsRaised: f.NewCounter(prometheus.CounterOpts{
			Name: "coverline_claims_raised_total",
			Help: "Total number of claims raised",
		}),
		ClaimsDecided: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverline_claims_decided_total",
			Help: "Total number of claim decisions, by resulting status",
		}, []string{"status"}),
		DocumentsUploaded: f.NewCounter(prometheus.CounterOpts{
			Name: "coverline_documents_uploaded_total",
			Help: "Total number of claim documents uploaded",
		}),
		NotificationsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "coverline_notifications_sent_total",
			Help: "Total number of notifications persisted",
		}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverline_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter, by class",
		}, []string{"class"}),
	}
}

func (m *Metrics) ObserveHTTPLatency(method, route string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) IncInstrumentCreated(kind string) {
	if m == nil {
		return
	}
	m.InstrumentsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncPurchaseConfirmed(kind string) {
	if m == nil {
		return
	}
	m.PurchasesConfirmed.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncPurchaseCancelled() {
	if m == nil {
		return
	}
	m.PurchasesCancelled.Inc()
}

func (m *Metrics) IncClaimRaised() {
	if m == nil {
		return
	}
	m.ClaimsRaised.Inc()
}

func (m *Metrics) IncClaimDecided(status string) {
	if m == nil {
		return
	}
	m.ClaimsDecided.WithLabelValues(status).Inc()
}

func (m *Metrics) IncDocumentUploaded() {
	if m == nil {
		return
	}
	m.DocumentsUploaded.Inc()
}

func (m *Metrics) IncNotificationSent() {
	if m == nil {
		return
	}
	m.NotificationsSent.Inc()
}

func (m *Metrics) IncRateLimited(class string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(class).Inc()
}
