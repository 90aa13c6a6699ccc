package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "referr"

// Result labels.
const (
	ResultSuccess     = "success"
	ResultInvalidCode = "invalid_code"
	ResultExpired     = "expired"
	ResultError       = "error"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	otpRequests       *prometheus.CounterVec
	otpVerifications  *prometheus.CounterVec
	referralEvents    *prometheus.CounterVec
	referralEarnings  prometheus.Counter
	otpSwept          prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpRequestLength *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		otpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "otp_requests_total",
			Help:      "Passcode requests by result",
		}, []string{"result"}),

		otpVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "otp_verifications_total",
			Help:      "Passcode verification attempts by result",
		}, []string{"result"}),

		referralEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "events_total",
			Help:      "Attribution events credited, by kind",
		}, []string{"event"}),

		referralEarnings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "earnings_total",
			Help:      "Reward units credited to referrers",
		}),

		otpSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "otp_swept_total",
			Help:      "Expired passcode challenges removed by the sweeper",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		httpRequestLength: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) OTPRequested(result string) {
	if m == nil {
		return
	}
	m.otpRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) OTPVerified(result string) {
	if m == nil {
		return
	}
	m.otpVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ReferralEvent(event string) {
	if m == nil {
		return
	}
	m.referralEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ReferralEarned(amount float64) {
	if m == nil {
		return
	}
	m.referralEarnings.Add(amount)
}

func (m *Metrics) OTPSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.otpSwept.Add(float64(n))
}

func (m *Metrics) HTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpRequestLength.WithLabelValues(method, route).Observe(seconds)
}
