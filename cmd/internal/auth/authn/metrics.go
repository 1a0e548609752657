package authn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"credd/cmd/internal/autherr"
)

// Operation labels.
const (
	opRegister     = "register"
	opLogin        = "login"
	opChangeSecret = "change_secret"
	opProfile      = "update_profile"
	opMe           = "me"
)

// Metrics holds the authentication counters.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Rehashes prometheus.Counter
}

// NewMetrics creates and registers the authentication metrics.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credd_auth_attempts_total",
				Help: "Authentication operations by operation and outcome code",
			},
			[]string{"op", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credd_auth_duration_seconds",
				Help:    "Authentication operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		Rehashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credd_auth_rehash_total",
			Help: "Stored digests upgraded to the current hashing parameters on login",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Attempts, m.Duration, m.Rehashes)
	}
	return m
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = autherr.Code(err)
	}
	m.Attempts.WithLabelValues(op, outcome).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
