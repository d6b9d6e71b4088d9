package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge's prometheus collectors.
type Metrics struct {
	Polls          *prometheus.CounterVec
	PollDuration   prometheus.Histogram
	Probes         *prometheus.CounterVec
	Connected      prometheus.Gauge
	ErrorCount     prometheus.Gauge
	MapErrors      prometheus.Counter
	DeviceAddress  prometheus.Gauge
	LastSuccessful prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "renogy_dcc_polls_total",
			Help: "Poll cycles by outcome",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "renogy_dcc_poll_duration_seconds",
			Help:    "Duration of the read transaction of a poll cycle",
			Buckets: prometheus.DefBuckets,
		}),
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "renogy_dcc_discovery_probes_total",
			Help: "Address discovery probes by result",
		}, []string{"result"}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "renogy_dcc_connected",
			Help: "1 while the charge controller is considered reachable",
		}),
		ErrorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "renogy_dcc_consecutive_errors",
			Help: "Consecutive failed reads",
		}),
		MapErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renogy_dcc_mapping_errors_total",
			Help: "Cycles where a derived value could not be computed",
		}),
		DeviceAddress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "renogy_dcc_device_address",
			Help: "Resolved bus address of the charge controller",
		}),
		LastSuccessful: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "renogy_dcc_last_successful_poll_timestamp_seconds",
			Help: "Unix time of the last successful read",
		}),
	}

	reg.MustRegister(
		m.Polls,
		m.PollDuration,
		m.Probes,
		m.Connected,
		m.ErrorCount,
		m.MapErrors,
		m.DeviceAddress,
		m.LastSuccessful,
	)
	return m
}

// ObserveProbe records one discovery attempt.
func (m *Metrics) ObserveProbe(address uint8, err error) {
	if err != nil {
		m.Probes.WithLabelValues("no_answer").Inc()
		return
	}
	m.Probes.WithLabelValues("found").Inc()
	m.DeviceAddress.Set(float64(address))
}

// ObservePoll records the result of one poll cycle.
func (m *Metrics) ObservePoll(outcome string, connected bool, errorCount int, took time.Duration, at time.Time) {
	m.Polls.WithLabelValues(outcome).Inc()
	m.PollDuration.Observe(took.Seconds())
	m.ErrorCount.Set(float64(errorCount))
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
	if outcome == "ok" {
		m.LastSuccessful.Set(float64(at.Unix()))
	}
}

func (m *Metrics) ObserveMapError() {
	m.MapErrors.Inc()
}
