package session

import (
	"errors"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var trackedStates = []domain.SessionState{
	domain.StateInitializing,
	domain.StateQRReady,
	domain.StateAuthenticated,
	domain.StateReady,
	domain.StateDisconnected,
	domain.StateFailed,
}

// Metrics instruments a Manager. A nil *Metrics records nothing.
type Metrics struct {
	reg prometheus.Registerer

	rejections      prometheus.Counter
	connectAttempts prometheus.Counter
	events          *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	operations      *prometheus.HistogramVec
}

// NewMetrics creates the metric set and registers it on reg.
// The per-state session gauge is registered when the Metrics is passed to New.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	mt := &Metrics{
		reg: reg,
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_admission_rejections_total",
			Help: "Session creations rejected at capacity",
		}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_connect_attempts_total",
			Help: "Engine connect attempts",
		}),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_events_published_total",
				Help: "Events handed to sinks",
			},
			[]string{"type"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_cache_lookups_total",
				Help: "Read cache lookups by result",
			},
			[]string{"result"},
		),
		operations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "switchboard_operation_duration_seconds",
				Help: "Duration of engine operations, queueing included",
			},
			[]string{"operation", "result"},
		),
	}
	reg.MustRegister(mt.rejections, mt.connectAttempts, mt.events, mt.cacheLookups, mt.operations)
	return mt
}

// sessionsCollector reports the registry population per state at scrape time.
type sessionsCollector struct {
	m    *Manager
	desc *prometheus.Desc
}

func (c *sessionsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *sessionsCollector) Collect(ch chan<- prometheus.Metric) {
	counts := make(map[domain.SessionState]int, len(trackedStates))
	c.m.mu.Lock()
	for _, r := range c.m.records {
		counts[r.state]++
	}
	c.m.mu.Unlock()
	for _, s := range trackedStates {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[s]), string(s))
	}
}

func (mt *Metrics) attach(m *Manager) {
	mt.reg.MustRegister(&sessionsCollector{
		m: m,
		desc: prometheus.NewDesc(
			"switchboard_sessions",
			"Registered sessions by state",
			[]string{"state"}, nil,
		),
	})
}

func (mt *Metrics) rejected() {
	if mt == nil {
		return
	}
	mt.rejections.Inc()
}

func (mt *Metrics) connectAttempt() {
	if mt == nil {
		return
	}
	mt.connectAttempts.Inc()
}

func (mt *Metrics) published(t domain.EventType) {
	if mt == nil {
		return
	}
	mt.events.WithLabelValues(string(t)).Inc()
}

func (mt *Metrics) cacheLookup(result string) {
	if mt == nil {
		return
	}
	mt.cacheLookups.WithLabelValues(result).Inc()
}

func (mt *Metrics) observe(op string, err error, d time.Duration) {
	if mt == nil {
		return
	}
	mt.operations.WithLabelValues(op, resultLabel(err)).Observe(d.Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotReady):
		return "not_ready"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrSessionInvalidated):
		return "invalidated"
	case errors.Is(err, domain.ErrGroupNotFound):
		return "not_found"
	}
	return "error"
}
