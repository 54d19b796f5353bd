package audit

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes upstream fetches and the page cache.
type Metrics struct {
	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	superseded    prometheus.Counter
}

// NewMetrics registers the audit collectors. Collectors that are already
// registered on reg are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditview_fetch_total",
			Help: "Upstream audit page fetches by outcome.",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditview_fetch_duration_seconds",
			Help:    "Duration of upstream audit page fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditview_cache_hits_total",
			Help: "Audit pages served from the cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditview_cache_miss_total",
			Help: "Audit pages not found in the cache.",
		}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditview_superseded_total",
			Help: "Loads discarded because a newer request started.",
		}),
	}
	if err := register(reg, m.fetchTotal, func(c prometheus.Collector) { m.fetchTotal = c.(*prometheus.CounterVec) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.fetchDuration, func(c prometheus.Collector) { m.fetchDuration = c.(*prometheus.HistogramVec) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.cacheHits, func(c prometheus.Collector) { m.cacheHits = c.(prometheus.Counter) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.cacheMisses, func(c prometheus.Collector) { m.cacheMisses = c.(prometheus.Counter) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.superseded, func(c prometheus.Collector) { m.superseded = c.(prometheus.Counter) }); err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector, reuse func(prometheus.Collector)) error {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			reuse(already.ExistingCollector)
			return nil
		}
		return err
	}
	return nil
}

func (m *Metrics) observeFetch(err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := ErrorKind(err)
	m.fetchTotal.WithLabelValues(outcome).Inc()
	m.fetchDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) cacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) supersededLoad() {
	if m == nil {
		return
	}
	m.superseded.Inc()
}
