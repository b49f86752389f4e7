package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink is a Sink backed by Prometheus client_golang vectors, registered
// lazily per metric name since the exact label set isn't known up front.
type PromSink struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPromSink creates a PromSink backed by reg. Pass prometheus.NewRegistry()
// for an isolated registry, or prometheus.DefaultRegisterer's registry to
// join the process-wide default.
func NewPromSink(reg *prometheus.Registry) *PromSink {
	return &PromSink{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Registry returns the underlying registry, for wiring into promhttp.Handler.
func (s *PromSink) Registry() *prometheus.Registry { return s.reg }

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (s *PromSink) IncCounter(name string, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := labelNames(labels)
	cv, ok := s.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, names)
		s.reg.MustRegister(cv)
		s.counters[name] = cv
	}
	cv.With(labels).Inc()
}

func (s *PromSink) ObserveLatency(name string, labels map[string]string, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := labelNames(labels)
	hv, ok := s.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Buckets: prometheus.DefBuckets,
		}, names)
		s.reg.MustRegister(hv)
		s.histograms[name] = hv
	}
	hv.With(labels).Observe(seconds)
}

func (s *PromSink) SetGauge(name string, labels map[string]string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := labelNames(labels)
	gv, ok := s.gauges[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, names)
		s.reg.MustRegister(gv)
		s.gauges[name] = gv
	}
	gv.With(labels).Set(value)
}

var _ Sink = (*PromSink)(nil)
