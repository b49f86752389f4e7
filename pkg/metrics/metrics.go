// Package metrics defines the gateway's metrics sink interface. The core
// only ever depends on Sink; the exposition format lives with whichever
// concrete implementation the daemon wires up.
package metrics

// Sink is the injected metrics dependency every core component accepts.
// Label values should be low-cardinality (backend names, method names),
// never namespaced tool IDs or client IDs.
type Sink interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, labels map[string]string, seconds float64)
	SetGauge(name string, labels map[string]string, value float64)
}

// Nop is a Sink that discards everything, used where no metrics backend is
// configured or in tests.
type Nop struct{}

func (Nop) IncCounter(string, map[string]string)                {}
func (Nop) ObserveLatency(string, map[string]string, float64)   {}
func (Nop) SetGauge(string, map[string]string, float64)         {}

var _ Sink = Nop{}
