// Package metrics is a minimal facade over an optional metrics backend.
//
// Pipeline code calls the package-level functions unconditionally; with no
// backend installed they are no-ops. The binary decides at startup whether to
// install a real backend (see internal/metrics/datadog).
package metrics

import "sync"

// Labels are free-form metric labels (e.g. {"entity": "race_result"}).
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits buffered metrics. Called at least once at shutdown.
	Flush() error
}

var (
	mu      sync.RWMutex
	backend Backend
)

// SetBackend installs b as the process-wide backend. Passing nil reverts to
// the no-op default.
func SetBackend(b Backend) {
	mu.Lock()
	backend = b
	mu.Unlock()
}

// IncCounter adds delta to the named counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	mu.RLock()
	b := backend
	mu.RUnlock()
	if b != nil {
		b.IncCounter(name, delta, labels)
	}
}

// ObserveHistogram records one sample for the named histogram.
func ObserveHistogram(name string, value float64, labels Labels) {
	mu.RLock()
	b := backend
	mu.RUnlock()
	if b != nil {
		b.ObserveHistogram(name, value, labels)
	}
}

// Flush flushes the installed backend, if any.
func Flush() error {
	mu.RLock()
	b := backend
	mu.RUnlock()
	if b == nil {
		return nil
	}
	return b.Flush()
}
