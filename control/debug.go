// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Debug probes: named functions evaluated when a state dump is requested,
// such as registry sizes of the network core.

package control

import "sync"

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts or replaces a named probe.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState evaluates all probes. Probes run without the registry lock
// held, so a probe may take locks of its own.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	fns := make(map[string]func() any, len(dp.probes))
	for k, fn := range dp.probes {
		fns[k] = fn
	}
	dp.mu.RUnlock()

	out := make(map[string]any, len(fns))
	for k, fn := range fns {
		out[k] = fn()
	}
	return out
}

// Merge returns the metrics snapshot combined with probe output; probe keys
// are prefixed with "debug.".
func Merge(metrics *MetricsRegistry, probes *DebugProbes) map[string]any {
	combined := metrics.GetSnapshot()
	for k, v := range probes.DumpState() {
		combined["debug."+k] = v
	}
	return combined
}
