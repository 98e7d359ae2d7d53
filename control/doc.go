// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime counters and debug introspection for the network core.
//
// Provides concurrent-safe state handling primitives including:
//   - Counters and gauges updated from the reactor thread and callers
//   - Snapshot reads for stats endpoints and tests
//   - Named debug probes evaluated on demand
package control
