//go:build linux

package collectors

import "github.com/elastic/go-perf"

// DefaultCounters are the events recorded per trial.
var DefaultCounters = []perf.HardwareCounter{
	perf.Instructions,
	perf.CPUCycles,
	perf.CacheReferences,
	perf.CacheMisses,
}
