//go:build linux

package collectors

import (
	"fmt"
	"sync"
	"time"

	"sweep-bench/internal/logging"

	"github.com/elastic/go-perf"
	"github.com/sirupsen/logrus"
)

// PerfObserver counts hardware events of one trial process and its children.
type PerfObserver struct {
	counters []perf.HardwareCounter

	events []*perf.Event
	pid    int
	mutex  sync.Mutex
}

func NewPerfObserver() *PerfObserver {
	return &PerfObserver{counters: DefaultCounters}
}

func (po *PerfObserver) Attach(pid int) error {
	logger := logging.GetLogger()

	po.mutex.Lock()
	defer po.mutex.Unlock()

	if len(po.events) > 0 {
		return fmt.Errorf("perf observer already attached to pid %d", po.pid)
	}

	for _, counter := range po.counters {
		attr := &perf.Attr{}
		counter.Configure(attr)
		attr.Options.Inherit = true
		// Enable time tracking for multiplexing correction
		attr.CountFormat.Enabled = true
		attr.CountFormat.Running = true

		event, err := perf.Open(attr, pid, perf.AnyCPU, nil)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"counter": counter.String(),
				"pid":     pid,
			}).WithError(err).Debug("Failed to open perf event")
			po.closeLocked()
			return err
		}
		po.events = append(po.events, event)
	}

	for _, event := range po.events {
		if err := event.Enable(); err != nil {
			po.closeLocked()
			return fmt.Errorf("failed to enable perf event: %w", err)
		}
	}

	po.pid = pid
	return nil
}

// Detach reads every counter, scaled for multiplexing, and closes the events.
func (po *PerfObserver) Detach() (map[string]uint64, error) {
	po.mutex.Lock()
	defer po.mutex.Unlock()
	defer po.closeLocked()

	values := make(map[string]uint64, len(po.events))
	var firstErr error
	for _, event := range po.events {
		count, err := event.ReadCount()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		values[count.Label] = scaleCount(count.Value, count.Enabled, count.Running)
	}
	return values, firstErr
}

func scaleCount(value uint64, enabled, running time.Duration) uint64 {
	if running > 0 && enabled > 0 && running != enabled {
		return uint64(float64(value) * float64(enabled) / float64(running))
	}
	return value
}

func (po *PerfObserver) closeLocked() {
	for _, event := range po.events {
		if event != nil {
			event.Close()
		}
	}
	po.events = nil
	po.pid = 0
}
