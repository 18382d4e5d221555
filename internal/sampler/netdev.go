package sampler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"sweep-bench/internal/logging"

	psnet "github.com/shirou/gopsutil/net"
)

// NetDevHeaderLines is the number of header lines NetDevSource writes.
const NetDevHeaderLines = 2

// NetDevSource polls interface byte counters in-process and writes an
// ifstat-compatible log: two header lines, then "in out" in KB/s per
// interval.
type NetDevSource struct {
	Interface string
	Interval  time.Duration

	counters func(ctx context.Context) ([]psnet.IOCountersStat, error)

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewNetDevSource(iface string, interval time.Duration) *NetDevSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &NetDevSource{
		Interface: iface,
		Interval:  interval,
		counters: func(ctx context.Context) ([]psnet.IOCountersStat, error) {
			return psnet.IOCountersWithContext(ctx, true)
		},
	}
}

func (n *NetDevSource) read(ctx context.Context) (psnet.IOCountersStat, error) {
	stats, err := n.counters(ctx)
	if err != nil {
		return psnet.IOCountersStat{}, err
	}
	for _, s := range stats {
		if s.Name == n.Interface {
			return s, nil
		}
	}
	return psnet.IOCountersStat{}, fmt.Errorf("interface %q not found", n.Interface)
}

func (n *NetDevSource) Start(ctx context.Context, log io.Writer) error {
	first, err := n.read(ctx)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(log, "%20s\n%10s %10s\n", n.Interface, "KB/s in", "KB/s out"); err != nil {
		return err
	}

	n.stop = make(chan struct{})
	n.wg.Add(1)
	go n.poll(ctx, log, first)
	return nil
}

func (n *NetDevSource) poll(ctx context.Context, log io.Writer, prev psnet.IOCountersStat) {
	defer n.wg.Done()
	logger := logging.GetLogger()

	ticker := time.NewTicker(n.Interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		case now := <-ticker.C:
			cur, err := n.read(ctx)
			if err != nil {
				logger.WithField("interface", n.Interface).WithError(err).Warn("Failed to read interface counters")
				continue
			}
			secs := now.Sub(last).Seconds()
			if secs <= 0 {
				continue
			}
			// counters went backwards (interface reset or wrap), skip the interval
			if cur.BytesRecv < prev.BytesRecv || cur.BytesSent < prev.BytesSent {
				logger.WithField("interface", n.Interface).Debug("Interface counters reset")
				prev, last = cur, now
				continue
			}
			in := float64(cur.BytesRecv-prev.BytesRecv) / 1024 / secs
			out := float64(cur.BytesSent-prev.BytesSent) / 1024 / secs
			if _, err := fmt.Fprintf(log, "%10.2f %10.2f\n", in, out); err != nil {
				logger.WithField("interface", n.Interface).WithError(err).Warn("Failed to write sampler log, stopping")
				return
			}
			prev, last = cur, now
		}
	}
}

func (n *NetDevSource) Stop() error {
	if n.stop == nil {
		return nil
	}
	close(n.stop)
	n.wg.Wait()
	n.stop = nil
	return nil
}
