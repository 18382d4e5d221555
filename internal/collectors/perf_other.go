//go:build !linux

package collectors

import "errors"

var errUnsupported = errors.New("perf counters are only available on linux")

type PerfObserver struct{}

func NewPerfObserver() *PerfObserver {
	return &PerfObserver{}
}

func (*PerfObserver) Attach(int) error {
	return errUnsupported
}

func (*PerfObserver) Detach() (map[string]uint64, error) {
	return nil, errUnsupported
}
