package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	psnet "github.com/shirou/gopsutil/net"
)

func TestSumColumns(t *testing.T) {
	log := `       eth0
 KB/s in  KB/s out
   10.5      2.0
    4,5      1.0
   20.0      7.0
`
	totals, err := SumColumns(strings.NewReader(log), 2, 0, 1)
	if err != nil {
		t.Fatalf("SumColumns: %v", err)
	}
	if totals.In != 35 || totals.Out != 10 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestSumColumnsHeaderInvariant(t *testing.T) {
	body := "1 2\n3 4\n5 6\n"
	short, err := SumColumns(strings.NewReader("h1\n"+body), 1, 0, 1)
	if err != nil {
		t.Fatalf("SumColumns: %v", err)
	}
	long, err := SumColumns(strings.NewReader("h1\nh2\nh3\n"+body), 3, 0, 1)
	if err != nil {
		t.Fatalf("SumColumns: %v", err)
	}
	if short != long {
		t.Fatalf("totals differ with header size: %+v vs %+v", short, long)
	}
	if short.In != 9 || short.Out != 12 {
		t.Fatalf("unexpected totals %+v", short)
	}
}

func TestSumColumnsEmptyAndPartial(t *testing.T) {
	totals, err := SumColumns(strings.NewReader(""), 2, 0, 1)
	if err != nil || totals != (Totals{}) {
		t.Fatalf("empty log: %+v, %v", totals, err)
	}
	totals, err = SumColumns(strings.NewReader("h\nh\n1 2\n3"), 2, 0, 1)
	if err != nil {
		t.Fatalf("SumColumns: %v", err)
	}
	if totals.In != 1 || totals.Out != 2 {
		t.Fatalf("partial line not ignored: %+v", totals)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := New(Config{LogFile: filepath.Join(t.TempDir(), "s.log")}, &fakeSource{})
	totals, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if totals != (Totals{}) {
		t.Fatalf("expected zero totals, got %+v", totals)
	}
}

type fakeSource struct {
	lines   []string
	stopErr error
	started int
}

func (f *fakeSource) Start(ctx context.Context, log io.Writer) error {
	f.started++
	for _, l := range f.lines {
		fmt.Fprintln(log, l)
	}
	return nil
}

func (f *fakeSource) Stop() error {
	return f.stopErr
}

func TestStartStopScalesOnce(t *testing.T) {
	src := &fakeSource{lines: []string{"header", "100 50", "300 150"}}
	s := New(Config{
		LogFile:     filepath.Join(t.TempDir(), "s.log"),
		HeaderLines: 1,
		InColumn:    0,
		OutColumn:   1,
		Scale:       0.5,
	}, src)

	for i := 0; i < 2; i++ {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		totals, err := s.Stop()
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
		// log is truncated on every start
		if totals.In != 200 || totals.Out != 100 {
			t.Fatalf("window %d: unexpected totals %+v", i, totals)
		}
	}
}

func TestDoubleStartFails(t *testing.T) {
	s := New(Config{LogFile: filepath.Join(t.TempDir(), "s.log")}, &fakeSource{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	var se *SamplerError
	if err := s.Start(context.Background()); !errors.As(err, &se) {
		t.Fatalf("expected SamplerError, got %v", err)
	}
}

func TestStopSourceFailure(t *testing.T) {
	s := New(Config{LogFile: filepath.Join(t.TempDir(), "s.log")}, &fakeSource{stopErr: errors.New("stuck")})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	totals, err := s.Stop()
	var se *SamplerError
	if !errors.As(err, &se) {
		t.Fatalf("expected SamplerError, got %v", err)
	}
	if totals != (Totals{}) {
		t.Fatalf("expected zero totals, got %+v", totals)
	}
	// sampler is idle again
	if _, err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestCommandSource(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	src := NewCommandSource([]string{"sh", "-c", "echo iface; echo 'in out'; echo '1,5 2'; exec sleep 30"})
	s := New(Config{
		LogFile:     filepath.Join(t.TempDir(), "s.log"),
		HeaderLines: 2,
		InColumn:    0,
		OutColumn:   1,
		Grace:       300 * time.Millisecond,
	}, src)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	totals, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if totals.In != 1.5 || totals.Out != 2 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestNetDevSource(t *testing.T) {
	var calls uint64
	src := NewNetDevSource("eth0", 20*time.Millisecond)
	src.counters = func(ctx context.Context) ([]psnet.IOCountersStat, error) {
		calls++
		return []psnet.IOCountersStat{
			{Name: "lo"},
			{Name: "eth0", BytesRecv: calls * 1024, BytesSent: calls * 2048},
		}, nil
	}
	s := New(Config{
		LogFile:     filepath.Join(t.TempDir(), "s.log"),
		HeaderLines: NetDevHeaderLines,
		InColumn:    0,
		OutColumn:   1,
		Grace:       100 * time.Millisecond,
	}, src)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	totals, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if totals.In <= 0 || totals.Out <= totals.In {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestNetDevSourceSkipsCounterReset(t *testing.T) {
	var calls uint64
	src := NewNetDevSource("eth0", 10*time.Millisecond)
	src.counters = func(ctx context.Context) ([]psnet.IOCountersStat, error) {
		calls++
		bytes := (calls - 1) * 1024
		if calls == 1 {
			bytes = 1 << 30
		}
		return []psnet.IOCountersStat{{Name: "eth0", BytesRecv: bytes, BytesSent: bytes}}, nil
	}

	var buf strings.Builder
	if err := src.Start(context.Background(), &buf); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")[NetDevHeaderLines:]
	if len(lines) == 0 {
		t.Fatalf("expected samples after the reset, got %q", buf.String())
	}
	for _, line := range lines {
		var in, out float64
		if _, err := fmt.Sscan(line, &in, &out); err != nil {
			t.Fatalf("bad sample %q: %v", line, err)
		}
		if in < 0 || out < 0 || in > 1e6 || out > 1e6 {
			t.Fatalf("sample %q spans the counter reset", line)
		}
	}
}

type failingWriter struct {
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errors.New("disk full")
	}
	return len(p), nil
}

func TestNetDevSourceStopsOnWriteError(t *testing.T) {
	var calls uint64
	src := NewNetDevSource("eth0", 5*time.Millisecond)
	src.counters = func(ctx context.Context) ([]psnet.IOCountersStat, error) {
		calls++
		return []psnet.IOCountersStat{{Name: "eth0", BytesRecv: calls, BytesSent: calls}}, nil
	}
	w := &failingWriter{}
	if err := src.Start(context.Background(), w); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if w.writes != 2 {
		t.Fatalf("expected polling to stop after the first failed write, got %d writes", w.writes)
	}
}

func TestNetDevSourceUnknownInterface(t *testing.T) {
	src := NewNetDevSource("nope0", time.Second)
	src.counters = func(ctx context.Context) ([]psnet.IOCountersStat, error) {
		return []psnet.IOCountersStat{{Name: "lo"}}, nil
	}
	s := New(Config{LogFile: filepath.Join(t.TempDir(), "s.log")}, src)
	var se *SamplerError
	if err := s.Start(context.Background()); !errors.As(err, &se) {
		t.Fatalf("expected SamplerError, got %v", err)
	}
}
