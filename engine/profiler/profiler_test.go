package profiler

import (
	"runtime"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTickReportsOncePerInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewProfiler(WithInterval(time.Second), WithClock(clock.now))
	p.readMem = func(m *runtime.MemStats) {
		m.Alloc = 2 * 1024 * 1024
		m.TotalAlloc = 4 * 1024 * 1024
		m.NumGC = 2
		m.PauseNs[0] = 3000
		m.PauseNs[1] = 1000
	}

	for i := 0; i < 59; i++ {
		clock.t = clock.t.Add(10 * time.Millisecond)
		if p.Tick() {
			t.Fatalf("tick %d reported before the interval elapsed", i)
		}
	}
	clock.t = time.Unix(2, 0)
	if !p.Tick("blas", 3) {
		t.Fatal("expected a report after the interval")
	}

	s := p.Last()
	if s.FPS != 30 {
		t.Errorf("FPS = %v, want 30", s.FPS)
	}
	if s.FrameTime != 2*time.Second/60 {
		t.Errorf("FrameTime = %v", s.FrameTime)
	}
	if s.HeapMB != 2 || s.AllocRateMB != 2 {
		t.Errorf("HeapMB = %v AllocRateMB = %v, want 2 and 2", s.HeapMB, s.AllocRateMB)
	}
	if s.GCCount != 2 || s.LastPauseUs != 1 || s.MaxPauseUs != 3 {
		t.Errorf("gc = %d last = %d max = %d", s.GCCount, s.LastPauseUs, s.MaxPauseUs)
	}

	clock.t = clock.t.Add(100 * time.Millisecond)
	if p.Tick() {
		t.Error("counters were not reset after a report")
	}
}

func TestWithIntervalIgnoresNonPositive(t *testing.T) {
	p := NewProfiler(WithInterval(0))
	if p.updateInterval != time.Second {
		t.Errorf("updateInterval = %v, want 1s", p.updateInterval)
	}
}
