package tick

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, step time.Duration, accrual Handler) *Scheduler {
	t.Helper()
	s, err := New(step, accrual, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestNewRejectsNonPositiveStep(t *testing.T) {
	if _, err := New(0, nil, nil); err == nil {
		t.Fatalf("expected zero step to fail")
	}
}

func TestAdvanceRunsWholeSteps(t *testing.T) {
	var accrued []uint64
	s := newTestScheduler(t, 100*time.Millisecond, func(t Tick) { accrued = append(accrued, t.Number) })

	if n := s.Advance(time.Second); n != 0 {
		t.Fatalf("stopped scheduler ran %d ticks", n)
	}
	s.Start()
	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{elapsed: 50 * time.Millisecond, want: 0},
		{elapsed: 60 * time.Millisecond, want: 1},
		{elapsed: 290 * time.Millisecond, want: 3},
		{elapsed: 16 * time.Millisecond, want: 0},
	}
	for _, tc := range tests {
		if n := s.Advance(tc.elapsed); n != tc.want {
			t.Fatalf("advance %s ran %d want %d", tc.elapsed, n, tc.want)
		}
	}
	if len(accrued) != 4 || s.Ticks() != 4 {
		t.Fatalf("got %d accruals, %d ticks", len(accrued), s.Ticks())
	}
	if s.PlayTime() != 400*time.Millisecond {
		t.Fatalf("play time got %s", s.PlayTime())
	}
	if s.Pending() != 16*time.Millisecond {
		t.Fatalf("pending got %s", s.Pending())
	}
}

func TestStartResetsAccumulator(t *testing.T) {
	s := newTestScheduler(t, 100*time.Millisecond, nil)
	s.Start()
	s.Advance(90 * time.Millisecond)
	s.Stop()
	if s.State() != Stopped {
		t.Fatalf("state got %s", s.State())
	}
	s.Advance(time.Hour)
	s.Start()
	if n := s.Advance(20 * time.Millisecond); n != 0 {
		t.Fatalf("accumulator survived restart: ran %d", n)
	}
}

func TestPhaseOrder(t *testing.T) {
	var order []string
	s := newTestScheduler(t, time.Second, func(Tick) { order = append(order, "accrue") })
	s.OnRender(func(t Tick) {
		order = append(order, "render")
		if t.PlayTime != time.Second {
			order = append(order, "bad-playtime")
		}
	})
	s.OnLogic(func(t Tick) {
		order = append(order, "logic1")
		if t.PlayTime != 0 {
			order = append(order, "bad-playtime")
		}
	})
	s.OnLogic(func(Tick) { order = append(order, "logic2") })
	s.RunTicks(1)

	want := []string{"accrue", "logic1", "logic2", "render"}
	if len(order) != len(want) {
		t.Fatalf("order got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order got %v want %v", order, want)
		}
	}
}

func TestPanickingHandlerDoesNotSkipTick(t *testing.T) {
	rendered := 0
	s := newTestScheduler(t, time.Second, nil)
	s.OnLogic(func(Tick) { panic("broken achievement check") })
	s.OnRender(func(Tick) { rendered++ })
	s.RunTicks(3)
	if rendered != 3 || s.Ticks() != 3 {
		t.Fatalf("rendered=%d ticks=%d", rendered, s.Ticks())
	}
}

func TestPumpFeedsElapsedTime(t *testing.T) {
	var mu sync.Mutex
	ticks := 0
	s := newTestScheduler(t, time.Millisecond, func(Tick) { ticks++ })
	s.Start()

	clock := time.Unix(0, 0)
	var clockMu sync.Mutex
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(10 * time.Millisecond)
		return clock
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Pump(ctx, time.Millisecond, &mu, now)
		close(done)
	}()
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := ticks
		mu.Unlock()
		if n >= 30 {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatalf("pump ran only %d ticks", n)
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
	mu.Lock()
	defer mu.Unlock()
	if ticks%10 != 0 {
		t.Fatalf("each pump should run exactly 10 ticks, total %d", ticks)
	}
}
