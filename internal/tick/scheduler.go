// Package tick drives fixed-size simulation steps from a variable-rate host
// timer.
package tick

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// Tick describes the step being executed.
type Tick struct {
	Number   uint64
	Step     time.Duration
	PlayTime time.Duration
}

type Handler func(Tick)

// Scheduler runs, per tick and in this order: accrual, logic handlers in
// registration order, play-time bookkeeping, render handlers in registration
// order. It is not safe for concurrent use; Pump serializes through the
// caller's lock.
type Scheduler struct {
	log      *slog.Logger
	step     time.Duration
	accrual  Handler
	logic    []Handler
	render   []Handler
	state    State
	acc      time.Duration
	ticks    uint64
	playTime time.Duration
}

func New(step time.Duration, accrual Handler, logger *slog.Logger) (*Scheduler, error) {
	if step <= 0 {
		return nil, fmt.Errorf("tick step must be > 0, got %s", step)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		log:     logger,
		step:    step,
		accrual: accrual,
	}, nil
}

func (s *Scheduler) OnLogic(h Handler) {
	if h != nil {
		s.logic = append(s.logic, h)
	}
}

func (s *Scheduler) OnRender(h Handler) {
	if h != nil {
		s.render = append(s.render, h)
	}
}

func (s *Scheduler) Step() time.Duration     { return s.step }
func (s *Scheduler) State() State            { return s.state }
func (s *Scheduler) Ticks() uint64           { return s.ticks }
func (s *Scheduler) PlayTime() time.Duration { return s.playTime }
func (s *Scheduler) Pending() time.Duration  { return s.acc }

func (s *Scheduler) SetPlayTime(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.playTime = d
}

// SetTicks restores the tick counter after a load.
func (s *Scheduler) SetTicks(n uint64) { s.ticks = n }

// Start moves to running and discards any accumulated time, so resuming after
// a long stop does not burst.
func (s *Scheduler) Start() {
	if s.state == Running {
		return
	}
	s.state = Running
	s.acc = 0
	s.log.Info("scheduler started", "step", s.step.String())
}

// Stop moves to stopped. Advance is a no-op until the next Start.
func (s *Scheduler) Stop() {
	if s.state == Stopped {
		return
	}
	s.state = Stopped
	s.acc = 0
	s.log.Info("scheduler stopped", "ticks", s.ticks)
}

// Advance is the host timer callback. It banks elapsed real time and runs one
// tick per whole step banked, returning how many ran.
func (s *Scheduler) Advance(elapsed time.Duration) int {
	if s.state != Running || elapsed <= 0 {
		return 0
	}
	s.acc += elapsed
	n := 0
	for s.acc >= s.step {
		s.acc -= s.step
		s.runTick()
		n++
	}
	return n
}

// RunTicks executes n ticks immediately regardless of state.
func (s *Scheduler) RunTicks(n int) {
	for i := 0; i < n; i++ {
		s.runTick()
	}
}

func (s *Scheduler) runTick() {
	s.ticks++
	t := Tick{Number: s.ticks, Step: s.step, PlayTime: s.playTime}
	if s.accrual != nil {
		s.call("accrual", s.accrual, t)
	}
	for _, h := range s.logic {
		s.call("logic", h, t)
	}
	s.playTime += s.step
	t.PlayTime = s.playTime
	for _, h := range s.render {
		s.call("render", h, t)
	}
}

func (s *Scheduler) call(phase string, h Handler, t Tick) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("tick handler panicked", "phase", phase, "tick", t.Number, "err", fmt.Sprint(p))
		}
	}()
	h(t)
}

// Pump is the host timer: every period it measures real elapsed time and
// feeds it to Advance while holding lock. It returns when ctx is done.
func (s *Scheduler) Pump(ctx context.Context, period time.Duration, lock sync.Locker, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := now()
			elapsed := current.Sub(last)
			last = current
			lock.Lock()
			n := s.Advance(elapsed)
			lock.Unlock()
			if n > 1 {
				s.log.Debug("scheduler caught up", "ticks", n, "elapsed", elapsed.String())
			}
		}
	}
}
