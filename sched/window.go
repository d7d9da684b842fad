// Package sched implements the windowed recovery scheduler (spec §4.3): a
// bounded-concurrency pool that keeps at most W per-key recovery state
// machines in flight, pulling keys from a single-consumer cursor as slots
// free up.
/*
 * Copyright (c) 2024, CortexDC. All rights reserved.
 */
package sched

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/cortexdc/recovery/cmn"
	"github.com/cortexdc/recovery/recovery"
)

// Cursor is the single-consumer source of recovery work (package cursor
// implements it). Next returns false when the input is exhausted.
type Cursor interface {
	Next() (recovery.Input, bool, error)
}

// Runnable is the thing a window slot runs; *recovery.Machine implements
// it. Declared as a narrow interface so tests can drive the scheduler
// with a fake.
type Runnable interface {
	Run(ctx context.Context) bool
}

// Factory builds the Runnable for one key. The scheduler doesn't know
// about recovery.Machine construction details (client, stats, groups) —
// those are closed over by whoever builds the Factory (the driver).
type Factory func(recovery.Input) Runnable

// Scheduler runs the windowed recovery loop described in spec §4.3.
type Scheduler struct {
	cfg     *cmn.Config
	cursor  Cursor
	factory Factory
	log     cmn.Logger

	// mu guards exactly the shared mutable state spec §5 names: the
	// cursor pull, the in-flight count, and the sticky need_exit flag.
	// inFlight is incremented exactly once per machine launched and
	// decremented exactly once per machine completion; exhausted marks
	// that the cursor has no more work (end of input or a fault).
	mu        sync.Mutex
	inFlight  int
	exhausted bool
	needExit  bool
	resultOK  bool

	processed atomic.Int64
	start     time.Time

	doneCh   chan struct{}
	doneOnce sync.Once

	// helperCh is the "small helper pool" spec §4.3 calls for: slot
	// completions are dispatched here rather than recursing inline on
	// the goroutine that just finished a Machine.Run, so a long run of
	// synchronously-skipped keys can't build an unbounded call stack.
	helperCh chan func()
}

// New constructs a Scheduler. cfg.Window is W; cfg.NetWorkers sizes the
// completion helper pool (spec.md §9 open question: both configurable,
// never hard-coded).
func New(cfg *cmn.Config, cursor Cursor, factory Factory, log cmn.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, cursor: cursor, factory: factory, log: log}
}

// Run drives the scheduler to completion: launches up to W machines,
// keeps the window full as slots free up, and returns the logical AND of
// every per-key result (spec §7). It blocks until the cursor is
// exhausted and every in-flight machine (and, transitively, every
// corrupted-replica removal subtask) has finished.
func (s *Scheduler) Run(parent context.Context) bool {
	s.start = time.Now()
	s.resultOK = true
	s.doneCh = make(chan struct{})

	helpers := s.cfg.NetWorkers
	if helpers <= 0 {
		helpers = 4
	}
	s.helperCh = make(chan func(), 1024)
	var helperWG sync.WaitGroup
	helperWG.Add(helpers)
	for i := 0; i < helpers; i++ {
		go func() {
			defer helperWG.Done()
			for fn := range s.helperCh {
				fn()
			}
		}()
	}

	window := s.cfg.Window
	if window <= 0 {
		window = 1
	}
	for i := 0; i < window; i++ {
		s.launchSlot(parent)
	}

	<-s.doneCh
	close(s.helperCh)
	helperWG.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultOK
}

// Processed returns the number of keys completed so far, for the
// processed_keys/elapsed_wall_time throughput gauge.
func (s *Scheduler) Processed() int64 { return s.processed.Load() }

// Throughput reports processed_keys / elapsed_wall_time (spec §4.3).
func (s *Scheduler) Throughput() float64 {
	elapsed := time.Since(s.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.processed.Load()) / elapsed
}

// launchSlot pulls the next key under the cursor mutex and, if one
// exists, launches a new Machine, incrementing inFlight exactly once for
// it. If the cursor has no more work, it marks the run exhausted instead
// of touching inFlight — this attempt never launched a machine, so there
// is nothing to account for beyond noting no further slots will find
// work. Overall completion is signaled once inFlight reaches zero and
// the run is either exhausted or has faulted (need_exit).
func (s *Scheduler) launchSlot(parent context.Context) {
	in, ok := s.pullNext()
	if !ok {
		s.mu.Lock()
		s.exhausted = true
		done := s.inFlight == 0
		s.mu.Unlock()
		if done {
			s.signalDone()
		}
		return
	}

	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()

	go s.runSlot(parent, in)
}

// pullNext advances the cursor under the scheduler mutex. A cursor error
// is the "scheduler fault" error kind (spec §7): it sets the sticky
// need_exit flag, fails the overall result, and lets in-flight work
// drain rather than starting anything new.
func (s *Scheduler) pullNext() (recovery.Input, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.needExit {
		return recovery.Input{}, false
	}
	in, ok, err := s.cursor.Next()
	if err != nil {
		s.log.Errorf("sched: cursor advance failed: %v", err)
		s.needExit = true
		s.resultOK = false
		return recovery.Input{}, false
	}
	return in, ok
}

// runSlot runs one Machine to completion and dispatches the
// slot-recycling decision onto the helper pool. inFlight is decremented
// exactly once here, unconditionally, before deciding whether to pull
// the next key into this now-free slot.
func (s *Scheduler) runSlot(parent context.Context, in recovery.Input) {
	m := s.factory(in)
	ok := m.Run(parent)

	s.helperCh <- func() {
		s.processed.Inc()

		s.mu.Lock()
		if !ok {
			s.resultOK = false
		}
		s.inFlight--
		exit := s.needExit
		done := s.inFlight == 0 && (exit || s.exhausted)
		s.mu.Unlock()

		if done {
			s.signalDone()
			return
		}
		if exit {
			return
		}

		s.launchSlot(parent)
	}
}

func (s *Scheduler) signalDone() {
	s.doneOnce.Do(func() { close(s.doneCh) })
}
