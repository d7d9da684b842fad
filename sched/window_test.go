package sched_test

import (
	"context"
	"errors"
	"sync"

	"github.com/cortexdc/recovery/cmn"
	"github.com/cortexdc/recovery/recovery"
	"github.com/cortexdc/recovery/sched"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeCursor hands out synthetic Input values from a fixed-size backlog,
// one at a time under a mutex, exactly like a real single-consumer
// cursor. errAt, if >= 0, makes the Nth pull (0-indexed) fail instead of
// returning an item.
type fakeCursor struct {
	mu    sync.Mutex
	next  int
	total int
	errAt int
}

func (c *fakeCursor) Next() (recovery.Input, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errAt >= 0 && c.next == c.errAt {
		c.next++
		return recovery.Input{}, false, errors.New("synthetic cursor fault")
	}
	if c.next >= c.total {
		return recovery.Input{}, false, nil
	}
	var in recovery.Input
	in.Key[0] = byte(c.next)
	c.next++
	return in, true, nil
}

// gatedMachine blocks on a release channel so the test can hold several
// slots open at once and observe the concurrency bound, and records its
// own start so the test can compute the high-water mark.
type gatedMachine struct {
	release <-chan struct{}
	onStart func()
	onStop  func()
	result  bool
}

func (m *gatedMachine) Run(_ context.Context) bool {
	m.onStart()
	defer m.onStop()
	<-m.release
	return m.result
}

var _ = Describe("windowed scheduler", func() {
	It("never runs more than W machines concurrently", func() {
		const window = 3
		const total = 12

		cfg := &cmn.Config{Window: window, NetWorkers: 2}
		cursor := &fakeCursor{total: total, errAt: -1}
		release := make(chan struct{})

		var mu sync.Mutex
		current, high := 0, 0
		onStart := func() {
			mu.Lock()
			current++
			if current > high {
				high = current
			}
			mu.Unlock()
		}
		onStop := func() {
			mu.Lock()
			current--
			mu.Unlock()
		}

		factory := func(recovery.Input) sched.Runnable {
			return &gatedMachine{release: release, onStart: onStart, onStop: onStop, result: true}
		}
		s := sched.New(cfg, cursor, factory, cmn.NopLogger{})

		done := make(chan bool, 1)
		go func() { done <- s.Run(context.Background()) }()

		// Let the window fill, then release one slot at a time; the
		// high-water mark must never exceed window even as slots keep
		// recycling through the rest of the backlog.
		for i := 0; i < total; i++ {
			release <- struct{}{}
		}

		Expect(<-done).To(BeTrue())

		mu.Lock()
		defer mu.Unlock()
		Expect(high).To(BeNumerically("<=", window))
		Expect(s.Processed()).To(BeEquivalentTo(total))
	})

	It("returns the logical AND of every per-key result", func() {
		cfg := &cmn.Config{Window: 2, NetWorkers: 1}
		cursor := &fakeCursor{total: 4, errAt: -1}
		release := make(chan struct{}, 4)
		for i := 0; i < 4; i++ {
			release <- struct{}{}
		}

		calls := 0
		var mu sync.Mutex
		factory := func(recovery.Input) sched.Runnable {
			mu.Lock()
			n := calls
			calls++
			mu.Unlock()
			// exactly one of the four keys fails.
			return &gatedMachine{release: release, onStart: func() {}, onStop: func() {}, result: n != 2}
		}
		s := sched.New(cfg, cursor, factory, cmn.NopLogger{})

		Expect(s.Run(context.Background())).To(BeFalse())
		Expect(s.Processed()).To(BeEquivalentTo(4))
	})

	It("stops launching new work after a cursor fault and drains in flight", func() {
		cfg := &cmn.Config{Window: 2, NetWorkers: 1}
		// Fails on the 3rd pull; two keys will have already launched.
		cursor := &fakeCursor{total: 10, errAt: 2}
		release := make(chan struct{}, 10)
		for i := 0; i < 10; i++ {
			release <- struct{}{}
		}

		factory := func(recovery.Input) sched.Runnable {
			return &gatedMachine{release: release, onStart: func() {}, onStop: func() {}, result: true}
		}
		s := sched.New(cfg, cursor, factory, cmn.NopLogger{})

		Expect(s.Run(context.Background())).To(BeFalse())
		Expect(s.Processed()).To(BeNumerically("<=", 2))
	})
})
