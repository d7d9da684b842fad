// Package stats implements the recovery engine's statistics aggregator
// (spec §4.4): many producer proxies feed a bounded queue of tagged
// events, a single consumer folds them into a nested tree, and the tree
// is periodically dumped to disk and optionally served over HTTP.
/*
 * Copyright (c) 2024, CortexDC. All rights reserved.
 */
package stats

import "time"

// Kind tags an Event's variant. The source carried heterogeneous tuples
// through one dynamically-typed queue; here each event is one of exactly
// four shapes, dispatched by the consumer with a switch on the Kind value
// instead of runtime type assertions.
type Kind int

const (
	EventCounter Kind = iota
	EventSetCounter
	EventTimer
	EventAttribute
)

func (k Kind) String() string {
	switch k {
	case EventCounter:
		return "counter"
	case EventSetCounter:
		return "set_counter"
	case EventTimer:
		return "timer"
	case EventAttribute:
		return "attribute"
	default:
		return "unknown"
	}
}

// Event is one producer-emitted statistic, bound for the single-consumer
// tree. Path is the child-proxy chain (e.g. []string{"key:ab12..", "read"})
// the name is applied under.
type Event struct {
	Path []string
	Name string
	Kind Kind

	// Counter / SetCounter
	Delta int64

	// Timer
	Milestone string
	At        time.Time

	// Attribute
	Value interface{}
}
