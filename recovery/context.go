// Package recovery implements the per-key recovery state machine (spec
// §4.2): read the authoritative replica, write it to stale/missing
// replicas (chunked when large), and optionally remove corrupted copies.
//
// DESIGN NOTES §9 calls for an explicit state enum with non-blocking
// transitions driven by storage-client callbacks, in place of a
// class-with-many-session-fields. Go goroutines are themselves the
// non-blocking mechanism the source used threads plus callbacks to fake:
// one Machine runs on one goroutine, calling storage.Client synchronously
// from that goroutine's point of view; the windowed scheduler (package
// sched) bounds how many such goroutines run at once. No I/O ever blocks
// an OS thread beyond the scheduler's own window.
/*
 * Copyright (c) 2024, CortexDC. All rights reserved.
 */
package recovery

import (
	"go.uber.org/atomic"

	"github.com/cortexdc/recovery/cmn"
)

// Input is what the input cursor (package cursor) yields for one key: the
// key and its known replica set. Same/diff/missed groups are computed
// fresh by Machine.runInit via merge.Select, not carried in from here.
type Input struct {
	Key      cmn.Key
	Replicas []cmn.ReplicaInfo
}

// Stats is the narrow slice of the stats proxy (package stats) a
// recovery Machine needs. Declared here, not imported from stats,
// so recovery depends on an interface it owns rather than a concrete
// producer type (spec §4.4's proxy is exactly this shape).
type Stats interface {
	Counter(name string, delta int64)
	SetCounter(name string, value int64)
	Timer(name, milestone string)
	Attribute(name string, value interface{})
	Child(name string) Stats
}

// Context is the per-key state shared across all phases of one Machine's
// run (spec §3 "Key recovery context").
type Context struct {
	Key cmn.Key

	// Replicas is the key's replica list in the order the cursor yielded
	// it; merge.Select sorts its own copy and does not reorder this slice.
	Replicas []cmn.ReplicaInfo

	SameGroups   map[cmn.GroupID]bool
	DiffGroups   map[cmn.GroupID]bool
	MissedGroups map[cmn.GroupID]bool

	TotalSize     int64
	RecoveredSize int64
	Chunked       bool

	Attempt int // per-phase retry counter, reset at each phase entry

	// Pinned authoritative metadata: set once, before the first write,
	// from the first successful read (spec §3 invariant: "pinned...
	// never change for the lifetime of the state machine").
	UserFlags     uint64
	DataTimestamp cmn.Timestamp
	JSONTimestamp cmn.Timestamp
	JSONCapacity  int64
	RecordFlags   cmn.Flags
	pinned        bool

	// CorruptGroups accumulates groups whose replica returned a
	// checksum error during READING, each driving a parallel
	// RemovingCorrupted subtask.
	CorruptGroups map[cmn.GroupID]bool

	// PendingOperations counts the corrupted-replica removal subtasks
	// still running: each subtask increments it at launch and decrements
	// it on exit. The write chain does not touch it; Machine.Run waits for
	// the subtasks through removeWG before final reporting (spec §4.2).
	PendingOperations atomic.Int64

	// excluded accumulates groups demoted out of contention across
	// stale-read retries (spec §4.2 "demote... re-run INIT selection
	// with the next best replicas"), so merge.Select never resurrects
	// an already-failed group (spec.md §9 open question).
	excluded map[cmn.GroupID]bool
}

func newContext(in Input) *Context {
	return &Context{
		Key:           in.Key,
		Replicas:      in.Replicas,
		CorruptGroups: make(map[cmn.GroupID]bool),
		excluded:      make(map[cmn.GroupID]bool),
	}
}

func (c *Context) pin(res pinnable) {
	if c.pinned {
		return
	}
	c.UserFlags = res.UserFlags
	c.DataTimestamp = res.DataTimestamp
	c.JSONTimestamp = res.JSONTimestamp
	c.JSONCapacity = res.JSONCapacity
	c.RecordFlags = res.RecordFlags
	c.pinned = true
}

// pinnable is the subset of storage.ReadResult used to pin authoritative
// metadata; declared to avoid a storage import in this file (write.go /
// read.go bridge the concrete type).
type pinnable struct {
	UserFlags     uint64
	DataTimestamp cmn.Timestamp
	JSONTimestamp cmn.Timestamp
	JSONCapacity  int64
	RecordFlags   cmn.Flags
}
