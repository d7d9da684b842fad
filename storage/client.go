// Package storage defines the seam between the recovery engine and the
// underlying storage client library (routing, RPC, checksum, iteration).
// Per spec.md §1, the storage client's internals are out of scope here;
// this package only specifies the contract the recovery state machine
// drives it through.
//
// DESIGN NOTES §9 observes that the original's three separate
// read/write/remove "sessions" are really one client handle configured
// per call with a distinct option bundle; Client reflects that directly.
/*
 * Copyright (c) 2024, CortexDC. All rights reserved.
 */
package storage

import (
	"context"
	"time"

	"github.com/cortexdc/recovery/cmn"
)

// WriteKind selects which of the four write operations spec §4.2
// describes to perform.
type WriteKind int

const (
	// WriteSingle carries json + data in one call (non-chunked records).
	WriteSingle WriteKind = iota
	// WritePrepare declares capacities and reserves space for a chunked
	// write, writing the first bytes.
	WritePrepare
	// WritePlain writes bytes at DataOffset, no commit.
	WritePlain
	// WriteCommit finalizes a chunked write at DataCommitSize.
	WriteCommit
)

// ReadOptions configures one Read call.
type ReadOptions struct {
	// VerifyChecksum enables checksum validation for this read. Only the
	// first chunk of a record validates unconditionally; subsequent
	// chunks only if the record's FlagChunkedChecksum is set (spec
	// §4.2).
	VerifyChecksum bool
	// FetchJSON additionally fetches the json side-payload; set on the
	// first chunk only.
	FetchJSON bool
	Timeout   time.Duration
}

// ReplicaError associates a per-replica failure with the group it came
// from, so the caller can tell a checksum error on one replica from a
// timeout on the whole read.
type ReplicaError struct {
	GroupID cmn.GroupID
	Err     error
}

// ReadResult is the outcome of a Read: "succeed if any replica returns"
// (spec §4.2) means the aggregate call only fails if every targeted
// replica failed; PerReplicaErrors still reports every individual
// failure so the state machine can detect corrupted replicas even when
// the read as a whole succeeded from some other group.
type ReadResult struct {
	Data []byte
	JSON []byte // populated only when ReadOptions.FetchJSON was set

	// RecordSize is the replica's authoritative record length, which may
	// differ from whatever size the input cursor snapshot carried (spec
	// §4.2: "correct total_size if the returned record length differs").
	RecordSize    int64
	UserFlags     uint64
	DataTimestamp cmn.Timestamp
	JSONTimestamp cmn.Timestamp
	JSONCapacity  int64
	RecordFlags   cmn.Flags

	PerReplicaErrors []ReplicaError
	TimedOut         bool
}

// WriteOptions configures one Write call. Exactly one of the
// Kind-specific field groups is meaningful for a given Kind; see spec
// §4.2 for which.
type WriteOptions struct {
	Kind   WriteKind
	Groups []cmn.GroupID

	Data []byte
	JSON []byte

	DataOffset     int64
	DataCapacity   int64
	JSONCapacity   int64
	DataCommitSize int64

	UserFlags     uint64
	DataTimestamp cmn.Timestamp
	JSONTimestamp cmn.Timestamp

	// CASTimestamp gates the write with compare-and-set semantics: a
	// target rejects the write if its current copy's timestamp is
	// strictly newer than CASTimestamp; an older or equal copy, or no
	// copy, accepts it (spec §3 "Writes use compare-and-set on
	// timestamp"). Equal is accepted so the plain/commit chunks that
	// follow a prepare carrying the same pinned timestamp go through.
	CASTimestamp cmn.Timestamp

	Timeout time.Duration
}

// WriteResult is the outcome of a Write. The strict checker (spec §4.2)
// requires every targeted group to succeed; Failed lists the groups that
// did not, and is empty on success.
type WriteResult struct {
	Failed   []cmn.GroupID
	TimedOut bool
	Err      error
}

// RemoveOptions configures one Remove call.
type RemoveOptions struct {
	Groups       []cmn.GroupID
	CASTimestamp cmn.Timestamp // prepare-timeout watermark (spec §4.2)
	Timeout      time.Duration
}

// RemoveResult reports the per-group outcome of a Remove.
type RemoveResult struct {
	PerGroupErr map[cmn.GroupID]error
}

// Client is the storage client library's contract as seen by the
// recovery engine: routing, RPC, checksum validation, and iteration are
// all implemented on the other side of this interface.
type Client interface {
	Read(ctx context.Context, key cmn.Key, groups []cmn.GroupID, offset, size int64, opts ReadOptions) (ReadResult, error)
	Write(ctx context.Context, key cmn.Key, opts WriteOptions) (WriteResult, error)
	Remove(ctx context.Context, key cmn.Key, opts RemoveOptions) (RemoveResult, error)

	// Close releases the client handle. The driver holds the only
	// strong reference to the Client for the lifetime of a run (spec §3
	// invariant); state machines never retain it past their own
	// completion.
	Close() error
}
