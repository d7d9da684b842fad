package storage

import (
	"context"
	"sync"

	"github.com/cortexdc/recovery/cmn"
)

// MockClient is an in-memory fake implementing Client, used only by
// tests. It is hand-written scaffolding, not a production component: the
// spec treats the real storage client as out of scope, and no library in
// the example pack provides a fake for it.
type MockClient struct {
	mu sync.Mutex

	// byGroup[key][group] is the stored record, or absent if the group
	// has no copy.
	byGroup map[cmn.Key]map[cmn.GroupID]*record

	// ReadErr, if set, is returned verbatim from every Read regardless
	// of group (used to simulate an aggregate read failure).
	ReadErr error
	// CorruptGroups marks groups whose replica of any key returns
	// EILSEQ on read, until Remove clears the corruption.
	CorruptGroups map[cmn.GroupID]bool

	Closed bool
}

type record struct {
	data          []byte
	json          []byte
	userFlags     uint64
	dataTimestamp cmn.Timestamp
	jsonTimestamp cmn.Timestamp
	jsonCapacity  int64
	recordFlags   cmn.Flags
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		byGroup:       make(map[cmn.Key]map[cmn.GroupID]*record),
		CorruptGroups: make(map[cmn.GroupID]bool),
	}
}

// Seed pre-populates a group's copy of a key, as if it had always been
// there — used to set up the authoritative source in tests.
func (m *MockClient) Seed(key cmn.Key, gid cmn.GroupID, data, json []byte, userFlags uint64, ts cmn.Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byGroup[key] == nil {
		m.byGroup[key] = make(map[cmn.GroupID]*record)
	}
	m.byGroup[key][gid] = &record{data: append([]byte(nil), data...), json: append([]byte(nil), json...), userFlags: userFlags, dataTimestamp: ts, jsonTimestamp: ts}
}

func (m *MockClient) Read(_ context.Context, key cmn.Key, groups []cmn.GroupID, offset, size int64, opts ReadOptions) (ReadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReadErr != nil {
		return ReadResult{PerReplicaErrors: errsForGroups(groups, m.ReadErr)}, m.ReadErr
	}

	var best *record
	var bestGID cmn.GroupID
	var perErr []ReplicaError
	// "succeed if any replica returns": scan every targeted group so a
	// corrupted replica is detected even when another one in the same
	// call succeeds.
	for _, g := range groups {
		if m.CorruptGroups[g] {
			perErr = append(perErr, ReplicaError{GroupID: g, Err: errEILSEQ})
			continue
		}
		r := m.byGroup[key][g]
		if r == nil {
			perErr = append(perErr, ReplicaError{GroupID: g, Err: errENOENT})
			continue
		}
		if best == nil {
			best = r
			bestGID = g
		}
	}
	if best == nil {
		return ReadResult{PerReplicaErrors: perErr}, errAllFailed
	}
	_ = bestGID

	end := offset + size
	if size <= 0 || end > int64(len(best.data)) {
		end = int64(len(best.data))
	}
	if offset > end {
		offset = end
	}
	res := ReadResult{
		Data:          append([]byte(nil), best.data[offset:end]...),
		RecordSize:    int64(len(best.data)),
		UserFlags:     best.userFlags,
		DataTimestamp: best.dataTimestamp,
		JSONTimestamp: best.jsonTimestamp,
		JSONCapacity:  best.jsonCapacity,
		RecordFlags:   best.recordFlags,

		PerReplicaErrors: perErr,
	}
	if opts.FetchJSON {
		res.JSON = append([]byte(nil), best.json...)
	}
	return res, nil
}

func (m *MockClient) Write(_ context.Context, key cmn.Key, opts WriteOptions) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byGroup[key] == nil {
		m.byGroup[key] = make(map[cmn.GroupID]*record)
	}

	var failed []cmn.GroupID
	for _, g := range opts.Groups {
		cur := m.byGroup[key][g]
		if cur != nil && opts.CASTimestamp.Less(cur.dataTimestamp) {
			// CAS safety: current copy is strictly newer than the source, reject.
			failed = append(failed, g)
			continue
		}
		rec := m.byGroup[key][g]
		if rec == nil {
			rec = &record{}
			m.byGroup[key][g] = rec
		}
		switch opts.Kind {
		case WriteSingle:
			rec.data = append([]byte(nil), opts.Data...)
			rec.json = append([]byte(nil), opts.JSON...)
		case WritePrepare:
			rec.data = make([]byte, opts.DataCapacity)
			copy(rec.data, opts.Data)
			rec.json = append([]byte(nil), opts.JSON...)
			rec.jsonCapacity = opts.JSONCapacity
		case WritePlain:
			if int64(len(rec.data)) < opts.DataOffset+int64(len(opts.Data)) {
				grown := make([]byte, opts.DataOffset+int64(len(opts.Data)))
				copy(grown, rec.data)
				rec.data = grown
			}
			copy(rec.data[opts.DataOffset:], opts.Data)
		case WriteCommit:
			if int64(len(rec.data)) < opts.DataOffset+int64(len(opts.Data)) {
				grown := make([]byte, opts.DataOffset+int64(len(opts.Data)))
				copy(grown, rec.data)
				rec.data = grown
			}
			copy(rec.data[opts.DataOffset:], opts.Data)
			if int64(len(rec.data)) > opts.DataCommitSize {
				rec.data = rec.data[:opts.DataCommitSize]
			}
		}
		rec.userFlags = opts.UserFlags
		rec.dataTimestamp = opts.DataTimestamp
		rec.jsonTimestamp = opts.JSONTimestamp
	}
	if len(failed) > 0 {
		return WriteResult{Failed: failed}, errCASRejected
	}
	return WriteResult{}, nil
}

func (m *MockClient) Remove(_ context.Context, key cmn.Key, opts RemoveOptions) (RemoveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := RemoveResult{PerGroupErr: make(map[cmn.GroupID]error)}
	for _, g := range opts.Groups {
		cur := m.byGroup[key][g]
		if cur == nil {
			res.PerGroupErr[g] = errENOENT
			continue
		}
		if !cur.dataTimestamp.Less(opts.CASTimestamp) {
			res.PerGroupErr[g] = errCASRejected
			continue
		}
		delete(m.byGroup[key], g)
		delete(m.CorruptGroups, g)
	}
	return res, nil
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func errsForGroups(groups []cmn.GroupID, err error) []ReplicaError {
	out := make([]ReplicaError, 0, len(groups))
	for _, g := range groups {
		out = append(out, ReplicaError{GroupID: g, Err: err})
	}
	return out
}
