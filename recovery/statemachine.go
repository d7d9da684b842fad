package recovery

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/cortexdc/recovery/cmn"
	"github.com/cortexdc/recovery/merge"
	"github.com/cortexdc/recovery/storage"
)

// State is one of the explicit phases DESIGN NOTES §9 asks for, in place
// of the original's class-with-many-session-fields.
type State int32

const (
	StateInit State = iota
	StateReadingFirst
	StateReadingMore
	StateWriting
	StateRemovingCorrupted
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReadingFirst:
		return "reading-first"
	case StateReadingMore:
		return "reading-more"
	case StateWriting:
		return "writing"
	case StateRemovingCorrupted:
		return "removing-corrupted"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// outcome is the result of one read/write cycle through readWriteLoop.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeFail
	outcomePromote // stale-read fallback: re-run INIT after excluding a group
)

// Machine drives one key through INIT -> READING -> WRITING -> (READING |
// DONE_OK | DONE_FAIL), with an orthogonal RemovingCorrupted subtask that
// must complete before DONE (spec §4.2).
type Machine struct {
	cfg    *cmn.Config
	client storage.Client
	log    cmn.Logger
	stats  Stats
	groups []cmn.GroupID

	ctx *Context
	// state is written from both the Machine's own goroutine (INIT /
	// READING / WRITING / DONE) and concurrently-running
	// removeCorrupted goroutines (RemovingCorrupted), so it's an atomic
	// rather than a plain field (mirrors ctx.PendingOperations).
	state atomic.Int32

	removeWG       sync.WaitGroup
	removeLaunched map[cmn.GroupID]bool

	corruptLog *cmn.CorruptedKeysLog
}

// State returns the machine's current phase.
func (m *Machine) State() State { return State(m.state.Load()) }

func (m *Machine) setState(s State) { m.state.Store(int32(s)) }

// SetCorruptedKeysLog attaches the durable corrupted-keys log (spec.md
// §6's "corrupted-keys log file"). Optional: a nil log (the default)
// simply skips the append, which is what every test does.
func (m *Machine) SetCorruptedKeysLog(l *cmn.CorruptedKeysLog) { m.corruptLog = l }

// New constructs a Machine for one key. groups is the full configured
// group set (spec §3: same ∪ diff ∪ missed must equal it).
func New(cfg *cmn.Config, client storage.Client, log cmn.Logger, stats Stats, groups []cmn.GroupID, in Input) *Machine {
	// state's zero value is StateInit (State's first iota), so no
	// explicit initialization is needed.
	return &Machine{
		cfg:            cfg,
		client:         client,
		log:            log,
		stats:          stats,
		groups:         groups,
		ctx:            newContext(in),
		removeLaunched: make(map[cmn.GroupID]bool),
	}
}

// Key returns the key this Machine recovers, for logging/reporting by the
// scheduler.
func (m *Machine) Key() cmn.Key { return m.ctx.Key }

// Run drives the key to completion and reports the per-key boolean
// result the scheduler ANDs across all keys (spec §7). It never blocks an
// OS thread beyond what the caller's own goroutine budget allows: Run is
// meant to be invoked from within the windowed scheduler's bounded pool.
func (m *Machine) Run(parent context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err := cmn.Wrapf(asError(r), "recovery: %s: panic in state machine", m.ctx.Key)
			m.log.Errorf("%+v", err)
			m.stats.Counter("fatal_local", -1)
			ok = false
		}
	}()

	for {
		skip, proceed := m.runInit()
		if skip {
			m.stats.Counter("recovered_keys", 1)
			return true
		}
		if !proceed {
			m.stats.Counter("recovered_keys", -1)
			m.stats.Counter("skipped", -1)
			return false
		}

		switch m.readWriteLoop(parent) {
		case outcomePromote:
			continue
		case outcomeOK:
			m.waitPendingRemovals()
			m.logCorruption()
			m.stats.Counter("recovered_keys", 1)
			m.setState(StateDone)
			return true
		default:
			m.waitPendingRemovals()
			m.logCorruption()
			m.stats.Counter("recovered_keys", -1)
			m.stats.Counter("skipped", 1)
			m.setState(StateDone)
			return false
		}
	}
}

// runInit computes the merge/authoritative selection (spec §4.1) and
// prepares ctx for the read/write loop. skip=true means the key needed no
// I/O at all; proceed=false means every replica is already excluded and
// there is nothing left to try.
func (m *Machine) runInit() (skip, proceed bool) {
	m.setState(StateInit)
	res := merge.Select(m.ctx.Replicas, m.groups, m.ctx.excluded)

	// --user-flags filter (SPEC_FULL §12): a configured mask makes INIT
	// skip any key whose authoritative user_flags doesn't carry every
	// masked bit, before the same/diff/missed sets are used for anything.
	// A mask of 0 disables the filter; a key with no known replica at all
	// has no authoritative user_flags to test against.
	if m.cfg.UserFlagsMask != 0 && len(m.ctx.Replicas) > 0 &&
		res.Authoritative.UserFlags&m.cfg.UserFlagsMask != m.cfg.UserFlagsMask {
		m.stats.Counter("skip_user_flags_filter", 1)
		return true, false
	}

	if res.Skip() {
		return true, false
	}

	m.ctx.SameGroups = res.SameGroups
	m.ctx.DiffGroups = res.DiffGroups
	m.ctx.MissedGroups = res.MissedGroups
	if len(m.ctx.SameGroups) == 0 {
		// every candidate replica has been excluded by prior failed
		// read attempts; nothing left to read from.
		return false, false
	}
	m.ctx.TotalSize = res.Authoritative.Size
	m.ctx.Chunked = m.cfg.ChunkSize > 0 && m.ctx.TotalSize > m.cfg.ChunkSize
	m.ctx.RecoveredSize = 0
	m.ctx.Attempt = 0
	return false, true
}

// writeTargets returns diff ∪ missed, minus any group configured
// read-only (spec §4.2 "filter the intended write group set by removing
// read-only groups"), counting skipped ones.
func (m *Machine) writeTargets() []cmn.GroupID {
	targets := make([]cmn.GroupID, 0, len(m.ctx.DiffGroups)+len(m.ctx.MissedGroups))
	for g := range m.ctx.DiffGroups {
		if m.cfg.IsReadOnly(g) {
			m.stats.Counter("skip_write_ro_group", 1)
			continue
		}
		targets = append(targets, g)
	}
	for g := range m.ctx.MissedGroups {
		if m.cfg.IsReadOnly(g) {
			m.stats.Counter("skip_write_ro_group", 1)
			continue
		}
		targets = append(targets, g)
	}
	return targets
}

// sameGroupList returns ctx.SameGroups as a slice for Client.Read.
func (m *Machine) sameGroupList() []cmn.GroupID {
	out := make([]cmn.GroupID, 0, len(m.ctx.SameGroups))
	for g := range m.ctx.SameGroups {
		out = append(out, g)
	}
	return out
}

// readWriteLoop drives the chunk loop: READING the next chunk, then
// WRITING it, repeating until the whole object is recovered or a phase
// fails terminally.
func (m *Machine) readWriteLoop(parent context.Context) outcome {
	for {
		first := m.ctx.RecoveredSize == 0
		res, status := m.read(parent, first)
		switch status {
		case readOutcomeFailExhausted:
			return outcomeFail
		case readOutcomePromote:
			return outcomePromote
		}

		if !m.cfg.DryRun {
			m.launchCorruptedRemovals(parent)
		}

		if !m.ctx.pinned {
			m.ctx.pin(pinnable{
				UserFlags:     res.UserFlags,
				DataTimestamp: res.DataTimestamp,
				JSONTimestamp: res.JSONTimestamp,
				JSONCapacity:  res.JSONCapacity,
				RecordFlags:   res.RecordFlags,
			})
			if res.RecordSize != m.ctx.TotalSize {
				// iterator snapshot was stale; recompute chunking off
				// the replica's real size (spec §4.2).
				m.ctx.TotalSize = res.RecordSize
				m.ctx.Chunked = m.cfg.ChunkSize > 0 && m.ctx.TotalSize > m.cfg.ChunkSize
			}
		}

		if m.cfg.DryRun {
			m.ctx.RecoveredSize = m.ctx.TotalSize
			return outcomeOK
		}

		if !m.write(parent, res, first) {
			return outcomeFail
		}
		if m.ctx.RecoveredSize >= m.ctx.TotalSize {
			return outcomeOK
		}
		m.ctx.Attempt = 0 // next chunk gets its own retry budget
	}
}

func (m *Machine) waitPendingRemovals() {
	m.removeWG.Wait()
}

// logCorruption appends one durable record for this key if any replica
// was found corrupted during this run (spec.md §6 "corrupted-keys log
// file"); a no-op when ctx.CorruptGroups is empty or no log is attached.
func (m *Machine) logCorruption() {
	if len(m.ctx.CorruptGroups) == 0 {
		return
	}
	groups := make([]cmn.GroupID, 0, len(m.ctx.CorruptGroups))
	for g := range m.ctx.CorruptGroups {
		groups = append(groups, g)
	}
	if err := m.corruptLog.Append(m.ctx.Key, groups); err != nil {
		m.log.Warningf("recovery: %s: corrupted-keys log append failed: %v", m.ctx.Key, err)
	}
}

func asError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errPanic{v: r}
}

type errPanic struct{ v interface{} }

func (e errPanic) Error() string { return "panic: " + formatPanic(e.v) }

func formatPanic(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "non-string panic value"
}
