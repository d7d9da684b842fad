package recovery

import (
	"context"

	"github.com/cortexdc/recovery/cmn"
	"github.com/cortexdc/recovery/storage"
)

type readOutcome int

const (
	readOutcomeOK readOutcome = iota
	readOutcomeFailExhausted
	readOutcomePromote
)

// read performs one chunk's READING phase (spec §4.2), retrying on
// timeout with doubled backoff up to cfg.MaxAttempts, and falling back to
// promoting the next-best candidate replicas if every same-group replica
// fails non-retriably but other candidates remain.
func (m *Machine) read(parent context.Context, first bool) (storage.ReadResult, readOutcome) {
	if first {
		m.setState(StateReadingFirst)
	} else {
		m.setState(StateReadingMore)
	}

	size := m.ctx.TotalSize - m.ctx.RecoveredSize
	if m.ctx.Chunked && size > m.cfg.ChunkSize {
		size = m.cfg.ChunkSize
	}
	offset := m.ctx.RecoveredSize

	timeout := m.cfg.TimeoutFor(size)
	if m.cfg.ReadTimeout > 0 {
		timeout = m.cfg.ReadTimeout
	}
	groups := m.sameGroupList()

	for {
		opts := storage.ReadOptions{
			FetchJSON: first,
			Timeout:   timeout,
			// Only the first chunk validates checksums unconditionally;
			// subsequent chunks only if the record says its checksums
			// were computed per-chunk (spec §4.2).
			VerifyChecksum: first || m.ctx.RecordFlags.Has(cmn.FlagChunkedChecksum),
		}

		res, err := m.client.Read(parent, m.ctx.Key, groups, offset, size, opts)
		m.recordCorruption(res.PerReplicaErrors)

		if err == nil {
			m.stats.Timer("read", "done")
			return res, readOutcomeOK
		}

		if cmn.IsTransient(err) && m.ctx.Attempt < m.cfg.MaxAttempts {
			m.ctx.Attempt++
			timeout *= 2
			m.stats.Counter("local_read_retries", 1)
			m.log.Warningf("recovery: %s: read timed out, retrying (attempt %d) with timeout %s", m.ctx.Key, m.ctx.Attempt, timeout)
			continue
		}

		if m.hasPromotionCandidate() {
			for g := range m.ctx.SameGroups {
				m.ctx.excluded[g] = true
			}
			m.stats.Counter("stale_read_fallback", 1)
			return res, readOutcomePromote
		}

		m.stats.Counter("skipped", 1)
		return res, readOutcomeFailExhausted
	}
}

// recordCorruption adds groups whose replica returned a checksum error to
// ctx.CorruptGroups, skipping groups configured read-only or running with
// --safe (spec §3/§4.2: corrupted replicas in read-only groups are never
// removed, only counted).
func (m *Machine) recordCorruption(errs []storage.ReplicaError) {
	for _, e := range errs {
		if !cmn.IsCorrupted(e.Err) {
			continue
		}
		if m.cfg.IsReadOnly(e.GroupID) {
			m.stats.Counter("skip_remove_corrupted_key_from_ro_group", 1)
			continue
		}
		if m.cfg.Safe {
			m.stats.Counter("skip_remove_corrupted_key_safe_mode", 1)
			continue
		}
		m.ctx.CorruptGroups[e.GroupID] = true
	}
}

// hasPromotionCandidate reports whether ctx.Replicas names a group that
// is neither already in SameGroups nor already excluded — i.e. there is
// a next-best replica left to promote (spec §4.2).
func (m *Machine) hasPromotionCandidate() bool {
	for _, r := range m.ctx.Replicas {
		if m.ctx.SameGroups[r.GroupID] || m.ctx.excluded[r.GroupID] {
			continue
		}
		return true
	}
	return false
}
