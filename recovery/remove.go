package recovery

import (
	"context"

	"github.com/cortexdc/recovery/cmn"
	"github.com/cortexdc/recovery/storage"
)

// launchCorruptedRemovals starts a RemovingCorrupted subtask for every
// group in ctx.CorruptGroups that doesn't already have one running. Each
// subtask runs on its own goroutine, concurrently with the write chain
// (spec §4.2): the parent Machine's completion is gated on
// ctx.PendingOperations / m.removeWG, not on these subtasks finishing
// before WRITING does.
func (m *Machine) launchCorruptedRemovals(parent context.Context) {
	for g := range m.ctx.CorruptGroups {
		if m.removeLaunched[g] {
			continue
		}
		m.removeLaunched[g] = true
		m.ctx.PendingOperations.Inc()
		m.removeWG.Add(1)
		go m.removeCorrupted(parent, g)
	}
}

// removeCorrupted deletes this key's replica from group g, gated by
// cas_timestamp = the configured prepare-timeout watermark, so only
// replicas older than the watermark are removed (spec §4.2). Errors here
// never fail the key recovery — they only increment counters — except
// that they retry with doubled timeout up to cfg.MaxAttempts, matching
// the READ/WRITE retry policy.
func (m *Machine) removeCorrupted(parent context.Context, g cmn.GroupID) {
	defer m.ctx.PendingOperations.Dec()
	defer m.removeWG.Done()

	m.setState(StateRemovingCorrupted)
	attempt := 0
	timeout := m.cfg.TimeoutFor(0)
	if m.cfg.RemoveTimeout > 0 {
		timeout = m.cfg.RemoveTimeout
	}

	for {
		res, err := m.client.Remove(parent, m.ctx.Key, storage.RemoveOptions{
			Groups:       []cmn.GroupID{g},
			CASTimestamp: m.cfg.PrepareTimeoutWMark,
			Timeout:      timeout,
		})
		if err == nil {
			gerr := res.PerGroupErr[g]
			if cmn.IsAcceptableRemoveStatus(gerr) {
				m.stats.Counter("corrupted_replicas_removed", 1)
				return
			}
			if cmn.IsTransient(gerr) && attempt < m.cfg.MaxAttempts {
				attempt++
				timeout *= 2
				m.stats.Counter("corrupted_remove_retries", 1)
				continue
			}
			m.stats.Counter("corrupted_replicas_remove_failed", 1)
			m.log.Warningf("recovery: %s: remove corrupted replica in group %d failed: %v", m.ctx.Key, g, gerr)
			return
		}

		if cmn.IsTransient(err) && attempt < m.cfg.MaxAttempts {
			attempt++
			timeout *= 2
			m.stats.Counter("corrupted_remove_retries", 1)
			continue
		}
		m.stats.Counter("corrupted_replicas_remove_failed", 1)
		m.log.Warningf("recovery: %s: remove corrupted replica in group %d failed: %v", m.ctx.Key, g, err)
		return
	}
}
