package recovery

import (
	"context"

	"github.com/cortexdc/recovery/cmn"
	"github.com/cortexdc/recovery/storage"
)

// write performs one chunk's WRITING phase (spec §4.2): picks the write
// variant (single / prepare / plain / commit) from chunked-ness and
// position, targets diff ∪ missed minus read-only, and requires every
// targeted replica to succeed (the "strict checker"). On success it
// advances ctx.RecoveredSize; on failure it retries timeouts/no-route
// with doubled backoff up to cfg.MaxAttempts, then fails the key.
func (m *Machine) write(parent context.Context, res storage.ReadResult, first bool) bool {
	m.setState(StateWriting)

	targets := m.writeTargets()
	if len(targets) == 0 {
		// every diff/missed group was read-only: nothing writable, but
		// the chunk is still "recovered" from this machine's point of
		// view.
		m.ctx.RecoveredSize += int64(len(res.Data))
		return true
	}

	opts := storage.WriteOptions{
		Groups:        targets,
		Data:          res.Data,
		UserFlags:     m.ctx.UserFlags,
		DataTimestamp: m.ctx.DataTimestamp,
		JSONTimestamp: m.ctx.JSONTimestamp,
		CASTimestamp:  m.ctx.DataTimestamp,
	}

	last := m.ctx.RecoveredSize+int64(len(res.Data)) == m.ctx.TotalSize
	switch {
	case !m.ctx.Chunked:
		opts.Kind = storage.WriteSingle
		opts.JSON = res.JSON
		opts.DataCapacity = m.ctx.TotalSize
		opts.JSONCapacity = m.ctx.JSONCapacity
	case first:
		opts.Kind = storage.WritePrepare
		opts.JSON = res.JSON
		opts.DataCapacity = m.ctx.TotalSize
		opts.JSONCapacity = m.ctx.JSONCapacity
		opts.DataOffset = 0
	case last:
		opts.Kind = storage.WriteCommit
		opts.DataOffset = m.ctx.RecoveredSize
		opts.DataCommitSize = m.ctx.TotalSize
	default:
		opts.Kind = storage.WritePlain
		opts.DataOffset = m.ctx.RecoveredSize
	}

	m.ctx.Attempt = 0
	timeout := m.cfg.TimeoutFor(int64(len(res.Data)))
	if m.cfg.WriteTimeout > 0 {
		timeout = m.cfg.WriteTimeout
	}

	for {
		opts.Timeout = timeout
		wres, err := m.client.Write(parent, m.ctx.Key, opts)
		if err == nil {
			m.ctx.RecoveredSize += int64(len(res.Data))
			m.stats.Counter("remote_writes", int64(len(targets)))
			m.stats.Timer("write", writeKindLabel(opts.Kind))
			return true
		}

		if cmn.IsTransient(err) && m.ctx.Attempt < m.cfg.MaxAttempts {
			m.ctx.Attempt++
			timeout *= 2
			m.stats.Counter("remote_write_retries", 1)
			m.log.Warningf("recovery: %s: write to %v failed (%v), retrying (attempt %d) with timeout %s",
				m.ctx.Key, wres.Failed, err, m.ctx.Attempt, timeout)
			continue
		}

		m.stats.Counter("remote_writes", -int64(len(targets)))
		m.stats.Counter("skipped", 1)
		m.log.Errorf("recovery: %s: write to %v failed permanently: %v", m.ctx.Key, wres.Failed, err)
		return false
	}
}

func writeKindLabel(k storage.WriteKind) string {
	switch k {
	case storage.WriteSingle:
		return "single"
	case storage.WritePrepare:
		return "prepare"
	case storage.WritePlain:
		return "plain"
	case storage.WriteCommit:
		return "commit"
	default:
		return "unknown"
	}
}
