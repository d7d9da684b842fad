// Package fastsend defines the integration contract for the companion
// "server-side send" recovery path: a fast-path optimization that
// bypasses the full recovery process for keys a source node can push
// directly to peers. Its internals are explicitly out of scope (spec
// §1: "its integration contract is specified, but its internals are
// not") — this package exists only so the driver has a named interface
// to invoke before falling back to the windowed scheduler for whatever
// keys the fast path declines.
/*
 * Copyright (c) 2024, CortexDC. All rights reserved.
 */
package fastsend

import (
	"context"

	"github.com/cortexdc/recovery/cmn"
)

// Sender is implemented by whatever server-side-send client the driver
// is wired with. It is never implemented in this module — a production
// deployment supplies its own, and tests supply a stub.
type Sender interface {
	// TrySend attempts the fast path for key against the given replica
	// groups. It reports which groups it succeeded against; any group
	// not in Handled still needs ordinary recovery. err is non-nil only
	// on a fatal, non-partial failure of the fast path itself (e.g. the
	// integration is unreachable) — a Sender that simply declines a key
	// (no peer-side push available) returns an empty Handled and a nil
	// error.
	TrySend(ctx context.Context, key cmn.Key, groups []cmn.GroupID) (Result, error)
}

// Result reports the outcome of one TrySend call.
type Result struct {
	// Handled lists the groups the fast path successfully brought in
	// sync; the caller must not run ordinary recovery against them.
	Handled []cmn.GroupID
}

// Disabled is a Sender that declines every key, used when
// --no-server-send is set (spec §6) or no fast-path integration is
// configured.
type Disabled struct{}

func (Disabled) TrySend(context.Context, cmn.Key, []cmn.GroupID) (Result, error) {
	return Result{}, nil
}
