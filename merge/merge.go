// Package merge implements the authoritative-replica selection rule
// (spec §4.1): given the replica infos known for one key, decide which
// copy is authoritative and partition the configured groups into
// same/diff/missed sets.
/*
 * Copyright (c) 2024, CortexDC. All rights reserved.
 */
package merge

import (
	"sort"

	"github.com/cortexdc/recovery/cmn"
)

// Result is the outcome of selecting an authoritative replica among a
// key's known copies.
type Result struct {
	// Authoritative is the chosen replica: the lex-max (timestamp, size)
	// among the candidates, ties broken toward the earlier group in the
	// sort (stable).
	Authoritative cmn.ReplicaInfo

	// SameGroups already hold the authoritative (timestamp, size,
	// user_flags) triple.
	SameGroups map[cmn.GroupID]bool
	// DiffGroups hold some other, stale copy.
	DiffGroups map[cmn.GroupID]bool
	// MissedGroups hold no copy at all.
	MissedGroups map[cmn.GroupID]bool
}

// Skip reports whether the key needs no I/O at all: every configured
// group already holds the authoritative copy (spec §4.1 step 6, and the
// "merge correctness" testable property of §8).
func (r Result) Skip() bool {
	return len(r.DiffGroups) == 0 && len(r.MissedGroups) == 0
}

// Select computes the Result for one key from its known replicas and the
// full configured group set. It is pure and idempotent: callers that need
// to re-run selection after excluding some groups (the stale-read
// fallback of spec §4.2/§7) pass a non-nil exclude set rather than
// mutating replicas in place, so a group already excluded can never
// reappear in SameGroups — this closes the set-membership race flagged as
// an Open Question in spec.md §9.
//
// exclude only suppresses a group as a read candidate for choosing the
// authoritative replica and for SameGroups membership. It does not remove
// the group from consideration entirely: spec §4.2 requires an excluded
// group that still holds some copy to be demoted into DiffGroups so it
// gets (re)written, keeping same∪diff∪missed equal to the full configured
// group set (spec §3) for every call.
func Select(replicas []cmn.ReplicaInfo, groups []cmn.GroupID, exclude map[cmn.GroupID]bool) Result {
	res := Result{
		SameGroups:   make(map[cmn.GroupID]bool),
		DiffGroups:   make(map[cmn.GroupID]bool),
		MissedGroups: make(map[cmn.GroupID]bool),
	}

	authCandidates := make([]cmn.ReplicaInfo, 0, len(replicas))
	for _, r := range replicas {
		if !exclude[r.GroupID] {
			authCandidates = append(authCandidates, r)
		}
	}

	have := make(map[cmn.GroupID]bool, len(replicas))
	if len(authCandidates) == 0 {
		// No non-excluded replica survives to anchor an authoritative
		// choice; every remaining copy is untrustworthy or absent.
		for _, r := range replicas {
			have[r.GroupID] = true
			res.DiffGroups[r.GroupID] = true
		}
		for _, g := range groups {
			if !have[g] {
				res.MissedGroups[g] = true
			}
		}
		return res
	}

	// Sort descending by (timestamp, size): timestamp is primary truth,
	// size is the tie-break that catches partial-write divergence under
	// identical clocks (spec §4.1 rationale).
	sorted := append([]cmn.ReplicaInfo(nil), authCandidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return b.Timestamp.Less(a.Timestamp)
		}
		return a.Size > b.Size
	})
	auth := sorted[0]
	res.Authoritative = auth

	for _, r := range replicas {
		have[r.GroupID] = true
		if !exclude[r.GroupID] && r.MatchesAuthoritative(auth) {
			res.SameGroups[r.GroupID] = true
		} else {
			res.DiffGroups[r.GroupID] = true
		}
	}
	for _, g := range groups {
		if !have[g] {
			res.MissedGroups[g] = true
		}
	}
	return res
}
