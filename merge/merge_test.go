package merge

import (
	"testing"

	"github.com/cortexdc/recovery/cmn"
)

func replica(gid cmn.GroupID, sec int64, size int64, flags uint64) cmn.ReplicaInfo {
	return cmn.ReplicaInfo{
		GroupID:   gid,
		Timestamp: cmn.Timestamp{Sec: sec},
		Size:      size,
		UserFlags: flags,
	}
}

func TestSelectAllInSyncSkips(t *testing.T) {
	replicas := []cmn.ReplicaInfo{
		replica(1, 100, 10, 0x7),
		replica(2, 100, 10, 0x7),
		replica(3, 100, 10, 0x7),
	}
	res := Select(replicas, []cmn.GroupID{1, 2, 3}, nil)
	if !res.Skip() {
		t.Fatalf("expected Skip() = true, got diff=%v missed=%v", res.DiffGroups, res.MissedGroups)
	}
	if len(res.SameGroups) != 3 {
		t.Fatalf("expected all 3 groups in SameGroups, got %v", res.SameGroups)
	}
}

func TestSelectTwoWayDivergence(t *testing.T) {
	replicas := []cmn.ReplicaInfo{
		replica(1, 200, 20, 0),
		replica(2, 100, 20, 0),
	}
	res := Select(replicas, []cmn.GroupID{1, 2, 3}, nil)
	if res.Skip() {
		t.Fatalf("expected Skip() = false")
	}
	if !res.SameGroups[1] {
		t.Fatalf("expected group 1 authoritative, got same=%v", res.SameGroups)
	}
	if !res.DiffGroups[2] {
		t.Fatalf("expected group 2 diff, got %v", res.DiffGroups)
	}
	if !res.MissedGroups[3] {
		t.Fatalf("expected group 3 missed, got %v", res.MissedGroups)
	}
	if res.Authoritative.GroupID != 1 {
		t.Fatalf("expected authoritative replica from group 1, got %d", res.Authoritative.GroupID)
	}
}

func TestSelectSizeTieBreak(t *testing.T) {
	replicas := []cmn.ReplicaInfo{
		replica(1, 100, 10, 0),
		replica(2, 100, 20, 0), // same timestamp, bigger size wins
	}
	res := Select(replicas, []cmn.GroupID{1, 2}, nil)
	if res.Authoritative.GroupID != 2 {
		t.Fatalf("expected group 2 (larger size) authoritative, got %d", res.Authoritative.GroupID)
	}
	if !res.DiffGroups[1] {
		t.Fatalf("expected group 1 diff (partial write), got %v", res.DiffGroups)
	}
}

func TestSelectUserFlagsMustMatch(t *testing.T) {
	replicas := []cmn.ReplicaInfo{
		replica(1, 100, 10, 0x1),
		replica(2, 100, 10, 0x2),
	}
	res := Select(replicas, []cmn.GroupID{1, 2}, nil)
	if res.Skip() {
		t.Fatalf("user_flags differ, must not skip")
	}
	if !res.DiffGroups[2] {
		t.Fatalf("expected group 2 (mismatched user_flags) in diff, got %v", res.DiffGroups)
	}
}

// TestSelectPromotionIsIdempotent covers the Open Question in spec.md §9:
// re-running Select with the previously-same group excluded must never
// let that group reappear in SameGroups, and the next-best candidate must
// become authoritative cleanly.
func TestSelectPromotionIsIdempotent(t *testing.T) {
	replicas := []cmn.ReplicaInfo{
		replica(1, 300, 10, 0), // newest, but will fail to read (excluded)
		replica(2, 100, 10, 0), // older candidate, promoted next
	}
	first := Select(replicas, []cmn.GroupID{1, 2}, nil)
	if first.Authoritative.GroupID != 1 {
		t.Fatalf("expected group 1 authoritative initially")
	}

	exclude := map[cmn.GroupID]bool{1: true}
	second := Select(replicas, []cmn.GroupID{1, 2}, exclude)
	if second.SameGroups[1] {
		t.Fatalf("excluded group 1 must never reappear in SameGroups: %v", second.SameGroups)
	}
	if second.Authoritative.GroupID != 2 {
		t.Fatalf("expected group 2 promoted to authoritative, got %d", second.Authoritative.GroupID)
	}
	if !second.DiffGroups[1] {
		// group 1 is excluded as a read source, but it still holds a
		// copy, so it is demoted into DiffGroups (spec §4.2) rather than
		// dropped from consideration: it must still be (re)written.
		t.Fatalf("excluded group 1 must be demoted into DiffGroups, got diff=%v missed=%v", second.DiffGroups, second.MissedGroups)
	}
	if second.MissedGroups[1] {
		t.Fatalf("excluded group 1 has a replica, must not be counted missed: %v", second.MissedGroups)
	}
}
