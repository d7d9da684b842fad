package recovery

import (
	"context"
	"sync"
	"testing"

	"github.com/cortexdc/recovery/cmn"
	"github.com/cortexdc/recovery/storage"
)

// fakeStats is a minimal in-memory Stats for assertions in tests.
type fakeStats struct {
	mu       sync.Mutex
	counters map[string]int64
	children map[string]*fakeStats
}

func newFakeStats() *fakeStats {
	return &fakeStats{counters: make(map[string]int64), children: make(map[string]*fakeStats)}
}

func (f *fakeStats) Counter(name string, delta int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[name] += delta
}
func (f *fakeStats) SetCounter(name string, value int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[name] = value
}
func (f *fakeStats) Timer(string, string)            {}
func (f *fakeStats) Attribute(string, interface{})   {}
func (f *fakeStats) Child(name string) Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.children[name] == nil {
		f.children[name] = newFakeStats()
	}
	return f.children[name]
}
func (f *fakeStats) get(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[name]
}

func testConfig() *cmn.Config {
	return &cmn.Config{
		MaxAttempts:  3,
		ChunkSize:    64,
		DataFlowRate: 0,
	}
}

func mustKey(t *testing.T, b byte) cmn.Key {
	t.Helper()
	var k cmn.Key
	k[0] = b
	return k
}

// Scenario 1 from spec §8: all replicas in sync, zero I/O, success.
func TestMachineAllInSyncSkip(t *testing.T) {
	key := mustKey(t, 1)
	client := storage.NewMockClient()
	ts := cmn.Timestamp{Sec: 100}
	client.Seed(key, 1, []byte("hello"), nil, 0x7, ts)
	client.Seed(key, 2, []byte("hello"), nil, 0x7, ts)
	client.Seed(key, 3, []byte("hello"), nil, 0x7, ts)

	replicas := []cmn.ReplicaInfo{
		{GroupID: 1, Timestamp: ts, Size: 5, UserFlags: 0x7},
		{GroupID: 2, Timestamp: ts, Size: 5, UserFlags: 0x7},
		{GroupID: 3, Timestamp: ts, Size: 5, UserFlags: 0x7},
	}
	stats := newFakeStats()
	m := New(testConfig(), client, cmn.NopLogger{}, stats, []cmn.GroupID{1, 2, 3}, Input{Key: key, Replicas: replicas})

	if ok := m.Run(context.Background()); !ok {
		t.Fatalf("expected success")
	}
	if got := stats.get("recovered_keys"); got != 1 {
		t.Fatalf("expected recovered_keys=1, got %d", got)
	}
}

// SPEC_FULL §12: --user-flags filter skips a key whose authoritative
// user_flags doesn't carry every masked bit, doing zero I/O.
func TestMachineUserFlagsFilterSkips(t *testing.T) {
	key := mustKey(t, 20)
	client := storage.NewMockClient()
	ts := cmn.Timestamp{Sec: 100}

	replicas := []cmn.ReplicaInfo{
		{GroupID: 1, Timestamp: ts, Size: 5, UserFlags: 0x1},
		{GroupID: 2, Timestamp: cmn.Timestamp{Sec: 50}, Size: 5, UserFlags: 0x1},
	}
	stats := newFakeStats()
	cfg := testConfig()
	cfg.UserFlagsMask = 0x2 // authoritative (group 1) carries only 0x1
	m := New(cfg, client, cmn.NopLogger{}, stats, []cmn.GroupID{1, 2}, Input{Key: key, Replicas: replicas})

	if ok := m.Run(context.Background()); !ok {
		t.Fatalf("expected success (filtered, not failed)")
	}
	if got := stats.get("skip_user_flags_filter"); got != 1 {
		t.Fatalf("expected skip_user_flags_filter=1, got %d", got)
	}
	if got := stats.get("remote_writes"); got != 0 {
		t.Fatalf("expected zero writes for a filtered key, got %d", got)
	}
	if got := stats.get("local_read_retries"); got != 0 {
		t.Fatalf("expected zero read retries for a filtered key, got %d", got)
	}
}

// Scenario 2 from spec §8: two-way divergence, read from G1, write to {2,3}.
func TestMachineTwoWayDivergence(t *testing.T) {
	key := mustKey(t, 2)
	client := storage.NewMockClient()
	tsNew := cmn.Timestamp{Sec: 200}
	tsOld := cmn.Timestamp{Sec: 100}
	client.Seed(key, 1, []byte("new-data-content"), []byte(`{"a":1}`), 0, tsNew)
	client.Seed(key, 2, []byte("stale-data"), nil, 0, tsOld)
	// group 3 missing entirely

	replicas := []cmn.ReplicaInfo{
		{GroupID: 1, Timestamp: tsNew, Size: int64(len("new-data-content"))},
		{GroupID: 2, Timestamp: tsOld, Size: int64(len("stale-data"))},
	}
	stats := newFakeStats()
	cfg := testConfig()
	m := New(cfg, client, cmn.NopLogger{}, stats, []cmn.GroupID{1, 2, 3}, Input{Key: key, Replicas: replicas})

	if ok := m.Run(context.Background()); !ok {
		t.Fatalf("expected success")
	}
	if got := stats.get("remote_writes"); got != 2 {
		t.Fatalf("expected remote_writes=2 (groups 2 and 3), got %d", got)
	}

	res, err := client.Read(context.Background(), key, []cmn.GroupID{2}, 0, 0, storage.ReadOptions{})
	if err != nil {
		t.Fatalf("read back group 2: %v", err)
	}
	if string(res.Data) != "new-data-content" {
		t.Fatalf("expected group 2 to have propagated data, got %q", res.Data)
	}
	res3, err := client.Read(context.Background(), key, []cmn.GroupID{3}, 0, 0, storage.ReadOptions{})
	if err != nil {
		t.Fatalf("read back group 3: %v", err)
	}
	if string(res3.Data) != "new-data-content" {
		t.Fatalf("expected group 3 to have propagated data, got %q", res3.Data)
	}
}

// Scenario 3 from spec §8: chunked recovery of size 3*chunk+1.
func TestMachineChunkedRecovery(t *testing.T) {
	key := mustKey(t, 3)
	client := storage.NewMockClient()
	chunk := int64(8)
	total := 3*chunk + 1
	data := make([]byte, total)
	for i := range data {
		data[i] = byte(i)
	}
	ts := cmn.Timestamp{Sec: 100}
	client.Seed(key, 1, data, []byte("j"), 0, ts)

	replicas := []cmn.ReplicaInfo{
		{GroupID: 1, Timestamp: ts, Size: total},
	}
	stats := newFakeStats()
	cfg := testConfig()
	cfg.ChunkSize = chunk
	m := New(cfg, client, cmn.NopLogger{}, stats, []cmn.GroupID{1, 2}, Input{Key: key, Replicas: replicas})

	if ok := m.Run(context.Background()); !ok {
		t.Fatalf("expected success")
	}
	res, err := client.Read(context.Background(), key, []cmn.GroupID{2}, 0, 0, storage.ReadOptions{})
	if err != nil {
		t.Fatalf("read back group 2: %v", err)
	}
	if int64(len(res.Data)) != total {
		t.Fatalf("expected %d bytes recovered, got %d", total, len(res.Data))
	}
	for i := range data {
		if res.Data[i] != data[i] {
			t.Fatalf("byte %d mismatch: want %d got %d", i, data[i], res.Data[i])
		}
	}
}

// Scenario 5 from spec §8: corrupted replica triggers a parallel remove,
// which must complete alongside the write chain before DONE.
func TestMachineCorruptedReplicaRemoved(t *testing.T) {
	key := mustKey(t, 5)
	client := storage.NewMockClient()
	ts := cmn.Timestamp{Sec: 100}
	client.Seed(key, 1, []byte("authoritative"), nil, 0, ts)
	client.Seed(key, 2, []byte("authoritative"), nil, 0, ts)
	client.CorruptGroups[2] = true

	// Both replicas share the authoritative (timestamp, size, user_flags)
	// triple — group 2 lands in SameGroups despite being corrupted: the
	// merge rule is metadata-only and can't see the checksum failure
	// until the read actually happens (spec §4.2).
	replicas := []cmn.ReplicaInfo{
		{GroupID: 1, Timestamp: ts, Size: int64(len("authoritative"))},
		{GroupID: 2, Timestamp: ts, Size: int64(len("authoritative"))},
	}
	stats := newFakeStats()
	cfg := testConfig()
	cfg.PrepareTimeoutWMark = cmn.Timestamp{Sec: 1_000_000}
	m := New(cfg, client, cmn.NopLogger{}, stats, []cmn.GroupID{1, 2, 3}, Input{Key: key, Replicas: replicas})

	if ok := m.Run(context.Background()); !ok {
		t.Fatalf("expected success")
	}
	if got := stats.get("corrupted_replicas_removed"); got != 1 {
		t.Fatalf("expected corrupted_replicas_removed=1, got %d", got)
	}
}

// A corrupted replica in a read-only group must be counted, never
// removed (spec §3/§8 "No write to read-only").
func TestMachineCorruptedReplicaInReadOnlyGroupIsNotRemoved(t *testing.T) {
	key := mustKey(t, 6)
	client := storage.NewMockClient()
	ts := cmn.Timestamp{Sec: 100}
	client.Seed(key, 1, []byte("authoritative"), nil, 0, ts)
	client.Seed(key, 2, []byte("authoritative"), nil, 0, ts)
	client.CorruptGroups[2] = true

	replicas := []cmn.ReplicaInfo{
		{GroupID: 1, Timestamp: ts, Size: int64(len("authoritative"))},
		{GroupID: 2, Timestamp: ts, Size: int64(len("authoritative"))},
	}
	stats := newFakeStats()
	cfg := testConfig()
	cfg.ReadOnlyGroups = map[cmn.GroupID]bool{2: true}
	// group 3 is missing, so the key is not skipped and the read that
	// detects group 2's corruption actually happens.
	m := New(cfg, client, cmn.NopLogger{}, stats, []cmn.GroupID{1, 2, 3}, Input{Key: key, Replicas: replicas})

	if ok := m.Run(context.Background()); !ok {
		t.Fatalf("expected success")
	}
	if got := stats.get("skip_remove_corrupted_key_from_ro_group"); got != 1 {
		t.Fatalf("expected skip_remove_corrupted_key_from_ro_group=1, got %d", got)
	}
	if got := stats.get("corrupted_replicas_removed"); got != 0 {
		t.Fatalf("expected no removal against a read-only group, got %d", got)
	}
}

// Scenario 6 from spec §8: stale read-cluster fallback.
func TestMachineStaleReadFallback(t *testing.T) {
	key := mustKey(t, 7)
	client := storage.NewMockClient()
	tsNewer := cmn.Timestamp{Sec: 300}
	tsOlder := cmn.Timestamp{Sec: 200}
	// group 1 "has" the newest timestamp, but it is never seeded, so the
	// mock's read from it fails with every targeted replica missing: a
	// non-retriable aggregate failure.
	client.Seed(key, 2, []byte("from-group-2"), nil, 0, tsOlder)

	replicas := []cmn.ReplicaInfo{
		{GroupID: 1, Timestamp: tsNewer, Size: 1},
		{GroupID: 2, Timestamp: tsOlder, Size: int64(len("from-group-2"))},
	}
	stats := newFakeStats()
	cfg := testConfig()
	m := New(cfg, client, cmn.NopLogger{}, stats, []cmn.GroupID{1, 2, 3}, Input{Key: key, Replicas: replicas})

	if ok := m.Run(context.Background()); !ok {
		t.Fatalf("expected success after promoting group 2")
	}
	if got := stats.get("stale_read_fallback"); got != 1 {
		t.Fatalf("expected stale_read_fallback=1, got %d", got)
	}

	// Scenario 6 also requires group 1 (excluded as a read source, not
	// dropped from consideration) to get written with the promoted data
	// (spec §4.2, §8: "reads from G2, writes to others").
	got, err := client.Read(context.Background(), key, []cmn.GroupID{1}, 0, -1, storage.ReadOptions{})
	if err != nil {
		t.Fatalf("expected group 1 to have been written, read failed: %v", err)
	}
	if string(got.Data) != "from-group-2" {
		t.Fatalf("expected group 1 to hold the promoted data, got %q", got.Data)
	}
}
