package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTreeCounterAggregation(t *testing.T) {
	tree := NewTree()
	tree.apply(Event{Path: []string{"key:ab"}, Name: "local_reads", Kind: EventCounter, Delta: 1})
	tree.apply(Event{Path: []string{"key:ab"}, Name: "local_reads", Kind: EventCounter, Delta: 1})
	tree.apply(Event{Path: []string{"key:ab"}, Name: "local_reads", Kind: EventCounter, Delta: -1})

	n := tree.root.children["key:ab"]
	if n == nil {
		t.Fatalf("expected child node for key:ab")
	}
	c := n.counters["local_reads"]
	if c.Success != 2 || c.Failures != 1 {
		t.Fatalf("expected success=2 failures=1, got %+v", c)
	}
}

func TestSetCounterResetsOnZero(t *testing.T) {
	tree := NewTree()
	tree.apply(Event{Name: "n", Kind: EventSetCounter, Delta: 5})
	tree.apply(Event{Name: "n", Kind: EventSetCounter, Delta: -3})
	tree.apply(Event{Name: "n", Kind: EventSetCounter, Delta: 0})

	c := tree.root.counters["n"]
	if c.Success != 0 || c.Failures != 0 {
		t.Fatalf("expected set_counter(0) to clear both, got %+v", c)
	}
}

func TestTimerPreservesArrivalOrder(t *testing.T) {
	tree := NewTree()
	t0 := time.Now()
	tree.apply(Event{Name: "io", Kind: EventTimer, Milestone: "start", At: t0})
	tree.apply(Event{Name: "io", Kind: EventTimer, Milestone: "end", At: t0.Add(time.Second)})

	entries := tree.root.timers["io"]
	if len(entries) != 2 || entries[0].Milestone != "start" || entries[1].Milestone != "end" {
		t.Fatalf("expected ordered [start, end], got %+v", entries)
	}
}

func TestDumpOnceIsAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")

	tree := NewTree()
	tree.apply(Event{Path: []string{"key:1"}, Name: "recovered_keys", Kind: EventCounter, Delta: 1})
	tree.dumpOnce(path, true)

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected tmp file to be renamed away, got err=%v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dumped stats file: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("dumped file is not valid JSON: %v", err)
	}
}

func TestRunDumpsOnDone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.txt")

	tree := NewTree()
	queue := make(chan Event, 4)
	queue <- Event{Name: "recovered_keys", Kind: EventCounter, Delta: 1}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		tree.Run(done, queue, time.Hour, path, false)
		close(finished)
	}()

	// give the consumer a moment to drain the single queued event before
	// asking it to stop.
	time.Sleep(10 * time.Millisecond)
	close(done)
	<-finished

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected final dump on done, got err=%v", err)
	}
}
