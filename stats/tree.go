package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// node is one point in the nested stats tree: a named bag of counters,
// timers, and attribute lists, plus named children. Path segments become
// nested nodes; spec §4.4: "walks the stats tree along the prefix's path
// segments, creating intermediate nodes on demand".
type node struct {
	counters map[string]*counterValue
	timers   map[string][]timerEntry
	attrs    map[string][]interface{}
	children map[string]*node
}

type counterValue struct {
	Success  int64 `json:"success"`
	Failures int64 `json:"failures"`
}

type timerEntry struct {
	Milestone string    `json:"milestone"`
	At        time.Time `json:"at"`
}

func newNode() *node {
	return &node{
		counters: make(map[string]*counterValue),
		timers:   make(map[string][]timerEntry),
		attrs:    make(map[string][]interface{}),
		children: make(map[string]*node),
	}
}

func (n *node) child(name string) *node {
	c, ok := n.children[name]
	if !ok {
		c = newNode()
		n.children[name] = c
	}
	return c
}

func (n *node) counter(name string) *counterValue {
	c, ok := n.counters[name]
	if !ok {
		c = &counterValue{}
		n.counters[name] = c
	}
	return c
}

// Tree is the single-consumer aggregate. It is owned exclusively by the
// goroutine running Run: apply and dump both execute there, so no
// internal locking is needed (the queue itself is the only
// cross-goroutine boundary).
type Tree struct {
	root *node
}

// NewTree returns an empty stats tree.
func NewTree() *Tree { return &Tree{root: newNode()} }

// Run is the consumer loop: drains queue, applies events to the tree,
// and dumps the whole tree atomically every interval. It returns when
// queue is closed or done is closed, after one final dump.
func (t *Tree) Run(done <-chan struct{}, queue <-chan Event, interval time.Duration, dumpPath string, structured bool) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-queue:
			if !ok {
				t.dumpOnce(dumpPath, structured)
				return
			}
			t.apply(ev)
		case <-ticker.C:
			t.dumpOnce(dumpPath, structured)
		case <-done:
			t.dumpOnce(dumpPath, structured)
			return
		}
	}
}

func (t *Tree) apply(ev Event) {
	n := t.root
	for _, seg := range ev.Path {
		n = n.child(seg)
	}

	switch ev.Kind {
	case EventCounter:
		c := n.counter(ev.Name)
		switch {
		case ev.Delta > 0:
			c.Success += ev.Delta
		case ev.Delta < 0:
			c.Failures += -ev.Delta
		}
	case EventSetCounter:
		c := n.counter(ev.Name)
		switch {
		case ev.Delta > 0:
			c.Success, c.Failures = ev.Delta, 0
		case ev.Delta < 0:
			c.Success, c.Failures = 0, -ev.Delta
		default:
			c.Success, c.Failures = 0, 0
		}
	case EventTimer:
		n.timers[ev.Name] = append(n.timers[ev.Name], timerEntry{Milestone: ev.Milestone, At: ev.At})
	case EventAttribute:
		n.attrs[ev.Name] = append(n.attrs[ev.Name], ev.Value)
	}
}

// dumpOnce serializes the whole tree and publishes it atomically: write
// to "<path>.tmp", then rename over path, so a concurrent reader (the
// HTTP monitor or a human `cat`) never observes a partial document
// (spec §6 "atomic update").
func (t *Tree) dumpOnce(path string, structured bool) {
	if path == "" {
		return
	}
	var body []byte
	if structured {
		body = t.marshalJSON()
	} else {
		body = []byte(t.marshalText())
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, path)
}

func (t *Tree) marshalJSON() []byte {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(t.jsonNode(t.root))
	if err != nil {
		return []byte("{}")
	}
	return out
}

type jsonTreeNode struct {
	Counters map[string]*counterValue  `json:"counters,omitempty"`
	Timers   map[string][]timerEntry   `json:"timers,omitempty"`
	Attrs    map[string][]interface{}  `json:"attributes,omitempty"`
	Children map[string]*jsonTreeNode  `json:"children,omitempty"`
}

func (t *Tree) jsonNode(n *node) *jsonTreeNode {
	out := &jsonTreeNode{Counters: n.counters, Timers: n.timers, Attrs: n.attrs}
	if len(n.children) > 0 {
		out.Children = make(map[string]*jsonTreeNode, len(n.children))
		for name, c := range n.children {
			out.Children[name] = t.jsonNode(c)
		}
	}
	return out
}

func (t *Tree) marshalText() string {
	var b strings.Builder
	writeNodeText(&b, t.root, 0)
	return b.String()
}

func writeNodeText(b *strings.Builder, n *node, depth int) {
	indent := strings.Repeat("  ", depth)

	for _, name := range sortedKeys(n.counters) {
		c := n.counters[name]
		fmt.Fprintf(b, "%scounter %s: success=%d failures=%d\n", indent, name, c.Success, c.Failures)
	}
	for _, name := range sortedTimerKeys(n.timers) {
		for _, e := range n.timers[name] {
			fmt.Fprintf(b, "%stimer %s: %s@%s\n", indent, name, e.Milestone, e.At.Format(time.RFC3339Nano))
		}
	}
	for _, name := range sortedAttrKeys(n.attrs) {
		for _, v := range n.attrs[name] {
			fmt.Fprintf(b, "%sattribute %s: %v\n", indent, name, v)
		}
	}
	for _, name := range sortedChildKeys(n.children) {
		fmt.Fprintf(b, "%s%s:\n", indent, name)
		writeNodeText(b, n.children[name], depth+1)
	}
}

func sortedKeys(m map[string]*counterValue) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedTimerKeys(m map[string][]timerEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedAttrKeys(m map[string][]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedChildKeys(m map[string]*node) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FileName picks the output file name: <plainName>.json when structured,
// <plainName>.txt otherwise (so stats.json | stats.txt for the default
// name). A plainName that already contains a dot is used unchanged, and an
// empty plainName means "stats".
func FileName(tempDir string, structured bool, plainName string) string {
	if plainName == "" {
		plainName = "stats"
	}
	name := plainName
	switch {
	case structured && !strings.Contains(plainName, "."):
		name = plainName + ".json"
	case !structured && !strings.Contains(plainName, "."):
		name = plainName + ".txt"
	}
	return filepath.Join(tempDir, name)
}
