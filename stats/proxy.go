package stats

import (
	"strings"
	"time"

	"github.com/cortexdc/recovery/recovery"
)

// Proxy is the producer-side handle every recovery.Machine (and the
// driver) holds: a path prefix plus a reference to the shared bounded
// queue. It satisfies recovery.Stats structurally — callers never import
// this package to use it, only the driver that wires Machines together
// does.
type Proxy struct {
	prefix []string
	queue  chan<- Event
}

// NewRootProxy returns the top-level proxy producers fan out from; queue
// is the bounded channel a *Tree consumes (spec: "thread-safe
// multi-producer single-consumer").
func NewRootProxy(queue chan<- Event) *Proxy {
	return &Proxy{queue: queue}
}

func (p *Proxy) Counter(name string, delta int64) {
	p.emit(Event{Path: p.prefix, Name: name, Kind: EventCounter, Delta: delta})
}

func (p *Proxy) SetCounter(name string, value int64) {
	p.emit(Event{Path: p.prefix, Name: name, Kind: EventSetCounter, Delta: value})
}

func (p *Proxy) Timer(name, milestone string) {
	p.emit(Event{Path: p.prefix, Name: name, Kind: EventTimer, Milestone: milestone, At: time.Now()})
}

func (p *Proxy) Attribute(name string, value interface{}) {
	p.emit(Event{Path: p.prefix, Name: name, Kind: EventAttribute, Value: value})
}

// Child returns a new proxy scoped under name, sharing the same queue.
// Matches recovery.Stats so a Machine can be handed a per-key child
// proxy without the recovery package importing this one.
func (p *Proxy) Child(name string) recovery.Stats {
	child := make([]string, len(p.prefix), len(p.prefix)+1)
	copy(child, p.prefix)
	child = append(child, name)
	return &Proxy{prefix: child, queue: p.queue}
}

// PathString renders the prefix joined by the configured separator, for
// callers building a key-scoped child name (e.g. hex key id).
func (p *Proxy) PathString(sep string) string {
	return strings.Join(p.prefix, sep)
}

// emit performs the non-blocking enqueue spec §4.4 calls for: "on
// overflow the call fails loudly (this is a bug, not a dropped
// statistic)". A full queue means the consumer has fallen behind the
// producers by the entire queue depth, which is a sizing or consumer
// bug, not a condition to silently swallow.
func (p *Proxy) emit(ev Event) {
	select {
	case p.queue <- ev:
	default:
		panic("stats: queue overflow, consumer is not keeping up")
	}
}
