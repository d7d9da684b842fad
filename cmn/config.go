package cmn

import (
	"sync/atomic"
	"time"
)

// Config holds every tunable spec.md §6 lists on the CLI surface. It is
// assembled once at startup (see cli.App) and then treated as read-only;
// the windowed scheduler and every state machine it drives share one
// *Config.
type Config struct {
	Mode string // "merge" | "dc"

	Remotes       []string
	Groups        []GroupID
	ReadOnlyGroups map[GroupID]bool

	Window      int // W: max in-flight state machines
	NetWorkers  int // size of the read/write/remove completion helper pool
	IOWorkers   int // parsed from --io-workers; no component reads it

	MaxAttempts int
	ChunkSize   int64

	DumpFile string // merged-key input file

	TimestampCutoff      Timestamp
	PrepareTimeoutWMark  Timestamp
	DataFlowRate         int64 // bytes/sec, minimum 60s timeout floor applies
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	RemoveTimeout        time.Duration

	TraceID string

	NoServerSend bool
	DryRun       bool
	Safe         bool // never remove, regardless of per-group read-only config

	UserFlagsMask uint64 // 0 disables the filter

	MonitorPort int

	TempDir string
}

// MinDataFlowTimeout is the floor spec §5 names: "each I/O has a timeout
// derived from expected bytes and a configured data_flow_rate (minimum 60
// s)".
const MinDataFlowTimeout = 60 * time.Second

// TimeoutFor derives an I/O timeout from a byte count and the configured
// data flow rate, floored at MinDataFlowTimeout.
func (c *Config) TimeoutFor(nbytes int64) time.Duration {
	if c.DataFlowRate <= 0 {
		return MinDataFlowTimeout
	}
	d := time.Duration(nbytes/c.DataFlowRate) * time.Second
	if d < MinDataFlowTimeout {
		return MinDataFlowTimeout
	}
	return d
}

// IsReadOnly reports whether gid is configured read-only: a replica is
// never written to, and a corrupted replica there is never removed (spec
// §3 invariant).
func (c *Config) IsReadOnly(gid GroupID) bool {
	return c.ReadOnlyGroups[gid]
}

// globalConfigOwner mirrors AIStore's own cmn.GCO ("global config owner")
// pattern: it holds the process-wide *Config behind an atomic value for
// code that cannot take it as a parameter. The scheduler and the state
// machines do not use it; they receive the *Config at construction.
type globalConfigOwner struct {
	c atomic.Value // *Config
}

func (g *globalConfigOwner) Get() *Config {
	v, _ := g.c.Load().(*Config)
	return v
}

func (g *globalConfigOwner) Put(c *Config) { g.c.Store(c) }

// GCO is the process-wide config owner, set once by the driver at
// startup.
var GCO = &globalConfigOwner{}
