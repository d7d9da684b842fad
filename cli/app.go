// Package cli wires the command-line surface spec.md §6 describes: one
// positional mode argument plus named options for every tunable, built
// on top of urfave/cli the same way the teacher's cli/commands package
// lays out flags, but with a single flat command instead of AIStore's
// verb/noun command tree (this engine has nothing to dispatch on beyond
// its one run).
/*
 * Copyright (c) 2024, CortexDC. All rights reserved.
 */
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli"

	"github.com/cortexdc/recovery/cmn"
)

const (
	modeMerge = "merge"
	modeDC    = "dc"
)

var (
	remotesFlag      = cli.StringFlag{Name: "remotes", Usage: "comma-separated list of remote datacenter addresses"}
	groupsFlag       = cli.StringFlag{Name: "groups", Usage: "comma-separated list of replica group ids"}
	readOnlyFlag     = cli.StringFlag{Name: "read-only-groups", Usage: "comma-separated list of group ids that are never written to or removed from"}
	windowFlag       = cli.IntFlag{Name: "window", Usage: "max number of keys recovered concurrently", Value: 64}
	netWorkersFlag   = cli.IntFlag{Name: "net-workers", Usage: "size of the I/O completion helper pool", Value: 16}
	ioWorkersFlag    = cli.IntFlag{Name: "io-workers", Usage: "stored in the config as IOWorkers; no engine component reads it", Value: 16}
	attemptsFlag     = cli.IntFlag{Name: "attempts", Usage: "max retry attempts per I/O before the key fails", Value: 3}
	chunkSizeFlag    = cli.Int64Flag{Name: "chunk-size", Usage: "bytes per chunk for chunked reads/writes (0 disables chunking)"}
	dumpFileFlag     = cli.StringFlag{Name: "dump-file", Usage: "merged-key input file produced by the iteration+merge phase", Required: true}
	cutoffSecFlag    = cli.Int64Flag{Name: "timestamp-cutoff", Usage: "timestamp cutoff in unix seconds, stored in the config; replicas are not filtered by it"}
	prepareWMarkFlag = cli.Int64Flag{Name: "prepare-timeout-watermark", Usage: "cas_timestamp for corrupted-replica removal (unix seconds)"}
	dataFlowFlag     = cli.Int64Flag{Name: "data-flow-rate", Usage: "expected bytes/sec, used to size I/O timeouts (0 uses the 60s floor only)"}
	readTimeoutFlag  = cli.DurationFlag{Name: "read-timeout", Usage: "override the derived read timeout"}
	writeTimeoutFlag = cli.DurationFlag{Name: "write-timeout", Usage: "override the derived write timeout"}
	removeTimeoutFlag = cli.DurationFlag{Name: "remove-timeout", Usage: "override the derived remove timeout"}
	traceIDFlag      = cli.StringFlag{Name: "trace-id", Usage: "hex trace id, stored in the config handed to the storage client; not added to log lines or stat paths"}
	noServerSendFlag = cli.BoolFlag{Name: "no-server-send", Usage: "skip the server-side-send fast path entirely"}
	dryRunFlag       = cli.BoolFlag{Name: "dry-run", Usage: "preview recovery without performing writes or removes"}
	safeFlag         = cli.BoolFlag{Name: "safe", Usage: "never remove a corrupted replica, regardless of per-group read-only config"}
	userFlagsFlag    = cli.Uint64Flag{Name: "user-flags", Usage: "bitmask filter: only recover keys whose user_flags carry every bit of the mask (0 disables the filter)"}
	monitorPortFlag  = cli.IntFlag{Name: "monitor-port", Usage: "bind the optional stats HTTP endpoint on this port (0 disables it)"}
	tempDirFlag      = cli.StringFlag{Name: "temp-dir", Usage: "directory for the lock file, stats file, and corrupted-keys log", Value: "/tmp/dc-recovery"}
	structuredFlag   = cli.BoolFlag{Name: "json", Usage: "emit stats as stats.json instead of the plain-text stats.txt"}
)

// App builds the urfave/cli application. run is invoked once, after flags
// are parsed into a *cmn.Config, with the structured bool mirroring
// --json (stats.Tree callers need it outside of *cmn.Config since it's a
// presentation choice, not a recovery tunable).
func App(run func(cfg *cmn.Config, structured bool) error) *cli.App {
	app := cli.NewApp()
	app.Name = "dcrecover"
	app.Usage = "cross-datacenter key recovery engine"
	app.ArgsUsage = "merge|dc"
	app.Flags = []cli.Flag{
		remotesFlag, groupsFlag, readOnlyFlag,
		windowFlag, netWorkersFlag, ioWorkersFlag,
		attemptsFlag, chunkSizeFlag, dumpFileFlag,
		cutoffSecFlag, prepareWMarkFlag, dataFlowFlag,
		readTimeoutFlag, writeTimeoutFlag, removeTimeoutFlag,
		traceIDFlag, noServerSendFlag, dryRunFlag, safeFlag,
		userFlagsFlag, monitorPortFlag, tempDirFlag, structuredFlag,
	}
	app.Action = func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("exactly one positional mode argument is required: merge|dc", 1)
		}
		mode := c.Args().Get(0)
		if mode != modeMerge && mode != modeDC {
			return cli.NewExitError(fmt.Sprintf("unknown mode %q, want merge|dc", mode), 1)
		}

		cfg, err := buildConfig(c, mode)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return run(cfg, c.Bool(structuredFlag.Name))
	}
	return app
}

func buildConfig(c *cli.Context, mode string) (*cmn.Config, error) {
	groups, err := parseGroupList(c.String(groupsFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("--groups: %w", err)
	}
	roList, err := parseGroupList(c.String(readOnlyFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("--read-only-groups: %w", err)
	}
	readOnly := make(map[cmn.GroupID]bool, len(roList))
	for _, g := range roList {
		readOnly[g] = true
	}

	var remotes []string
	if raw := c.String(remotesFlag.Name); raw != "" {
		remotes = strings.Split(raw, ",")
	}

	return &cmn.Config{
		Mode:                mode,
		Remotes:             remotes,
		Groups:              groups,
		ReadOnlyGroups:      readOnly,
		Window:              c.Int(windowFlag.Name),
		NetWorkers:          c.Int(netWorkersFlag.Name),
		IOWorkers:           c.Int(ioWorkersFlag.Name),
		MaxAttempts:         c.Int(attemptsFlag.Name),
		ChunkSize:           c.Int64(chunkSizeFlag.Name),
		DumpFile:            c.String(dumpFileFlag.Name),
		TimestampCutoff:     cmn.Timestamp{Sec: c.Int64(cutoffSecFlag.Name)},
		PrepareTimeoutWMark: cmn.Timestamp{Sec: c.Int64(prepareWMarkFlag.Name)},
		DataFlowRate:        c.Int64(dataFlowFlag.Name),
		ReadTimeout:         c.Duration(readTimeoutFlag.Name),
		WriteTimeout:        c.Duration(writeTimeoutFlag.Name),
		RemoveTimeout:       c.Duration(removeTimeoutFlag.Name),
		TraceID:             c.String(traceIDFlag.Name),
		NoServerSend:        c.Bool(noServerSendFlag.Name),
		DryRun:              c.Bool(dryRunFlag.Name),
		Safe:                c.Bool(safeFlag.Name),
		UserFlagsMask:       c.Uint64(userFlagsFlag.Name),
		MonitorPort:         c.Int(monitorPortFlag.Name),
		TempDir:             c.String(tempDirFlag.Name),
	}, nil
}

func parseGroupList(raw string) ([]cmn.GroupID, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	groups := make([]cmn.GroupID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid group id %q: %w", p, err)
		}
		groups = append(groups, cmn.GroupID(n))
	}
	return groups, nil
}
