// Command dcrecover is the driver for the cross-datacenter key recovery
// engine: it acquires the run lock, wires the storage client, stats
// aggregator, and windowed scheduler together, drives the input cursor
// to completion, and exits 0 only if every key recovered.
/*
 * Copyright (c) 2024, CortexDC. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	urfavecli "github.com/urfave/cli"

	"github.com/cortexdc/recovery/cli"
	"github.com/cortexdc/recovery/cmn"
	"github.com/cortexdc/recovery/cursor"
	"github.com/cortexdc/recovery/fastsend"
	"github.com/cortexdc/recovery/recovery"
	"github.com/cortexdc/recovery/sched"
	"github.com/cortexdc/recovery/stats"
	"github.com/cortexdc/recovery/storage"
)

func main() {
	app := cli.App(run)
	if err := app.Run(os.Args); err != nil {
		if ec, ok := err.(urfavecli.ExitCoder); ok {
			if msg := ec.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(ec.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run is the cli.App action: it owns the process-wide lock, the storage
// client, and the stats/scheduler wiring. It returns nil on full success;
// a key failure returns a *cli.ExitError with code 1, and a fatal setup
// error returns that error, which main also turns into exit code 1.
func run(cfg *cmn.Config, structured bool) error {
	log := cmn.NewGlogLogger()
	cmn.GCO.Put(cfg)

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return fmt.Errorf("dcrecover: create temp dir %s: %w", cfg.TempDir, err)
	}
	lock, err := cmn.AcquireLock(cfg.TempDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	client, err := storage.NewClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	sender, err := fastsend.NewSender(cfg)
	if err != nil {
		return fmt.Errorf("dcrecover: fastsend: %w", err)
	}
	if cfg.NoServerSend {
		sender = fastsend.Disabled{}
	}

	in, err := os.Open(cfg.DumpFile)
	if err != nil {
		return fmt.Errorf("dcrecover: open dump file: %w", err)
	}
	defer in.Close()
	cur := cursor.New(in)

	queue := make(chan stats.Event, 4096)
	tree := stats.NewTree()
	statsDone := make(chan struct{})
	dumpPath := stats.FileName(cfg.TempDir, structured, "stats")
	go func() {
		tree.Run(nil, queue, time.Second, dumpPath, structured)
		close(statsDone)
	}()
	root := stats.NewRootProxy(queue)

	var monitor *stats.Monitor
	if cfg.MonitorPort > 0 {
		monitor = stats.NewMonitor(cfg.TempDir, cfg.MonitorPort, log)
		go func() {
			if err := monitor.Serve(); err != nil {
				log.Errorf("dcrecover: monitor: %v", err)
			}
		}()
	}

	corruptLog, err := cmn.NewCorruptedKeysLog(cfg.TempDir)
	if err != nil {
		return fmt.Errorf("dcrecover: open corrupted-keys log: %w", err)
	}

	factory := buildFactory(cfg, client, log, root, sender, corruptLog)
	scheduler := sched.New(cfg, cur, factory, log)

	ok := scheduler.Run(context.Background())
	log.Infof("dcrecover: processed %d keys, %.1f keys/s", scheduler.Processed(), scheduler.Throughput())

	close(queue)
	<-statsDone

	if monitor != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := monitor.Close(shutCtx); err != nil {
			log.Warningf("dcrecover: monitor shutdown: %v", err)
		}
	}

	if !ok {
		return urfavecli.NewExitError("", 1)
	}
	return nil
}

// buildFactory closes over the shared client/stats/fastsend wiring and
// returns a sched.Factory: one Machine per key, after giving the
// fast-path sender first refusal at each configured group (spec §1's
// "companion server-side send" integration).
func buildFactory(cfg *cmn.Config, client storage.Client, log cmn.Logger, root *stats.Proxy, sender fastsend.Sender, corruptLog *cmn.CorruptedKeysLog) sched.Factory {
	return func(in recovery.Input) sched.Runnable {
		targets := cfg.Groups
		if !cfg.NoServerSend {
			res, err := sender.TrySend(context.Background(), in.Key, cfg.Groups)
			if err != nil {
				log.Warningf("dcrecover: fastsend: %s: %v", in.Key, err)
			} else if len(res.Handled) > 0 {
				targets = excludeGroups(cfg.Groups, res.Handled)
				root.Counter("fastsend_handled", int64(len(res.Handled)))
			}
		}
		child := root.Child(in.Key.String())
		m := recovery.New(cfg, client, log, child, targets, in)
		m.SetCorruptedKeysLog(corruptLog)
		return m
	}
}

func excludeGroups(all []cmn.GroupID, handled []cmn.GroupID) []cmn.GroupID {
	skip := make(map[cmn.GroupID]bool, len(handled))
	for _, g := range handled {
		skip[g] = true
	}
	out := make([]cmn.GroupID, 0, len(all))
	for _, g := range all {
		if !skip[g] {
			out = append(out, g)
		}
	}
	return out
}
