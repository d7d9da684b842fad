// Package cursor reads the merged-key input file (spec §4.5/§6): a
// sequence of length-prefixed binary records, one per key, each carrying
// the replica infos an earlier iteration+merge phase discovered. It
// yields every record as a (key, replicas) Input and leaves the §4.1
// early-skip decision to Machine.runInit, which already has to run
// merge.Select itself to drive READING/WRITING — computing it twice (once
// here, once there) would just be duplicated work reaching the same
// verdict, and the `recovered_keys` accounting for a fully in-sync key
// (spec §8 scenario 1) lives on Machine.Run's skip branch, which only
// fires if a Machine is actually built for that key.
/*
 * Copyright (c) 2024, CortexDC. All rights reserved.
 */
package cursor

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/cortexdc/recovery/cmn"
	"github.com/cortexdc/recovery/recovery"
)

// Record wire layout, fixed and private to this engine (spec §6):
//
//	key_id        [64]byte
//	replica_count uint32
//	replica_count * {
//	  host_len  uint16
//	  host      []byte (host_len bytes, UTF-8)
//	  port      uint16
//	  family    uint8
//	  group_id  int64
//	  tsec      int64
//	  tnsec     int64
//	  size      int64
//	  user_flags uint64
//	  flags     uint32
//	  data_offset int64
//	  blob_id   uint64
//	}
//
// All integers are big-endian. encoding/binary + bufio are used verbatim
// (stdlib): this is a custom format private to this engine, not
// something any pack library parses, and binary.Read/Write is exactly
// the layer AIStore's own low-level helpers reach for.

// Cursor reads records from an underlying stream, one key at a time. Not
// safe for concurrent use — spec §4.5: "single-threaded; callers wrap it
// in a mutex if shared" (the windowed scheduler does exactly that).
type Cursor struct {
	r *bufio.Reader
}

// New wraps r as a Cursor.
func New(r io.Reader) *Cursor {
	return &Cursor{r: bufio.NewReader(r)}
}

// Next reads the next record and returns it as a recovery.Input. It
// returns (zero, false, nil) at clean end of stream. The §4.1 step 6
// early-skip decision (and the `recovered_keys` bump that goes with it)
// is Machine.runInit's job, not this cursor's — see the package doc.
func (c *Cursor) Next() (recovery.Input, bool, error) {
	key, replicas, err := c.readRecord()
	if err == io.EOF {
		return recovery.Input{}, false, nil
	}
	if err != nil {
		return recovery.Input{}, false, err
	}
	return recovery.Input{Key: key, Replicas: replicas}, true, nil
}

func (c *Cursor) readRecord() (cmn.Key, []cmn.ReplicaInfo, error) {
	var keyBytes [64]byte
	if _, err := io.ReadFull(c.r, keyBytes[:]); err != nil {
		// io.ReadFull reports clean io.EOF only when zero bytes were read
		// at a record boundary; a partial key is io.ErrUnexpectedEOF, a
		// genuinely corrupt/truncated stream, and must not be mistaken
		// for "no more keys".
		return cmn.Key{}, nil, err
	}
	key, err := cmn.KeyFromBytes(keyBytes[:])
	if err != nil {
		return cmn.Key{}, nil, err
	}

	var count uint32
	if err := binary.Read(c.r, binary.BigEndian, &count); err != nil {
		return cmn.Key{}, nil, err
	}

	replicas := make([]cmn.ReplicaInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		r, err := c.readReplica()
		if err != nil {
			return cmn.Key{}, nil, err
		}
		replicas = append(replicas, r)
	}
	return key, replicas, nil
}

// WriteRecord encodes one key's record in the wire format Next reads.
// The production merge/iteration phase that emits the real input file is
// out of scope (spec §1); this exists so tests (and any future writer)
// share one authoritative encoding instead of duplicating the layout.
func WriteRecord(w io.Writer, key cmn.Key, replicas []cmn.ReplicaInfo) error {
	if _, err := w.Write(key[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(replicas))); err != nil {
		return err
	}
	for _, r := range replicas {
		if err := binary.Write(w, binary.BigEndian, uint16(len(r.Addr.Host))); err != nil {
			return err
		}
		if _, err := w.Write([]byte(r.Addr.Host)); err != nil {
			return err
		}
		fields := []interface{}{
			r.Addr.Port, uint8(r.Addr.Family), r.GroupID, r.Timestamp.Sec, r.Timestamp.NSec,
			r.Size, r.UserFlags, r.Flags, r.DataOffset, r.BlobID,
		}
		for _, f := range fields {
			if err := binary.Write(w, binary.BigEndian, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cursor) readReplica() (cmn.ReplicaInfo, error) {
	var r cmn.ReplicaInfo

	var hostLen uint16
	if err := binary.Read(c.r, binary.BigEndian, &hostLen); err != nil {
		return r, err
	}
	host := make([]byte, hostLen)
	if _, err := io.ReadFull(c.r, host); err != nil {
		return r, err
	}

	var port uint16
	var family uint8
	if err := binary.Read(c.r, binary.BigEndian, &port); err != nil {
		return r, err
	}
	if err := binary.Read(c.r, binary.BigEndian, &family); err != nil {
		return r, err
	}

	fields := []interface{}{
		&r.GroupID, &r.Timestamp.Sec, &r.Timestamp.NSec, &r.Size,
		&r.UserFlags, &r.Flags, &r.DataOffset, &r.BlobID,
	}
	for _, f := range fields {
		if err := binary.Read(c.r, binary.BigEndian, f); err != nil {
			return r, err
		}
	}

	r.Addr = cmn.Address{Host: string(host), Port: port, Family: cmn.Family(family)}
	return r, nil
}
