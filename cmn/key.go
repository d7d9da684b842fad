// Package cmn provides common low-level types and utilities shared by the
// recovery engine: the key/replica data model, error classification,
// config, logging, and the lock file.
/*
 * Copyright (c) 2024, CortexDC. All rights reserved.
 */
package cmn

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// KeySize is the length, in bytes, of an opaque object identifier.
const KeySize = 64

// Key is a 512-bit opaque object identifier. Equality and ordering are
// defined over the raw bytes.
type Key [KeySize]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Less reports whether k sorts before other, by raw byte order.
func (k Key) Less(other Key) bool { return bytes.Compare(k[:], other[:]) < 0 }

// Equal reports whether k and other are the same key.
func (k Key) Equal(other Key) bool { return k == other }

// KeyFromBytes copies b into a Key. b must be exactly KeySize bytes.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("cmn: invalid key length %d, want %d", len(b), KeySize)
	}
	copy(k[:], b)
	return k, nil
}

// KeyFromHex parses a hex-encoded key.
func KeyFromHex(s string) (Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, err
	}
	return KeyFromBytes(b)
}
