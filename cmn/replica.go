package cmn

import "time"

// GroupID identifies a replica group: a numbered, independent full copy of
// the object keyspace.
type GroupID int64

// Family is the address family of a replica's host (AF_INET/AF_INET6).
type Family uint8

const (
	FamilyUnspec Family = iota
	FamilyInet
	FamilyInet6
)

// Address is the (host, port, family) of the node currently hosting a
// replica.
type Address struct {
	Host   string
	Port   uint16
	Family Family
}

// Flags is a bitset of replica record attributes.
type Flags uint32

const (
	// FlagChunkedChecksum indicates the replica's checksum was computed
	// per-chunk rather than over the whole record.
	FlagChunkedChecksum Flags = 1 << iota
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Timestamp is a (seconds, nanoseconds) last-modified time for a replica's
// data payload. Kept as an explicit pair (rather than time.Time) because
// the wire format carries the two fields separately and comparisons must
// match bit-for-bit what was read off the wire.
type Timestamp struct {
	Sec  int64
	NSec int64
}

// Time converts to a time.Time in UTC.
func (t Timestamp) Time() time.Time { return time.Unix(t.Sec, t.NSec).UTC() }

// Less reports whether t sorts before other.
func (t Timestamp) Less(other Timestamp) bool {
	if t.Sec != other.Sec {
		return t.Sec < other.Sec
	}
	return t.NSec < other.NSec
}

// Equal reports whether t and other denote the same instant.
func (t Timestamp) Equal(other Timestamp) bool { return t == other }

// ReplicaInfo describes one known copy of a key.
type ReplicaInfo struct {
	GroupID    GroupID
	Addr       Address
	Timestamp  Timestamp
	Size       int64
	UserFlags  uint64
	Flags      Flags
	DataOffset int64 // physical location hint, informational only
	BlobID     uint64
}

// authTuple is the (timestamp, size, user_flags) triple the merge rule
// (spec §4.1) compares replicas by.
type authTuple struct {
	Timestamp Timestamp
	Size      int64
	UserFlags uint64
}

func (r ReplicaInfo) authTuple() authTuple {
	return authTuple{Timestamp: r.Timestamp, Size: r.Size, UserFlags: r.UserFlags}
}

// MatchesAuthoritative reports whether r has exactly the authoritative
// (timestamp, size, user_flags) triple of auth.
func (r ReplicaInfo) MatchesAuthoritative(auth ReplicaInfo) bool {
	return r.authTuple() == auth.authTuple()
}
