package cmn

import (
	"time"

	"github.com/sdomino/scribble"
)

// CorruptedKeysLog persists a durable record of every key found with a
// corrupted replica in a group eligible for removal (not read-only, not
// under --safe), whether or not a removal then ran, via a tiny embedded flat-file
// database — the mechanism spec.md names in passing ("a corrupted-keys
// log file listing keys found corrupted") but never designs. Grounded on
// `downloader/db.go`'s `scribble.New(dir, nil)` usage, the only place the
// teacher itself reaches for scribble; scribble's write-tmp/rename
// behavior is the same atomic-publish idiom the stats dump uses by hand.
type CorruptedKeysLog struct {
	db *scribble.Driver
}

// NewCorruptedKeysLog opens (creating if absent) a scribble database
// rooted at <tempDir>/corrupted_keys.
func NewCorruptedKeysLog(tempDir string) (*CorruptedKeysLog, error) {
	db, err := scribble.New(tempDir+"/corrupted_keys", nil)
	if err != nil {
		return nil, err
	}
	return &CorruptedKeysLog{db: db}, nil
}

type corruptedKeyRecord struct {
	Key       string    `json:"key"`
	Groups    []GroupID `json:"groups"`
	Timestamp time.Time `json:"timestamp"`
}

// Append records that key was found corrupted on the given groups. l may
// be nil (logging disabled, e.g. in tests), in which case Append is a
// no-op.
func (l *CorruptedKeysLog) Append(key Key, groups []GroupID) error {
	if l == nil || len(groups) == 0 {
		return nil
	}
	rec := corruptedKeyRecord{Key: key.String(), Groups: groups, Timestamp: time.Now()}
	return l.db.Write("keys", key.String(), rec)
}
