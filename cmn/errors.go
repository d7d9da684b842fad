package cmn

import (
	"errors"
	"syscall"

	pkgerrors "github.com/pkg/errors"
)

// Error kind classification for the recovery state machine (spec §7).
// These are not transport names: IsTransient/IsCorrupted/etc. map whatever
// error the storage client returns onto the policy the state machine
// applies, the same way err_utils_linux.go maps raw syscall errors onto
// "is this bad enough to run the mountpath health check".

// IsTransient reports whether err is a retriable I/O failure: timeout or
// no-route.
func IsTransient(err error) bool {
	return isAny(err, syscall.ETIMEDOUT, syscall.ENXIO)
}

// IsCorrupted reports whether err is a checksum failure on a replica.
func IsCorrupted(err error) bool {
	return isAny(err, syscall.EILSEQ)
}

// IsAcceptableRemoveStatus reports whether a failed remove can be treated
// as a no-op rather than an error: ENOENT ("no replica there to remove")
// and EBADF ("this replica's on-disk state forbids removal", surfaced by
// the storage client as EBADFD upstream). Preserved from the original
// implementation without further justification beyond this: neither
// condition means recovery failed, only that the delete was redundant.
func IsAcceptableRemoveStatus(err error) bool {
	if err == nil {
		return true
	}
	return isAny(err, syscall.ENOENT, syscall.EBADF)
}

func isAny(err error, candidates ...error) bool {
	if err == nil {
		return false
	}
	for _, c := range candidates {
		if errors.Is(err, c) {
			return true
		}
	}
	return false
}

// Wrap attaches a cause and a stack trace to err, for the "Fatal local"
// error kind (§7): a panic recovered inside a state machine callback is
// logged with this wrapped form so the trace survives past the recover().
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}
