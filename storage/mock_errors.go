package storage

import (
	"errors"
	"syscall"
)

// Sentinel errors MockClient returns, wrapping the syscall.Errno values
// cmn.Errors classifies against, so tests exercise the same
// errors.Is(err, syscall.E*) path production code does.
var (
	errEILSEQ      = syscall.EILSEQ
	errENOENT      = syscall.ENOENT
	errTimedOut    = syscall.ETIMEDOUT
	errAllFailed   = errors.New("storage/mock: all targeted replicas failed")
	errCASRejected = errors.New("storage/mock: cas rejected, destination not older")
)
