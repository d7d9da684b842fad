package storage

import "github.com/cortexdc/recovery/cmn"

// NewClient is the integration seam a production build must supply: the
// storage client library itself — routing, RPC, checksum validation,
// iteration — is out of scope here (spec.md §1). The zero value refuses
// to dial, so a binary built without registering a real implementation
// fails fast and loud at startup instead of silently "recovering"
// against nothing. A deployment overwrites this variable from an init()
// in its own package, the same seam shape as database/sql drivers
// registering themselves before main runs.
var NewClient = func(cfg *cmn.Config) (Client, error) {
	return nil, errNotWired
}

type clientNotWiredError struct{}

func (clientNotWiredError) Error() string {
	return "storage: no client implementation wired; assign storage.NewClient before calling cli.App's action"
}

var errNotWired = clientNotWiredError{}
