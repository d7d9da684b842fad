package fastsend

import "github.com/cortexdc/recovery/cmn"

// NewSender is the integration seam for the fast path. Unlike
// storage.NewClient, declining to wire a real Sender is always safe —
// Disabled simply reports every key as unhandled — so the zero value
// falls back gracefully instead of refusing to start.
var NewSender = func(cfg *cmn.Config) (Sender, error) {
	return Disabled{}, nil
}
