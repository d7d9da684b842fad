package stats

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/cortexdc/recovery/cmn"
)

// Monitor is the optional minimal HTTP endpoint spec §6 describes: "a
// minimal static server binds :<port> ... and serves files from the
// temporary directory; the primary exposed file is the stats file."
// stdlib net/http.FileServer is deliberately used verbatim here — the
// pack's own HTTP surfaces (e.g. ec.go's client-side http.NewRequest
// calls) never reach for a router or framework for plain file serving,
// and neither does this.
type Monitor struct {
	srv *http.Server
	log cmn.Logger
}

// NewMonitor builds (but does not start) a static file server rooted at
// dir, bound to port on every available address. "tcp" is dual-stack:
// Go's net.Listen resolves it to a single IPv6 socket accepting both
// protocols when the platform supports it, satisfying "IPv6 dual-stack
// if available" without any extra plumbing.
func NewMonitor(dir string, port int, log cmn.Logger) *Monitor {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(dir)))
	return &Monitor{
		srv: &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux},
		log: log,
	}
}

// Serve blocks, accepting connections until the listener fails or Close
// is called from another goroutine.
func (m *Monitor) Serve() error {
	ln, err := net.Listen("tcp", m.srv.Addr)
	if err != nil {
		return err
	}
	m.log.Infof("stats: monitor listening on %s", m.srv.Addr)
	err = m.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the monitor down without waiting for in-flight requests to
// drain past ctx's deadline.
func (m *Monitor) Close(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
