// Package httpserver constructs the ledger's HTTP server.
package httpserver

import (
	"net/http"
	"time"
)

// Timeouts are fixed rather than configurable: the API exchanges small JSON
// bodies and nothing legitimate holds a connection open for long.
const (
	headerTimeout = 5 * time.Second
	readTimeout   = 15 * time.Second
	idleTimeout   = time.Minute
)

// New wires the router into a server listening on addr.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: headerTimeout,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
	}
}
