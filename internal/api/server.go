// Package api is the storefront's HTTP surface.
package api

import (
	"net/http"

	"github.com/oriys/storefront/internal/logging"
	"github.com/oriys/storefront/internal/observability"
)

// StartHTTPServer registers h's routes, wraps them with tracing and serves
// on addr in the background.
func StartHTTPServer(addr string, h *Handler) *http.Server {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = observability.HTTPMiddleware(handler)

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	logging.Op().Info("HTTP server started", "addr", addr)
	return server
}
