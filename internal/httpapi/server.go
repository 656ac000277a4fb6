// Package httpapi exposes ClawControl's core operations as thin HTTP
// wrappers. It is collaborator surface, not core: every handler here does
// request decode/response encode only, delegating the actual work to the
// usage, dispatch, telemetry, and actionable packages.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Handler registers its routes on a shared mux. Each ClawControl
// component gets its own Handler, one-handler-per-resource.
type Handler interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server wraps net/http's ServeMux with the auth middleware and graceful
// shutdown ClawControl's handlers share.
type Server struct {
	addr string
	token string
	srv *http.Server
}

// NewServer builds a Server bound to addr (host:port), wiring every
// handler's routes behind the bearer-token middleware when token is set.
func NewServer(addr, token string, handlers...Handler) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	for _, h := range handlers {
		h.RegisterRoutes(mux)
	}

	var root http.Handler = mux
	if token != "" {
		root = authMiddleware(token, mux)
	}
	root = logMiddleware(root)

	return &Server{
		addr: addr,
		token: token,
		srv: &http.Server{Addr: addr, Handler: root},
	}
}

// Start serves until ctx is canceled, then shuts down gracefully within
// 10s of the signal.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("httpapi: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("httpapi shutting down")
	return s.srv.Shutdown(shutdownCtx)
}

func authMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		if extractBearerToken(r) != token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("httpapi request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(started).Milliseconds())
	})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
