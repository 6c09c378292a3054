package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/avoscheidt/fiskal/internal/dictionary"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// If the underlying store implements ReadyChecker, call it with a short timeout
	type readyIf interface{ Ready(context.Context) error }
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	if rc, ok := any(s.repo).(readyIf); ok {
		if err := rc.Ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// getDictionary serves the curated enumeration catalog for API clients.
func (s *Server) getDictionary(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, dictionary.Codes())
}
