package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ctxKey string

const ctxKeyPostCalculation ctxKey = "validatedPostCalculation"
const ctxKeyFinalize ctxKey = "validatedFinalize"
const ctxKeyOwner ctxKey = "validatedOwner"

// requestLogger logs basic request info at INFO and panics at ERROR.
func requestLogger(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			reqID := chimw.GetReqID(r.Context())
			l.Info("request started", "req_id", reqID, "method", r.Method, "path", r.URL.Path)

			next.ServeHTTP(ww, r)

			l.Info("request complete",
				"req_id", reqID,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			)
		})
	}
}

// recoverer logs panics as ERROR and returns 500.
func recoverer(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					reqID := chimw.GetReqID(r.Context())
					l.Error("panic", "req_id", reqID, "err", rec, "stack", string(debug.Stack()))
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// validatePostCalculation parses and validates the POST /calculations body and
// stores the validated request struct in the request context for the handler to use.
func (s *Server) validatePostCalculation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postCalculationRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			if req.OwnerID == uuid.Nil {
				badRequest(w, "owner_id is required")
				return
			}
			if req.TaxYear < 2000 || req.TaxYear > 2100 {
				badRequest(w, "tax_year out of range")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostCalculation, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateFinalize parses the POST /calculations/finalize body.
func (s *Server) validateFinalize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req finalizeRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			if req.OwnerID == uuid.Nil || req.RecordID == uuid.Nil {
				badRequest(w, "owner_id and record_id are required")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyFinalize, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateOwnerQuery parses the owner_id query param required by record reads.
func (s *Server) validateOwnerQuery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.URL.Query().Get("owner_id")
			if raw == "" {
				badRequest(w, "owner_id is required")
				return
			}
			ownerID, err := uuid.Parse(raw)
			if err != nil {
				badRequest(w, "invalid owner_id")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyOwner, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
