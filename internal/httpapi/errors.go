package httpapi

import (
	"errors"
	"net/http"

	"github.com/avoscheidt/fiskal/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "") }
func notFound(w http.ResponseWriter)               { writeErr(w, http.StatusNotFound, "not_found", "not_found") }

// writeDomainError maps domain sentinel errors onto HTTP statuses and stable
// error codes. The error message carries the detail; the code is what clients
// should branch on.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		notFound(w)
	case errors.Is(err, errs.ErrInvalid):
		badRequest(w, err.Error())
	case errors.Is(err, errs.ErrConcurrentRecalculation):
		writeErr(w, http.StatusConflict, err.Error(), "concurrent_recalculation")
	case errors.Is(err, errs.ErrNotFinalized):
		writeErr(w, http.StatusConflict, err.Error(), "not_finalized")
	case errors.Is(err, errs.ErrValidation):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), "validation_error")
	case errors.Is(err, errs.ErrRuleTableNotFound):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), "rule_table_not_found")
	case errors.Is(err, errs.ErrTreatyNotFound):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), "treaty_not_found")
	case errors.Is(err, errs.ErrInsufficientLots):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), "insufficient_lots")
	case errors.Is(err, errs.ErrUnorderedTransaction):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), "unordered_transaction")
	case errors.Is(err, errs.ErrDataIntegrity):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), "data_integrity")
	default:
		s.log.Error("internal error", "err", err)
		writeErr(w, http.StatusInternalServerError, "internal error", "")
	}
}
