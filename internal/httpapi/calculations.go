package httpapi

import (
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avoscheidt/fiskal/internal/export"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// postCalculation runs a full computation for (owner, tax year) and returns
// the persisted record.
func (s *Server) postCalculation(w http.ResponseWriter, r *http.Request) {
	req, ok := r.Context().Value(ctxKeyPostCalculation).(postCalculationRequest)
	if !ok {
		badRequest(w, "missing validated request")
		return
	}
	rec, err := s.svc.Calculate(r.Context(), req.OwnerID, req.TaxYear)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toRecordResponse(rec))
}

// finalizeCalculation promotes a validated record to FINALIZED.
func (s *Server) finalizeCalculation(w http.ResponseWriter, r *http.Request) {
	req, ok := r.Context().Value(ctxKeyFinalize).(finalizeRequest)
	if !ok {
		badRequest(w, "missing validated request")
		return
	}
	rec, err := s.svc.Finalize(r.Context(), req.OwnerID, req.RecordID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (s *Server) getCalculation(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := r.Context().Value(ctxKeyOwner).(uuid.UUID)
	recordID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid record id")
		return
	}
	rec, err := s.svc.Record(r.Context(), ownerID, recordID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (s *Server) listCalculations(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := r.Context().Value(ctxKeyOwner).(uuid.UUID)
	recs, err := s.svc.Records(r.Context(), ownerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordResponse(rec))
	}
	toJSON(w, http.StatusOK, out)
}

// exportCalculation renders the regulatory XML declaration of a finalized record.
func (s *Server) exportCalculation(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := r.Context().Value(ctxKeyOwner).(uuid.UUID)
	recordID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid record id")
		return
	}
	rec, err := s.svc.Record(r.Context(), ownerID, recordID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	data, err := export.Render(rec)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// getRuleTable serves a published rule table for inspection.
func (s *Server) getRuleTable(w http.ResponseWriter, r *http.Request) {
	jurisdiction := tax.Jurisdiction(chi.URLParam(r, "jurisdiction"))
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		badRequest(w, "invalid year")
		return
	}
	table, err := s.rules.Lookup(jurisdiction, year)
	if err != nil {
		notFound(w)
		return
	}
	toJSON(w, http.StatusOK, toRuleTableResponse(table))
}
