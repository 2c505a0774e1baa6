package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/cdl-core/internal/audit"
	"github.com/nerrad567/cdl-core/internal/experiment"
)

// handleListExperiments returns the caller's experiments, or all of them for staff.
func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	list, err := s.experiments.List(r.Context(), identityFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err, "list experiments")
		return
	}
	if list == nil {
		list = []experiment.Experiment{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleCreateExperiment stores a submission as a queued experiment.
func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var in experiment.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	id := identityFromContext(r.Context())
	e, err := s.experiments.Create(r.Context(), id, in)
	if err != nil {
		s.writeServiceError(w, r, err, "create experiment")
		return
	}

	s.auditLog(r, audit.ActionCreate, audit.EntityExperiment, e.ExperimentID, id.ID, map[string]any{
		"experimentName": e.ExperimentName,
		"circuitId":      e.CircuitID,
	})
	writeJSON(w, http.StatusOK, e)
}

// handlePeekQueue returns the oldest queued experiment, or null.
func (s *Server) handlePeekQueue(w http.ResponseWriter, r *http.Request) {
	e, err := s.experiments.PeekQueue(r.Context(), identityFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err, "peek queue")
		return
	}
	if e == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleGetExperiment returns an experiment with its latest result.
func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	d, err := s.experiments.Get(r.Context(), identityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err, "get experiment")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleExperimentResults returns the latest result of an experiment, or
// the experiment itself when nothing has been recorded.
func (s *Server) handleExperimentResults(w http.ResponseWriter, r *http.Request) {
	d, err := s.experiments.LatestResult(r.Context(), identityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err, "get experiment results")
		return
	}
	writeJSON(w, http.StatusOK, d.ResultOrExperiment())
}

// handlePatchExperiment applies a staff partial update.
func (s *Server) handlePatchExperiment(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if !id.CanPatchExperiment() {
		writeForbidden(w, "you do not have permission to perform this action")
		return
	}

	var in experiment.PatchInput
	if !decodeJSON(w, r, &in) {
		return
	}

	e, err := s.experiments.Patch(r.Context(), id, chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeServiceError(w, r, err, "patch experiment")
		return
	}

	details := map[string]any{}
	if in.Status != nil {
		details["status"] = string(*in.Status)
	}
	s.auditLog(r, audit.ActionUpdate, audit.EntityExperiment, e.ExperimentID, id.ID, details)
	writeJSON(w, http.StatusOK, e)
}

// handleDeleteExperiment removes an experiment owned by the caller (or any, for staff).
func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	experimentID := chi.URLParam(r, "id")

	if err := s.experiments.Delete(r.Context(), id, experimentID); err != nil {
		s.writeServiceError(w, r, err, "delete experiment")
		return
	}

	s.auditLog(r, audit.ActionDelete, audit.EntityExperiment, experimentID, id.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}
