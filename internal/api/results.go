package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/cdl-core/internal/audit"
	"github.com/nerrad567/cdl-core/internal/result"
)

// handleCreateResult records a run outcome. Admin only.
func (s *Server) handleCreateResult(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if !id.CanManageResults() {
		writeForbidden(w, "you do not have permission to perform this action")
		return
	}

	var in result.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := s.results.Create(r.Context(), id, in)
	if err != nil {
		s.writeServiceError(w, r, err, "record result")
		return
	}

	s.auditLog(r, audit.ActionCreate, audit.EntityResult, strconv.FormatInt(res.ID, 10), id.ID, map[string]any{
		"experiment": *res.ExperimentID,
	})
	writeJSON(w, http.StatusOK, res)
}

// handleListResults returns recorded results, optionally for one experiment.
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	filter := result.ListFilter{ExperimentID: r.URL.Query().Get("experiment")}
	var ok bool
	if filter.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}

	list, err := s.results.List(r.Context(), identityFromContext(r.Context()), filter)
	if err != nil {
		s.writeServiceError(w, r, err, "list results")
		return
	}
	if list == nil {
		list = []result.ExperimentResult{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	resultID, ok := resultIDParam(w, r)
	if !ok {
		return
	}
	res, err := s.results.Get(r.Context(), identityFromContext(r.Context()), resultID)
	if err != nil {
		s.writeServiceError(w, r, err, "get result")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetResultData(w http.ResponseWriter, r *http.Request) {
	resultID, ok := resultIDParam(w, r)
	if !ok {
		return
	}
	data, err := s.results.Data(r.Context(), identityFromContext(r.Context()), resultID)
	if err != nil {
		s.writeServiceError(w, r, err, "get result data")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	resultID, ok := resultIDParam(w, r)
	if !ok {
		return
	}
	id := identityFromContext(r.Context())
	if err := s.results.Delete(r.Context(), id, resultID); err != nil {
		s.writeServiceError(w, r, err, "delete result")
		return
	}

	s.auditLog(r, audit.ActionDelete, audit.EntityResult, strconv.FormatInt(resultID, 10), id.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// resultIDParam parses {id}. Non-numeric ids cannot exist, so they are 404.
func resultIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeNotFound(w, "result not found")
		return 0, false
	}
	return id, true
}
