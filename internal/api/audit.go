package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/cdl-core/internal/audit"
	"github.com/nerrad567/cdl-core/internal/auth"
)

// auditLog enqueues an entry on the asynchronous writer. It is best-effort
// and a no-op when no writer is configured.
func (s *Server) auditLog(r *http.Request, action, entityType, entityID, userID string, details map[string]any) {
	if s.auditWriter == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	if reqID, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
		details["request_id"] = reqID
	}

	s.auditWriter.Record(&audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     "api",
		Details:    details,
	})
}

// handleListAuditLogs returns paginated audit log entries. Admin only.
//
// Query parameters:
//   - action, entity_type, entity_id, user_id: exact-match filters
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if !identityFromContext(r.Context()).Has(auth.PermAuditView) {
		writeForbidden(w, "you do not have permission to perform this action")
		return
	}
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
	}
	var ok bool
	if filter.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}

	page, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err, "list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// queryInt parses an optional non-negative integer query parameter. It
// writes a 400 and returns false when the value is malformed.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeValidationError(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
