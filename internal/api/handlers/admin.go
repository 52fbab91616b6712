package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/promptlab/internal/audit"
)

type AdminHandler struct {
	auditSvc *audit.Service
}

func NewAdminHandler(auditSvc *audit.Service) *AdminHandler {
	return &AdminHandler{auditSvc: auditSvc}
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := audit.AuditQuery{
		Action: r.URL.Query().Get("action"),
	}

	var err error
	if q.ResourceID, err = queryUUID(r, "resource_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.StartDate, err = queryTime(r, "start_date"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.EndDate, err = queryTime(r, "end_date"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}

	logs, err := h.auditSvc.GetAuditLogs(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": logs, "count": len(logs)})
}
