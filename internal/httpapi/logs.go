package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"procuredata.io/internal/audit"
)

// exportLimit caps a CSV export at the largest page the scoped repository serves.
const exportLimit = 500

func (a *API) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	scoped, ok := a.scoped(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := scoped.AuditLogs(r.Context(), chi.URLParam(r, "orgID"), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) exportAuditLogs(w http.ResponseWriter, r *http.Request) {
	scoped, ok := a.scoped(w, r)
	if !ok {
		return
	}
	orgID := chi.URLParam(r, "orgID")
	items, err := scoped.AuditLogs(r.Context(), orgID, exportLimit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := audit.WriteCSV(&buf, items); err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.record(r, orgID, "audit_logs.export", "audit_logs", map[string]any{"rows": len(items)})

	filename := fmt.Sprintf("audit-logs-%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) listGovernanceLogs(w http.ResponseWriter, r *http.Request) {
	scoped, ok := a.scoped(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := scoped.GovernanceLogs(r.Context(), chi.URLParam(r, "orgID"), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
