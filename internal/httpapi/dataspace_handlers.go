package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"procuredata.io/internal/audit"
	"procuredata.io/internal/auth"
	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/obs"
)

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Store.Catalog().ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) listAssets(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Store.Catalog().ListAssets(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := a.deps.Store.Organizations().Get(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req dataspace.AccessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := a.deps.Workflow.RequestAccess(r.Context(), callerID(r), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.record(r, tx.ConsumerOrgID, "transaction.create", "data_transactions", map[string]any{
		"transaction_id": tx.ID,
		"asset_id":       tx.AssetID,
	})
	w.Header().Set("Location", "/v1/transactions/"+tx.ID)
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) getTransaction(w http.ResponseWriter, r *http.Request) {
	scoped, ok := a.scoped(w, r)
	if !ok {
		return
	}
	tx, err := scoped.Transaction(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) getHistory(w http.ResponseWriter, r *http.Request) {
	scoped, ok := a.scoped(w, r)
	if !ok {
		return
	}
	items, err := scoped.History(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type transitionRequest struct {
	Notes string `json:"notes"`
}

func (a *API) transitionTransaction(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	user := callerID(r)
	txID := chi.URLParam(r, "txID")
	svc := a.deps.Workflow

	var (
		tx  dataspace.DataTransaction
		err error
	)
	switch action := chi.URLParam(r, "action"); action {
	case "pre-approve":
		tx, err = svc.PreApprove(ctx, user, txID, req.Notes)
	case "approve":
		tx, err = svc.Approve(ctx, user, txID, req.Notes)
	case "deny":
		tx, err = svc.Deny(ctx, user, txID, req.Notes)
	case "cancel":
		tx, err = svc.Cancel(ctx, user, txID, req.Notes)
	case "complete":
		tx, err = svc.Complete(ctx, user, txID)
	case "revoke":
		tx, err = svc.Revoke(ctx, user, txID, req.Notes)
	default:
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("unknown transaction action %q", action))
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) scoped(w http.ResponseWriter, r *http.Request) (*dataspace.Scoped, bool) {
	s, err := dataspace.NewScoped(a.deps.Store, callerID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	return s, true
}

// record appends an audit row for the caller. A failed append is logged and
// never fails the request.
func (a *API) record(r *http.Request, orgID, action, resource string, details map[string]any) {
	entry := dataspace.AuditLog{
		OrganizationID: orgID,
		Action:         action,
		Resource:       resource,
		Details:        details,
		IPAddress:      clientIP(r),
	}
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		entry.UserID = p.UserID
		entry.UserEmail = p.Email
	}
	if err := a.recorder.Record(r.Context(), entry); err != nil {
		obs.Logger().Warn("audit append failed",
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.String("action", action),
			zap.Error(err))
	}
}
