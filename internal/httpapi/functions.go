package httpapi

import (
	"net/http"
	"strings"

	"procuredata.io/internal/notify"
)

// NotificationHandler is POST /functions/v1/notification-handler.
func (a *API) NotificationHandler(w http.ResponseWriter, r *http.Request) {
	if a.deps.Dispatcher == nil {
		writeFunctionError(w, r, http.StatusInternalServerError, "notifications are not configured")
		return
	}
	var req notify.Request
	if err := decodeLenientJSON(w, r, &req); err != nil {
		writeFunctionError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.deps.Dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		a.functionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type deleteUserRequest struct {
	UserID string `json:"userId"`
}

// AdminUsers is GET /functions/v1/admin-users, optionally narrowed with ?orgId=.
func (a *API) AdminUsers(w http.ResponseWriter, r *http.Request) {
	if a.deps.Admin == nil {
		writeFunctionError(w, r, http.StatusInternalServerError, "admin service is not configured")
		return
	}
	ctx := r.Context()
	if err := a.deps.Admin.Authorize(ctx, callerID(r)); err != nil {
		a.functionError(w, r, err)
		return
	}

	if orgID := strings.TrimSpace(r.URL.Query().Get("orgId")); orgID != "" {
		members, err := a.deps.Admin.ListMembers(ctx, orgID)
		if err != nil {
			a.functionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
		return
	}

	users, err := a.deps.Admin.ListUsers(ctx)
	if err != nil {
		a.functionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// AdminDeleteUser is POST /functions/v1/admin-users with {"userId": ...}.
func (a *API) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if a.deps.Admin == nil {
		writeFunctionError(w, r, http.StatusInternalServerError, "admin service is not configured")
		return
	}
	ctx := r.Context()
	caller := callerID(r)
	if err := a.deps.Admin.Authorize(ctx, caller); err != nil {
		a.functionError(w, r, err)
		return
	}
	var req deleteUserRequest
	if err := decodeLenientJSON(w, r, &req); err != nil {
		writeFunctionError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.Admin.DeleteUser(ctx, caller, req.UserID); err != nil {
		a.functionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// functionError reports upstream failures as 500, the function endpoints' only server error.
func (a *API) functionError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err, http.StatusInternalServerError)
	logFailure(r, code, err)
	writeFunctionError(w, r, code, msg)
}
