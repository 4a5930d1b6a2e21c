package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	scoped, ok := a.scoped(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	items, err := scoped.Notifications(r.Context(), unreadOnly, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	unread, err := scoped.UnreadCount(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":        items,
		"unread_count": unread,
	})
}

func (a *API) markRead(read bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scoped, ok := a.scoped(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "notificationID")
		var err error
		if read {
			err = scoped.MarkRead(r.Context(), id)
		} else {
			err = scoped.MarkUnread(r.Context(), id)
		}
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_read": read})
	}
}

func (a *API) markAllRead(w http.ResponseWriter, r *http.Request) {
	scoped, ok := a.scoped(w, r)
	if !ok {
		return
	}
	n, err := scoped.MarkAllRead(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": n})
}
