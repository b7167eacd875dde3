package httpapi

import (
	"net/http"

	"osutourney.org/internal/notify"
)

type notificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID := claimsOf(r).UserID
	list, err := a.deps.Inbox.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	unread, err := a.deps.Inbox.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: list, Unread: unread})
}

func (a *API) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.deps.Inbox.UnreadCount(r.Context(), claimsOf(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

type markReadRequest struct {
	Read bool `json:"read"`
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "notificationID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req markReadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Inbox.MarkRead(r.Context(), claimsOf(r).UserID, id, req.Read); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := a.deps.Inbox.MarkAllRead(r.Context(), claimsOf(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (a *API) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "notificationID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Inbox.Delete(r.Context(), claimsOf(r).UserID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
