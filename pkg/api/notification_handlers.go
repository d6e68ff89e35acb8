package api

import (
	"net/http"

	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/notify"
)

// defaultNotificationLimit bounds an unpaginated listing.
const defaultNotificationLimit = 50

// listNotifications handles GET /api/v1/notifications?limit=n. The
// listing is always scoped to the caller.
func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", defaultNotificationLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	notifications, err := s.notify.ListByActor(r.Context(), caller.ID, limit)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*notify.Notification{}
	}
	httputil.WriteSuccess(w, notifications)
}

// unreadCount handles GET /api/v1/notifications/unread-count.
func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	count, err := s.notify.UnreadCount(r.Context(), caller.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int{"unread": count})
}

// markRead handles POST /api/v1/notifications/{id}/read. The store
// scopes the update to the caller, so a foreign ID reads as not found.
func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	notificationID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.notify.MarkRead(r.Context(), caller.ID, notificationID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// markAllRead handles POST /api/v1/notifications/read-all.
func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	if err := s.notify.MarkAllRead(r.Context(), caller.ID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

