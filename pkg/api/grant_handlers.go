package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/notify"
)

// grantPermission handles POST /api/v1/members/{id}/permissions. The
// route is policy-gated to super_admins; the grant bypasses the request
// workflow entirely.
func (s *Server) grantPermission(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		PermissionKey string `json:"permission_key"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.PermissionKey = strings.TrimSpace(req.PermissionKey)
	if !httputil.RequireNonEmpty(w, req.PermissionKey, "permission_key") {
		return
	}

	// The grant store treats an unknown actor as a no-op, so resolve the
	// target first to surface a 404 instead.
	if _, err := s.members.GetMember(r.Context(), targetID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if err := s.grantStore.Grant(r.Context(), targetID, req.PermissionKey, &caller.ID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	message := fmt.Sprintf("You were granted %q directly", req.PermissionKey)
	if err := s.notify.Append(r.Context(), targetID, notify.TypePermissionGranted,
		"Permission granted", message, &req.PermissionKey); err != nil {
		s.logger.WithError(err).Warn("grant notification failed")
	}

	if s.metrics != nil {
		s.metrics.GrantsTotal.WithLabelValues("grant").Inc()
	}
	event := audit.NewEvent(r.Context(), audit.EventGrantDirect, audit.StatusSuccess)
	event.ActorID = &caller.ID
	event.TargetID = &targetID
	event.PermissionKey = req.PermissionKey
	s.recordAudit(event)

	httputil.WriteNoContent(w)
}

// revokePermission handles DELETE /api/v1/members/{id}/permissions/{key}.
// Revoking a grant the member never held still succeeds.
func (s *Server) revokePermission(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]
	if !httputil.RequireNonEmpty(w, key, "permission key") {
		return
	}

	if err := s.grantStore.Revoke(r.Context(), targetID, key); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	message := fmt.Sprintf("Your %q permission was revoked", key)
	if err := s.notify.Append(r.Context(), targetID, notify.TypePermissionRevoked,
		"Permission revoked", message, &key); err != nil {
		s.logger.WithError(err).Warn("revoke notification failed")
	}

	if s.metrics != nil {
		s.metrics.GrantsTotal.WithLabelValues("revoke").Inc()
	}
	event := audit.NewEvent(r.Context(), audit.EventGrantRevoke, audit.StatusSuccess)
	event.ActorID = &caller.ID
	event.TargetID = &targetID
	event.PermissionKey = key
	s.recordAudit(event)

	httputil.WriteNoContent(w)
}

// listPermissions handles GET /api/v1/members/{id}/permissions. Members
// may list their own grants; anyone else needs the grants.view
// operation.
func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if caller.ID != targetID {
		if !s.allowOperation(w, r, caller.ID, "grants.view") {
			return
		}
	}

	keys, err := s.grantStore.ListActiveByActor(r.Context(), targetID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	httputil.WriteSuccess(w, map[string][]string{"permissions": keys})
}
