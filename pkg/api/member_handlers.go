package api

import (
	"net/http"
	"strings"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/authz"
	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/httputil"
)

// createMember handles POST /api/v1/members.
func (s *Server) createMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req directory.CreateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	if !httputil.RequireNonEmpty(w, req.FullName, "full_name") {
		return
	}

	member, err := s.members.CreateMember(r.Context(), req.FullName, req.Designation)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventMemberCreate, audit.StatusSuccess)
	event.ActorID = &caller.ID
	event.TargetID = &member.ID
	event.Message = member.FullName
	s.recordAudit(event)

	httputil.WriteCreated(w, member)
}

// getMember handles GET /api/v1/members/{id}. Members may always read
// their own record; anyone else needs the directory.view operation.
func (s *Server) getMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if caller.ID != memberID {
		if !s.allowOperation(w, r, caller.ID, "directory.view") {
			return
		}
	}

	member, err := s.members.GetMember(r.Context(), memberID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

// getSelf handles GET /api/v1/me, returning the caller's record plus
// their active capability keys.
func (s *Server) getSelf(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	permissions, err := s.grantStore.ListActiveByActor(r.Context(), caller.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, struct {
		*directory.Member
		Permissions []string `json:"permissions"`
	}{Member: caller, Permissions: permissions})
}

// listMembers handles GET /api/v1/members?role=admin.
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	role := governance.Role(r.URL.Query().Get("role"))
	if role == "" {
		httputil.WriteBadRequest(w, "role query parameter is required")
		return
	}
	if !role.Valid() {
		httputil.WriteBadRequest(w, "unknown role: "+role.String())
		return
	}

	members, err := s.members.ListByRole(r.Context(), role)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// deleteMember handles DELETE /api/v1/members/{id}. Grants, requests
// and notifications disappear with the member by cascade.
func (s *Server) deleteMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.members.DeleteMember(r.Context(), memberID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventMemberDelete, audit.StatusSuccess)
	event.ActorID = &caller.ID
	event.TargetID = &memberID
	s.recordAudit(event)

	httputil.WriteNoContent(w)
}

// linkIdentity handles POST /api/v1/members/{id}/identity, binding an
// authentication subject to a member record.
func (s *Server) linkIdentity(w http.ResponseWriter, r *http.Request) {
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		ExternalIdentity string `json:"external_identity"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ExternalIdentity, "external_identity") {
		return
	}

	if err := s.members.LinkIdentity(r.Context(), memberID, req.ExternalIdentity); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// allowOperation runs a policy-driven gate check inside a handler,
// writing the refusal itself. Returns true when the caller may proceed.
func (s *Server) allowOperation(w http.ResponseWriter, r *http.Request, actorID int64, operation string) bool {
	roles, _ := s.policy.RolesFor(operation)
	allowed, err := s.gate.Allowed(r.Context(), actorID, authz.Check{AllowedRoles: roles})
	if err != nil {
		httputil.WriteDomainError(w, err)
		return false
	}
	if !allowed {
		if s.metrics != nil {
			s.metrics.AccessDeniedTotal.WithLabelValues(operation).Inc()
		}
		httputil.WriteForbidden(w, "insufficient role for "+operation)
		return false
	}
	return true
}
