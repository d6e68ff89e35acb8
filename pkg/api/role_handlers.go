package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/roles"
)

// setRoles handles POST /api/v1/roles, the batch role transition. The
// service enforces the caller role and every head-count rule inside one
// transaction; this handler only translates the outcome.
func (s *Server) setRoles(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req roles.SetRolesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := s.roles.SetRoles(r.Context(), caller.ID, req.TargetIDs, req.NewRole)
	if err != nil {
		var violation *governance.RuleViolationError
		if errors.As(err, &violation) {
			if s.metrics != nil {
				s.metrics.RuleViolationsTotal.WithLabelValues(string(violation.Rule)).Inc()
			}
			event := audit.NewEvent(r.Context(), audit.EventRoleChange, audit.StatusDenied)
			event.ActorID = &caller.ID
			event.Message = string(violation.Rule)
			s.recordAudit(event)
		}
		httputil.WriteDomainError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RoleTransitionsTotal.WithLabelValues(req.NewRole.String()).Add(float64(len(req.TargetIDs)))
	}
	event := audit.NewEvent(r.Context(), audit.EventRoleChange, audit.StatusSuccess)
	event.ActorID = &caller.ID
	event.Message = fmt.Sprintf("%d member(s) to %s", len(req.TargetIDs), req.NewRole)
	s.recordAudit(event)

	httputil.WriteNoContent(w)
}
