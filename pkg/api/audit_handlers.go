package api

import (
	"net/http"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/httputil"
)

// defaultAuditLimit bounds the recent-events listing.
const defaultAuditLimit = 100

// recentAuditEvents handles GET /api/v1/audit/recent?limit=n.
func (s *Server) recentAuditEvents(w http.ResponseWriter, r *http.Request) {
	if s.auditReader == nil {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "auditing is disabled")
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", defaultAuditLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := s.auditReader.Recent(r.Context(), limit)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}
	httputil.WriteSuccess(w, events)
}
