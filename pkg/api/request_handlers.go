package api

import (
	"net/http"
	"strings"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/requests"
)

// submitRequest handles POST /api/v1/requests. The service rejects
// callers that are not admins.
func (s *Server) submitRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req requests.SubmitRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.PermissionKey = strings.TrimSpace(req.PermissionKey)
	if !httputil.RequireNonEmpty(w, req.PermissionKey, "permission_key") {
		return
	}
	if !httputil.RequireNonEmpty(w, strings.TrimSpace(req.Reason), "reason") {
		return
	}

	request, err := s.requests.Submit(r.Context(), caller.ID, req.PermissionKey, req.Reason)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RequestsSubmittedTotal.Inc()
	}
	event := audit.NewEvent(r.Context(), audit.EventRequestSubmit, audit.StatusSuccess)
	event.ActorID = &caller.ID
	event.PermissionKey = request.PermissionKey
	s.recordAudit(event)

	httputil.WriteCreated(w, request)
}

// approveRequest handles POST /api/v1/requests/{id}/approve.
func (s *Server) approveRequest(w http.ResponseWriter, r *http.Request) {
	s.reviewRequest(w, r, true)
}

// rejectRequest handles POST /api/v1/requests/{id}/reject.
func (s *Server) rejectRequest(w http.ResponseWriter, r *http.Request) {
	s.reviewRequest(w, r, false)
}

func (s *Server) reviewRequest(w http.ResponseWriter, r *http.Request, approve bool) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	requestID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	// The body is optional; a missing or empty body means no note.
	var review requests.ReviewRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !httputil.ParseJSONOrError(w, r, &review) {
			return
		}
	}

	var (
		request *requests.PermissionRequest
		err     error
	)
	if approve {
		request, err = s.requests.Approve(r.Context(), requestID, caller.ID, review.Note)
	} else {
		request, err = s.requests.Reject(r.Context(), requestID, caller.ID, review.Note)
	}
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	outcome := "rejected"
	eventType := audit.EventRequestReject
	if approve {
		outcome = "approved"
		eventType = audit.EventRequestApprove
	}
	if s.metrics != nil {
		s.metrics.RequestsReviewedTotal.WithLabelValues(outcome).Inc()
	}
	event := audit.NewEvent(r.Context(), eventType, audit.StatusSuccess)
	event.ActorID = &caller.ID
	event.TargetID = &request.ActorID
	event.PermissionKey = request.PermissionKey
	s.recordAudit(event)

	httputil.WriteSuccess(w, request)
}

// listPendingRequests handles GET /api/v1/requests/pending. The service
// restricts the queue to super_admins.
func (s *Server) listPendingRequests(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	pending, err := s.requests.ListPending(r.Context(), caller.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if pending == nil {
		pending = []*requests.PermissionRequest{}
	}
	httputil.WriteSuccess(w, pending)
}

// listMyRequests handles GET /api/v1/requests/mine.
func (s *Server) listMyRequests(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	mine, err := s.requests.ListMine(r.Context(), caller.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if mine == nil {
		mine = []*requests.PermissionRequest{}
	}
	httputil.WriteSuccess(w, mine)
}
