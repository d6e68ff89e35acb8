package requests

import "time"

// Status is the request lifecycle state. Requests transition exactly
// once from pending to approved or rejected and are never reopened.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// PermissionRequest is a single ask for an extra capability.
type PermissionRequest struct {
	ID            int64     `json:"id"`
	ActorID       int64     `json:"actor_id"`
	PermissionKey string    `json:"permission_key"`
	Reason        string    `json:"reason"`
	Status        Status    `json:"status"`
	ReviewerID    *int64    `json:"reviewer_id,omitempty"`
	ReviewNote    *string   `json:"review_note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SubmitRequest is the submission payload.
type SubmitRequest struct {
	PermissionKey string `json:"permission_key"`
	Reason        string `json:"reason"`
}

// ReviewRequest is the approve/reject payload.
type ReviewRequest struct {
	Note *string `json:"note,omitempty"`
}
