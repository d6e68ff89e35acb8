package audit

import "time"

// EventType categorizes an audit entry.
type EventType string

const (
	EventMemberCreate   EventType = "member.create"
	EventMemberDelete   EventType = "member.delete"
	EventRequestSubmit  EventType = "request.submit"
	EventRequestApprove EventType = "request.approve"
	EventRequestReject  EventType = "request.reject"
	EventGrantDirect    EventType = "grant.direct"
	EventGrantRevoke    EventType = "grant.revoke"
	EventRoleChange     EventType = "role.change"
	EventAccessDenied   EventType = "access.denied"
)

// EventStatus is the outcome of the audited operation.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusDenied  EventStatus = "denied"
)

// Event is one audit trail entry.
type Event struct {
	ID            int64       `json:"id"`
	Timestamp     time.Time   `json:"timestamp"`
	EventType     EventType   `json:"event_type"`
	Status        EventStatus `json:"status"`
	ActorID       *int64      `json:"actor_id,omitempty"`
	TargetID      *int64      `json:"target_id,omitempty"`
	PermissionKey string      `json:"permission_key,omitempty"`
	RequestID     string      `json:"request_id,omitempty"`
	Message       string      `json:"message,omitempty"`
}
