package notify

import "time"

// Type categorizes a notification.
type Type string

const (
	TypePermissionApproved Type = "permission_approved"
	TypePermissionRejected Type = "permission_rejected"
	TypePermissionRevoked  Type = "permission_revoked"
	TypePermissionGranted  Type = "permission_granted"
	TypeInfo               Type = "info"
)

// Notification is one message to one actor.
type Notification struct {
	ID                int64     `json:"id"`
	ActorID           int64     `json:"actor_id"`
	Type              Type      `json:"type"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	RelatedPermission *string   `json:"related_permission,omitempty"`
	IsRead            bool      `json:"is_read"`
	CreatedAt         time.Time `json:"created_at"`
}
