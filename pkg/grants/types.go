package grants

import "time"

// GrantedPermission is the effective capability grant for one actor.
// Revoking flips IsActive instead of deleting the row.
type GrantedPermission struct {
	ID            int64     `json:"id"`
	ActorID       int64     `json:"actor_id"`
	PermissionKey string    `json:"permission_key"`
	GrantedBy     *int64    `json:"granted_by,omitempty"`
	GrantedAt     time.Time `json:"granted_at"`
	IsActive      bool      `json:"is_active"`
}
