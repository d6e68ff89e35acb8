package roles

import "github.com/guildhall-io/guildhall/pkg/governance"

// SetRolesRequest is the batch role change payload.
type SetRolesRequest struct {
	TargetIDs []int64         `json:"target_ids"`
	NewRole   governance.Role `json:"new_role"`
}
