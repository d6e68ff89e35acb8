package authz

import (
	"context"
	"errors"

	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/grants"
	"github.com/guildhall-io/guildhall/pkg/storage/postgres"
)

// Check describes what an operation requires. When RequiredPermission
// is set it takes precedence over AllowedRoles; otherwise the actor's
// role must be in AllowedRoles.
type Check struct {
	AllowedRoles       []governance.Role
	RequiredPermission string
}

// Gate evaluates authorization checks against current state. It has no
// cache and no mutable state of its own.
type Gate struct {
	members *directory.Store
	grants  *grants.Store
}

// NewGate creates a gate reading through the given database handle.
func NewGate(db postgres.DBTX) *Gate {
	return &Gate{
		members: directory.NewStore(db),
		grants:  grants.NewStore(db),
	}
}

// Allowed reports whether the actor may perform the checked operation.
// super_admins pass every check. An unknown actor is denied, not an
// error; storage failures are errors so the caller can distinguish
// "denied" from "could not decide".
func (g *Gate) Allowed(ctx context.Context, actorID int64, check Check) (bool, error) {
	role, err := g.members.GetRole(ctx, actorID)
	if errors.Is(err, governance.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if role == governance.RoleSuperAdmin {
		return true, nil
	}

	if check.RequiredPermission != "" {
		return g.grants.IsActive(ctx, actorID, check.RequiredPermission)
	}

	for _, allowed := range check.AllowedRoles {
		if role == allowed {
			return true, nil
		}
	}
	return false, nil
}
