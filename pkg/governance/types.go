package governance

// Role is the coarse-grained authority tier of a member.
type Role string

const (
	RoleMember     Role = "member"
	RoleHonourable Role = "honourable"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Super-admin headcount bounds. The organization must always have at
// least one super_admin and never more than two.
const (
	MinSuperAdmins = 1
	MaxSuperAdmins = 2
)

// Valid reports whether r is one of the defined role tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleHonourable, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// AllRoles returns the defined role tiers in ascending order of authority.
func AllRoles() []Role {
	return []Role{RoleMember, RoleHonourable, RoleAdmin, RoleSuperAdmin}
}
