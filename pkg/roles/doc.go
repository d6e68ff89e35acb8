// Package roles is the role transition service. It applies a new role
// to a batch of members as one all-or-nothing change, after checking
// the organization-wide invariants in a fixed order: only super_admins
// change roles, the super_admin head count stays between one and two,
// honourable is terminal, and only admins can become honourable.
//
// The check-and-apply sequence runs inside a transaction holding an
// advisory lock keyed on the super_admin head count, so two concurrent
// promotions cannot both pass the cap check against a stale count.
package roles
