// Package grants is the granted-permission store: one row per
// (actor, capability) pair, reactivated on re-grant and soft-deleted on
// revoke so the grant history is never lost. Grant and revoke are
// idempotent; the authorization gate reads IsActive on every check.
package grants
