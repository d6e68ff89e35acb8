// Package governance defines the shared vocabulary of the role and
// permission governance subsystem: the organizational role tiers, the
// bounds on the super_admin role, and the domain error kinds every
// service surfaces to callers.
//
// Services never return raw SQL errors to handlers. Domain failures are
// one of the sentinel errors (or a RuleViolationError for batch role
// transitions); anything coming from the store is wrapped in a
// StorageError so the transport layer can tell retryable infrastructure
// failures apart from domain rejections.
package governance
