// Package authz is the authorization gate: a pure predicate consulted
// before any privileged operation runs. It reads the member's current
// role and active grants on every call and never caches a decision, so
// a revoke or demotion is observed on the very next privileged action.
//
// Route-level policy (which roles may enter which operation) lives in a
// JSON file reloaded on change, so tightening an operation does not
// need a redeploy.
package authz
