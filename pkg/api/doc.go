// Package api exposes the governance subsystem over HTTP.
//
// All routes live under /api/v1 and require an authenticated caller;
// authentication, request IDs, access logging, panic recovery and rate
// limiting are applied as router-wide middleware. Route-level
// authorization is driven by the operation policy through pkg/authz.
package api
