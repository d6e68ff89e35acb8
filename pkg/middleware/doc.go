// Package middleware holds cross-cutting HTTP middleware that needs
// external backing stores. Currently that is the Redis-backed rate
// limiter shared across instances; per-request concerns without state
// live in pkg/httputil.
package middleware
