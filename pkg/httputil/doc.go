// Package httputil provides JSON request/response helpers, the mapping
// from governance domain errors to HTTP status codes, and the base
// middleware every route shares (request ID, logging, panic recovery).
package httputil
