// Package async provides guarded goroutine helpers for fire-and-forget
// work off the request path, such as audit logging. Use these instead
// of a bare go statement so a panic in background work never takes the
// process down.
package async
