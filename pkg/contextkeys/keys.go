// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application are defined here. This
// prevents typos, documents dependencies, and makes key usage
// discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions.
type Key string

const (
	// CallerKey contains the authenticated *directory.Member making the
	// request. Set by identity.Authenticator; required by every
	// privileged handler.
	CallerKey Key = "caller"

	// RequestIDKey contains the request ID string (UUID).
	// Set by httputil.RequestID; used by logging and audit.
	RequestIDKey Key = "request_id"

	// LoggerKey contains the *observability.Logger scoped to the request.
	LoggerKey Key = "logger"
)

// WithCaller adds the authenticated caller to the context.
func WithCaller(ctx context.Context, caller interface{}) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// WithRequestID adds the request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds a request-scoped logger to the context.
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
