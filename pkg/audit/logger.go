package audit

import (
	"context"
	"time"

	"github.com/guildhall-io/guildhall/pkg/contextkeys"
)

// Logger is the audit sink. Implementations must tolerate being called
// from goroutines off the request path.
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// Reader exposes the audit trail for inspection. DBLogger implements
// it; a nil reader means auditing is disabled.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]*Event, error)
}

// NopLogger discards everything. Used in tests and when auditing is
// disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }

// NewEvent builds an event stamped with the current time and the
// request ID from ctx, if any.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
}
