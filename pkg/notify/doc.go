// Package notify is the notification service: append-only per-actor
// messages describing governance events. Rows are only ever mutated to
// flip is_read; the governance subsystem never deletes them.
package notify
