// Package audit records who did what to the governance state: request
// reviews, direct grants and revokes, role transitions, membership
// changes and denied attempts. Entries are append-only rows in the same
// database, written off the request path; a retention sweep trims them
// after the configured window.
package audit
