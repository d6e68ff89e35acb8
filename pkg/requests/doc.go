// Package requests is the permission request workflow: an admin asks
// for an extra capability, a super_admin approves or rejects it exactly
// once. Approval updates the request, grants the capability, and
// notifies the requester in a single transaction so a failed grant
// never leaves an approved request behind.
package requests
