package directory

import (
	"time"

	"github.com/guildhall-io/guildhall/pkg/governance"
)

// Member is one person's identity record. ExternalIdentity is the
// opaque reference to the authentication identity and stays nil until
// the member first signs in. Designation is the organizational title
// and is independent of Role.
type Member struct {
	ID               int64           `json:"id"`
	ExternalIdentity *string         `json:"external_identity,omitempty"`
	FullName         string          `json:"full_name"`
	Role             governance.Role `json:"role"`
	Designation      string          `json:"designation,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// CreateMemberRequest is the signup payload.
type CreateMemberRequest struct {
	FullName    string `json:"full_name"`
	Designation string `json:"designation,omitempty"`
}
