package types

import "github.com/google/uuid"

// Role is the identity assertion supplied by the authentication collaborator.
// The catalog core trusts it; it never authenticates.
type Role string

const (
	// RoleSubmitter authors proposals (employees and agents).
	RoleSubmitter Role = "submitter"
	// RoleReviewer decides proposals (administrators).
	RoleReviewer Role = "reviewer"
)

// Actor identifies the authenticated caller of a workflow operation.
// It is always passed explicitly, never read from ambient state.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsReviewer() bool {
	return a.Role == RoleReviewer
}

func (a Actor) IsSubmitter() bool {
	return a.Role == RoleSubmitter
}
