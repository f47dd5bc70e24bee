package protocol

import "fmt"

// Role is the wire value naming a participant's side of the call.
type Role string

const (
	// RoleDoctor always creates the offer.
	RoleDoctor Role = "doctor"
	// RolePatient only ever answers.
	RolePatient Role = "patient"
)

// ParseRole validates a role supplied on the command line or the wire.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleDoctor, RolePatient:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q (want %q or %q)", s, RoleDoctor, RolePatient)
	}
}

// Initiates reports whether this role produces the first offer.
func (r Role) Initiates() bool {
	return r == RoleDoctor
}

// Participant identifies one side of a call.
type Participant struct {
	ID          string
	DisplayName string
	Role        Role
}
