package domain

import (
	"encoding/json"
	"strings"
)

// Role represents the platform role of the authenticated user.
type Role string

const (
	// RoleInstructor represents a user who owns and edits courses.
	RoleInstructor Role = "instructor"
	// RoleStudent represents a user who enrolls in courses.
	RoleStudent Role = "student"
	// RoleUnknown represents a missing or unrecognized role in the profile payload.
	RoleUnknown Role = ""
)

// ParseRole normalizes a role string from the profile endpoint.
// Unrecognized values map to RoleUnknown.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleInstructor:
		return RoleInstructor
	case RoleStudent:
		return RoleStudent
	default:
		return RoleUnknown
	}
}

// UnmarshalJSON accepts null and unknown roles without failing.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*r = RoleUnknown
		return nil
	}
	*r = ParseRole(*s)
	return nil
}

// Identity is the public profile returned by GET /api/me/.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Validate checks that the profile identifies a user.
func (i *Identity) Validate() error {
	if i.ID <= 0 {
		return NewInternalError("INVALID_IDENTITY", "Profile is missing an id", nil)
	}
	if strings.TrimSpace(i.Username) == "" {
		return NewInternalError("INVALID_IDENTITY", "Profile is missing a username", nil)
	}
	return nil
}

// IsInstructor returns true if the user has the instructor role.
func (i *Identity) IsInstructor() bool {
	return i.Role == RoleInstructor
}

// IsStudent returns true if the user has the student role.
func (i *Identity) IsStudent() bool {
	return i.Role == RoleStudent
}
