package domain

import "time"

// UsernameMaxLength bounds registered usernames.
const UsernameMaxLength = 64

// User is a registered platform user. Identity is by ID.
type User struct {
	ID        string
	Username  string
	Active    bool
	Roles     []Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRole reports whether the user currently holds role.
func (u *User) HasRole(role Role) bool {
	return containsRole(u.Roles, role)
}

// AddRole grants role, reporting whether the role set changed.
func (u *User) AddRole(role Role) bool {
	if u.HasRole(role) {
		return false
	}
	u.Roles = normalizeRoles(append(u.Roles, role))
	return true
}

// RemoveRole revokes role, reporting whether the role set changed.
func (u *User) RemoveRole(role Role) bool {
	if !u.HasRole(role) {
		return false
	}
	kept := make([]Role, 0, len(u.Roles)-1)
	for _, r := range u.Roles {
		if r != role {
			kept = append(kept, r)
		}
	}
	u.Roles = kept
	return true
}
