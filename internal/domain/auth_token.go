package domain

import (
	"time"

	"github.com/google/uuid"
)

// OwnerKind tags which kind of principal a token was issued for.
type OwnerKind string

const (
	OwnerKindUser    OwnerKind = "USER"
	OwnerKindSubject OwnerKind = "SUBJECT"
)

// AuthToken is an issued bearer token. It owns either a registered User or a
// free-text subject, and carries the roles granted at issuance. A token only
// ever moves from valid to invalid.
type AuthToken struct {
	id        uuid.UUID
	kind      OwnerKind
	user      *User
	subject   string
	roles     []Role
	createdAt time.Time
	valid     bool
}

// NewUserAuthToken issues a token for user with a snapshot of the user's
// current roles.
func NewUserAuthToken(user *User, createdAt time.Time) *AuthToken {
	return &AuthToken{
		id:        uuid.New(),
		kind:      OwnerKindUser,
		user:      user,
		roles:     normalizeRoles(user.Roles),
		createdAt: createdAt,
		valid:     true,
	}
}

// NewSubjectAuthToken issues a token for a non-user principal.
func NewSubjectAuthToken(subject string, roles []Role, createdAt time.Time) *AuthToken {
	return &AuthToken{
		id:        uuid.New(),
		kind:      OwnerKindSubject,
		subject:   subject,
		roles:     normalizeRoles(roles),
		createdAt: createdAt,
		valid:     true,
	}
}

// RestoreAuthToken rebuilds a token loaded from storage.
func RestoreAuthToken(id uuid.UUID, kind OwnerKind, user *User, subject string, roles []Role, createdAt time.Time, valid bool) *AuthToken {
	return &AuthToken{
		id:        id,
		kind:      kind,
		user:      user,
		subject:   subject,
		roles:     normalizeRoles(roles),
		createdAt: createdAt,
		valid:     valid,
	}
}

func (t *AuthToken) ID() uuid.UUID        { return t.id }
func (t *AuthToken) Kind() OwnerKind      { return t.kind }
func (t *AuthToken) CreatedAt() time.Time { return t.createdAt }
func (t *AuthToken) Valid() bool          { return t.valid }

// User returns the owning user, or nil for subject tokens.
func (t *AuthToken) User() *User {
	if t.kind != OwnerKindUser {
		return nil
	}
	return t.user
}

// Subject returns the owning subject, or "" for user tokens.
func (t *AuthToken) Subject() string {
	if t.kind != OwnerKindSubject {
		return ""
	}
	return t.subject
}

// Owner is the identifier of the principal: the username for user tokens and
// the subject otherwise.
func (t *AuthToken) Owner() string {
	if t.kind == OwnerKindUser {
		if t.user == nil {
			return ""
		}
		return t.user.Username
	}
	return t.subject
}

// Roles returns a copy of the roles granted through this token.
func (t *AuthToken) Roles() []Role {
	out := make([]Role, len(t.roles))
	copy(out, t.roles)
	return out
}

// HasRole reports whether role was granted through this token.
func (t *AuthToken) HasRole(role Role) bool {
	return containsRole(t.roles, role)
}

// Invalidate revokes the token. It is idempotent.
func (t *AuthToken) Invalidate() {
	t.valid = false
}
