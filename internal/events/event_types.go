package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/token-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRoleRemoved EventType = "user_role_removed"
	EventUserDisabled    EventType = "user_disabled"
)

// DisableReason says why a user lost access.
type DisableReason string

const (
	DisableReasonDeactivated DisableReason = "DEACTIVATED"
	DisableReasonDeleted     DisableReason = "DELETED"
)

// Event represents a user-level change published by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RoleRemoved is published when a role is taken away from a user.
type RoleRemoved struct {
	User *domain.User `json:"user"`
	Role domain.Role  `json:"role"`
}

// UserDisabled is published when a user is deactivated or deleted.
type UserDisabled struct {
	User   *domain.User  `json:"user"`
	Reason DisableReason `json:"reason"`
}

// NewRoleRemovedEvent wraps a RoleRemoved payload.
func NewRoleRemovedEvent(user *domain.User, role domain.Role, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      EventUserRoleRemoved,
		Timestamp: now,
		Payload:   &RoleRemoved{User: user, Role: role},
	}
}

// NewUserDisabledEvent wraps a UserDisabled payload.
func NewUserDisabledEvent(user *domain.User, reason DisableReason, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      EventUserDisabled,
		Timestamp: now,
		Payload:   &UserDisabled{User: user, Reason: reason},
	}
}
