package domain

import "time"

// UserCredential is one entry of a user's password history. The most recently
// created entry is the current password.
type UserCredential struct {
	ID             string
	UserID         string
	HashedPassword string
	CreatedAt      time.Time
}
