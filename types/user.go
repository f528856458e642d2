package types

import "time"

// User represents an account in the system.
// It contains identity, credential, and session metadata.
type User struct {
	// ID is the unique identifier of the user, assigned at creation.
	ID string `json:"id" db:"id"`

	// Username is the unique public name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address, used to log in.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Tokens holds the bearer tokens currently accepted for this user,
	// oldest first. A token absent from this list is treated as revoked.
	// Never exposed in API responses.
	Tokens []string `json:"-" db:"tokens"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
