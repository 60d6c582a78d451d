package types

import "time"

// User represents a registered account.
// It carries identity and credential metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's email address. Unique across all users.
	Email string `json:"email" db:"email"`

	// Username is the unique login name chosen by the user.
	// It is also the subject of every access token issued to the user.
	Username string `json:"username" db:"username"`

	// FullName is the optional display name of the user.
	FullName *string `json:"full_name" db:"full_name"`

	// PasswordHash stores the bcrypt digest of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
