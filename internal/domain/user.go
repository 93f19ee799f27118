package domain

import "time"

// User represents a storefront account. Soft-deleted users keep their row and
// stay addressable by ID, but are hidden from default listings.
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Address      string
	Role         string
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins the profile name parts for display and token claims.
func (u User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Role is a name-only entity referenced by User.Role.
type Role struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// PasswordResetToken is single-use and time-bounded. Consumption flips
// Consumed exactly once; expiry is explicit rather than delegated to the
// store's ambient lifecycle.
type PasswordResetToken struct {
	ID        int64
	UserID    int64
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}
