package domain

import "time"

// User represents a registered account.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Public returns the fields safe to serialize to clients.
// The password hash never leaves the server.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}

// PublicUser is the client-facing projection of a User.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
