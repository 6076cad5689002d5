// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

// DefaultAvatar is the avatar reference every new account starts with.
const DefaultAvatar = "default.png"

// User represents a registered user account.
//
// Email is the login key and is UNIQUE in the users table. Name is only a
// display string, so two accounts may share it.
//
// PasswordHash holds the bcrypt output (salt and cost are embedded in it).
// The `json:"-"` tag keeps it out of any JSON response.
type User struct {
	ID           int64  `json:"id"     db:"id"`
	Name         string `json:"name"   db:"name"`
	Email        string `json:"email"  db:"email"`
	PasswordHash string `json:"-"      db:"password"`
	About        string `json:"about"  db:"about"`
	Avatar       string `json:"avatar" db:"avatar"` // stored avatar reference, DefaultAvatar until an upload
}

// Session returns the identity snapshot that is cached in the session cookie.
func (u *User) Session() SessionUser {
	return SessionUser{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Avatar: u.Avatar,
	}
}

// SessionUser is the logged-in identity carried by the session cookie.
//
// It is a snapshot of the users row taken at login time and is not re-read
// from the database on each request. Avatar is the only field that changes
// while a session is alive (profile update re-issues the cookie).
type SessionUser struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}
