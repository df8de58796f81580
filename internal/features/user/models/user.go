package models

import "time"

// User is a person who has talked to the bot. Kept so creators and winners
// can be addressed by name and so admin commands can be gated.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	Mailing   bool      `json:"mailing"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

// DisplayName returns the best human-readable handle for the user.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}
