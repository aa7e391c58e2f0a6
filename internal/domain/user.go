// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxUsernameLen = 254

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// Presence is the connectivity state shown next to a user in the roster.
type Presence string

const (
	PresenceDisconnected Presence = "disconnected"
	PresenceConnecting   Presence = "connecting"
	PresenceConnected    Presence = "connected"
)

type User struct {
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName,omitempty"`
	Presence    Presence `json:"presence"`
}

// NewUser validates an externally supplied username before it becomes the
// local identity.
func NewUser(username string) (*User, error) {
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &User{Username: username, Presence: PresenceDisconnected}, nil
}

// SignedIn reports whether an identity has been established.
func (u *User) SignedIn() bool { return u.Username != "" }

// Reset clears identity and presence, e.g. on sign-out.
func (u *User) Reset() {
	u.Username = ""
	u.DisplayName = ""
	u.Presence = PresenceDisconnected
}
