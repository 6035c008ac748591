package auth

import (
	"crypto/subtle"
	"errors"
)

// ErrInvalidCredentials is returned for any failed admin login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials is the single admin account allowed to create sessions.
// The password is stored only as a bcrypt hash.
type Credentials struct {
	Username     string
	PasswordHash string
}

// Configured reports whether an admin account exists.
func (c Credentials) Configured() bool {
	return c.Username != "" && c.PasswordHash != ""
}

// Authenticate checks a login attempt.
func (c Credentials) Authenticate(username, password string) error {
	if !c.Configured() {
		return ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	// bcrypt runs even when the username is wrong
	passErr := VerifyPassword(c.PasswordHash, password)
	if !userOK || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}
