// Package auth authenticates administrators of the support desk.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
)

// ErrInvalidCredentials is returned when a username/password pair does not match.
var ErrInvalidCredentials = errors.New("invalid admin credentials")

// Credentials is the single configured admin account.
type Credentials struct {
	Username string
	Password string
}

// Configured reports whether both a username and a password are set.
func (c Credentials) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// Verify checks username and password in constant time. An unconfigured
// account never verifies.
func (c Credentials) Verify(username, password string) error {
	if !c.Configured() {
		return ErrInvalidCredentials
	}

	// Hash first so the comparison does not leak the configured lengths.
	wantUser := sha256.Sum256([]byte(c.Username))
	gotUser := sha256.Sum256([]byte(username))
	wantPass := sha256.Sum256([]byte(c.Password))
	gotPass := sha256.Sum256([]byte(password))

	userOK := subtle.ConstantTimeCompare(wantUser[:], gotUser[:])
	passOK := subtle.ConstantTimeCompare(wantPass[:], gotPass[:])
	if userOK&passOK != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
