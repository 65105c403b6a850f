package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// AdminPassword checks the shared administrator password. A bcrypt hash takes
// precedence; the plaintext value exists for deployments that only set
// ADMIN_PASSWORD.
type AdminPassword struct {
	Hash  string
	Plain string
}

// Configured reports whether any admin password is set.
func (p AdminPassword) Configured() bool {
	return strings.TrimSpace(p.Hash) != "" || p.Plain != ""
}

// Verify returns nil when password matches.
func (p AdminPassword) Verify(password string) error {
	switch {
	case strings.TrimSpace(p.Hash) != "":
		if password == "" || VerifyPassword(p.Hash, password) != nil {
			return ErrInvalidCredentials
		}
		return nil
	case p.Plain != "":
		if subtle.ConstantTimeCompare([]byte(p.Plain), []byte(password)) != 1 {
			return ErrInvalidCredentials
		}
		return nil
	default:
		return ErrAdminPasswordUnset
	}
}
