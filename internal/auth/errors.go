package auth

import "errors"

var (
	// ErrInvalidToken indicates the token failed signature, purpose or expiry checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden is returned by the gate when the actor is neither owner nor admin.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated means no identity accompanied the request.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidCredentials is returned for a wrong admin password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAdminPasswordUnset means neither a hash nor a plaintext admin password is configured.
	ErrAdminPasswordUnset = errors.New("admin password not configured")
)
