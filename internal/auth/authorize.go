package auth

import "strings"

// Actor is the identity a request acts with. Admin is resolved once, at the
// boundary, from the allow-list or a verified admin session.
type Actor struct {
	UserID string
	Email  string
	Admin  bool
}

// Authenticated reports whether the actor carries any identity at all.
func (a Actor) Authenticated() bool {
	return a.UserID != "" || a.Admin
}

// CanAccess is the ownership gate: admins always pass, everyone else only for
// records they own. Records without an owner are reachable by admins only.
func CanAccess(a Actor, ownerID string) bool {
	if a.Admin {
		return true
	}
	return a.UserID != "" && ownerID != "" && a.UserID == ownerID
}

// Authorize wraps CanAccess with ErrForbidden for error-returning call paths.
func Authorize(a Actor, ownerID string) error {
	if !CanAccess(a, ownerID) {
		return ErrForbidden
	}
	return nil
}

// AdminList is the configured allow-list of administrator email addresses.
type AdminList struct {
	emails map[string]struct{}
}

// NewAdminList normalizes addresses (trimmed, lower-cased) and drops blanks.
func NewAdminList(emails []string) AdminList {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = normalizeEmail(e)
		if e == "" {
			continue
		}
		set[e] = struct{}{}
	}
	return AdminList{emails: set}
}

// Contains reports whether email is an administrator.
func (l AdminList) Contains(email string) bool {
	email = normalizeEmail(email)
	if email == "" {
		return false
	}
	_, ok := l.emails[email]
	return ok
}

// Len returns the number of configured administrators.
func (l AdminList) Len() int { return len(l.emails) }

// Actor builds the identity for an authenticated user.
func (l AdminList) Actor(userID, email string) Actor {
	return Actor{UserID: userID, Email: email, Admin: l.Contains(email)}
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
