package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer          = "cachepledge"
	defaultSessionTTL      = 30 * 24 * time.Hour
	defaultEditTokenTTL    = 24 * time.Hour
	defaultAdminSessionTTL = 24 * time.Hour

	// allowed clock skew when validating issued-at
	clockSkew = 5 * time.Second
)

// Token purposes. A token minted for one purpose never validates as another.
const (
	PurposeSession      = "session"
	PurposeEdit         = "edit"
	PurposeAdminSession = "admin-session"
)

// Claims represents JWT claims used across the service.
type Claims struct {
	Purpose    string `json:"purpose"`
	Email      string `json:"email,omitempty"`
	Admin      bool   `json:"admin,omitempty"`
	VerifiedAt string `json:"verifiedAt,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens with a secret injected at start-up.
type Issuer struct {
	secret          []byte
	issuer          string
	now             func() time.Time
	sessionTTL      time.Duration
	editTokenTTL    time.Duration
	adminSessionTTL time.Duration
}

// IssuerOption configures Issuer behavior.
type IssuerOption func(*Issuer) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(name string) IssuerOption {
	return func(i *Issuer) error {
		if name = strings.TrimSpace(name); name != "" {
			i.issuer = name
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) error {
		if fn != nil {
			i.now = fn
		}
		return nil
	}
}

// WithSessionTTL configures user session lifetime.
func WithSessionTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl > 0 {
			i.sessionTTL = ttl
		}
		return nil
	}
}

// WithEditTokenTTL configures manage-link lifetime.
func WithEditTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl > 0 {
			i.editTokenTTL = ttl
		}
		return nil
	}
}

// WithAdminSessionTTL configures admin-session cookie lifetime.
func WithAdminSessionTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl > 0 {
			i.adminSessionTTL = ttl
		}
		return nil
	}
}

// NewIssuer constructs an Issuer. The secret is mandatory.
func NewIssuer(secret string, opts ...IssuerOption) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: secret is not configured")
	}
	i := &Issuer{
		secret:          []byte(secret),
		issuer:          defaultIssuer,
		now:             time.Now,
		sessionTTL:      defaultSessionTTL,
		editTokenTTL:    defaultEditTokenTTL,
		adminSessionTTL: defaultAdminSessionTTL,
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	return i, nil
}

// SessionTTL returns the configured session lifetime.
func (i *Issuer) SessionTTL() time.Duration { return i.sessionTTL }

// AdminSessionTTL returns the configured admin-session lifetime.
func (i *Issuer) AdminSessionTTL() time.Duration { return i.adminSessionTTL }

// IssueSession signs a user session token.
func (i *Issuer) IssueSession(userID, email string) (string, time.Time, error) {
	return i.sign(Claims{Purpose: PurposeSession, Email: email}, userID, i.sessionTTL)
}

// ParseSession validates a user session token and returns its claims.
func (i *Issuer) ParseSession(token string) (*Claims, error) {
	return i.parse(token, PurposeSession)
}

// IssueEditToken signs a manage-my-data link token for userID.
func (i *Issuer) IssueEditToken(userID string) (string, time.Time, error) {
	return i.sign(Claims{Purpose: PurposeEdit}, userID, i.editTokenTTL)
}

// ValidateEditToken returns the user id the token was minted for, or false.
func (i *Issuer) ValidateEditToken(token string) (string, bool) {
	claims, err := i.parse(token, PurposeEdit)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// IssueAdminSession signs the admin-session cookie value. email may be empty
// when the session was opened with the shared admin password.
func (i *Issuer) IssueAdminSession(email string) (string, time.Time, error) {
	subject := strings.TrimSpace(email)
	if subject == "" {
		subject = "admin"
	}
	claims := Claims{
		Purpose:    PurposeAdminSession,
		Email:      email,
		Admin:      true,
		VerifiedAt: i.now().UTC().Format(time.RFC3339),
	}
	return i.sign(claims, subject, i.adminSessionTTL)
}

// VerifyAdminSession reports whether token is a live admin session.
func (i *Issuer) VerifyAdminSession(token string) (*Claims, bool) {
	claims, err := i.parse(token, PurposeAdminSession)
	if err != nil || !claims.Admin {
		return nil, false
	}
	return claims, true
}

func (i *Issuer) sign(claims Claims, subject string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	now := i.now().UTC()
	expires := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (i *Issuer) parse(token, purpose string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithLeeway(clockSkew))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := i.validateClaims(claims, purpose); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) validateClaims(claims *Claims, purpose string) error {
	if claims.Issuer != i.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if claims.Purpose != purpose {
		return fmt.Errorf("unexpected purpose: %s", claims.Purpose)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := i.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.IssuedAt.Time.After(now.Add(clockSkew)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
