package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cachepledge.org/internal/ids"
)

const defaultMagicLinkTTL = 24 * time.Hour

// VerificationToken is the single-use secret behind a sign-in link.
type VerificationToken struct {
	Identifier string
	Token      string
	Expires    time.Time
}

// VerificationStore persists verification tokens. UseVerificationToken deletes
// and returns the token; it returns (nil, nil) when the token was already
// consumed or never existed.
type VerificationStore interface {
	CreateVerificationToken(ctx context.Context, vt VerificationToken) error
	UseVerificationToken(ctx context.Context, identifier, token string) (*VerificationToken, error)
}

// MemoryVerificationStore keeps tokens in process. Used by tests and by the
// API when neither Redis nor Postgres is configured.
type MemoryVerificationStore struct {
	mu     sync.Mutex
	tokens map[string]VerificationToken
}

// NewMemoryVerificationStore returns an empty store.
func NewMemoryVerificationStore() *MemoryVerificationStore {
	return &MemoryVerificationStore{tokens: make(map[string]VerificationToken)}
}

func (s *MemoryVerificationStore) CreateVerificationToken(_ context.Context, vt VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[vt.Identifier+"\x00"+vt.Token] = vt
	return nil
}

func (s *MemoryVerificationStore) UseVerificationToken(_ context.Context, identifier, token string) (*VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := identifier + "\x00" + token
	vt, ok := s.tokens[key]
	if !ok {
		return nil, nil
	}
	delete(s.tokens, key)
	return &vt, nil
}

// MagicLinks issues and consumes sign-in tokens.
type MagicLinks struct {
	store VerificationStore
	ttl   time.Duration
	now   func() time.Time
}

// NewMagicLinks wires a store with a token lifetime (0 selects 24h).
func NewMagicLinks(store VerificationStore, ttl time.Duration) *MagicLinks {
	if ttl <= 0 {
		ttl = defaultMagicLinkTTL
	}
	return &MagicLinks{store: store, ttl: ttl, now: time.Now}
}

// Issue stores a fresh token for email.
func (m *MagicLinks) Issue(ctx context.Context, email string) (VerificationToken, error) {
	email = normalizeEmail(email)
	if email == "" {
		return VerificationToken{}, errors.New("email is required")
	}
	vt := VerificationToken{
		Identifier: email,
		Token:      ids.Token(32),
		Expires:    m.now().UTC().Add(m.ttl),
	}
	if err := m.store.CreateVerificationToken(ctx, vt); err != nil {
		return VerificationToken{}, err
	}
	return vt, nil
}

// Consume spends the token. It returns false, without error, for reused,
// unknown or expired tokens.
func (m *MagicLinks) Consume(ctx context.Context, email, token string) (bool, error) {
	email = normalizeEmail(email)
	token = strings.TrimSpace(token)
	if email == "" || token == "" {
		return false, nil
	}
	vt, err := m.store.UseVerificationToken(ctx, email, token)
	if err != nil {
		return false, err
	}
	if vt == nil {
		return false, nil
	}
	if m.now().UTC().After(vt.Expires) {
		return false, nil
	}
	return true, nil
}
