package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, now func() time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer("test-secret", WithIssuer("test-issuer"), WithClock(now))
	require.NoError(t, err)
	return iss
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("   ")
	require.Error(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	iss := newTestIssuer(t, time.Now)

	token, expires, err := iss.IssueSession("user-42", "hider@example.org")
	require.NoError(t, err)
	assert.True(t, time.Until(expires) > 0)

	claims, err := iss.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "hider@example.org", claims.Email)
	assert.Equal(t, "test-issuer", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenPurposesDoNotMix(t *testing.T) {
	iss := newTestIssuer(t, time.Now)

	edit, _, err := iss.IssueEditToken("user-1")
	require.NoError(t, err)
	_, err = iss.ParseSession(edit)
	assert.ErrorIs(t, err, ErrInvalidToken)

	session, _, err := iss.IssueSession("user-1", "a@example.org")
	require.NoError(t, err)
	_, ok := iss.ValidateEditToken(session)
	assert.False(t, ok)
	_, ok = iss.VerifyAdminSession(session)
	assert.False(t, ok)
}

func TestEditTokenValidation(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	iss := newTestIssuer(t, clock)

	token, _, err := iss.IssueEditToken("user-7")
	require.NoError(t, err)

	userID, ok := iss.ValidateEditToken(token)
	require.True(t, ok)
	assert.Equal(t, "user-7", userID)

	now = now.Add(25 * time.Hour)
	_, ok = iss.ValidateEditToken(token)
	assert.False(t, ok, "expired edit token must not validate")
}

func TestAdminSessionCarriesAdminClaim(t *testing.T) {
	iss := newTestIssuer(t, time.Now)

	token, _, err := iss.IssueAdminSession("")
	require.NoError(t, err)
	claims, ok := iss.VerifyAdminSession(token)
	require.True(t, ok)
	assert.True(t, claims.Admin)
	assert.NotEmpty(t, claims.VerifiedAt)

	other, err := NewIssuer("another-secret", WithIssuer("test-issuer"))
	require.NoError(t, err)
	_, ok = other.VerifyAdminSession(token)
	assert.False(t, ok, "token signed with a different secret must fail")
}

func TestAdminPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.NoError(t, AdminPassword{Hash: hash}.Verify("hunter2"))
	assert.ErrorIs(t, AdminPassword{Hash: hash}.Verify("wrong"), ErrInvalidCredentials)
	assert.NoError(t, AdminPassword{Plain: "plain"}.Verify("plain"))
	assert.ErrorIs(t, AdminPassword{Plain: "plain"}.Verify("Plain"), ErrInvalidCredentials)
	assert.ErrorIs(t, AdminPassword{}.Verify("anything"), ErrAdminPasswordUnset)
}

func TestMagicLinkIsSingleUse(t *testing.T) {
	ctx := context.Background()
	links := NewMagicLinks(NewMemoryVerificationStore(), time.Hour)

	vt, err := links.Issue(ctx, " Hider@Example.org ")
	require.NoError(t, err)
	assert.Equal(t, "hider@example.org", vt.Identifier)
	assert.Len(t, vt.Token, 64)

	ok, err := links.Consume(ctx, "hider@example.org", vt.Token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = links.Consume(ctx, "hider@example.org", vt.Token)
	require.NoError(t, err, "reused token is not an error")
	assert.False(t, ok)
}

func TestMagicLinkExpired(t *testing.T) {
	ctx := context.Background()
	links := NewMagicLinks(NewMemoryVerificationStore(), time.Minute)
	now := time.Now()
	links.now = func() time.Time { return now }

	vt, err := links.Issue(ctx, "late@example.org")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	ok, err := links.Consume(ctx, "late@example.org", vt.Token)
	require.NoError(t, err)
	assert.False(t, ok)
}
