package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"cachepledge.org/internal/auth"
)

const (
	authHeader         = "Authorization"
	bearer             = "Bearer "
	sessionCookie      = "session"
	adminSessionCookie = "admin-session"
)

// endpoints reachable with a stale or foreign bearer token
var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/openapi.yaml",
	"/api/info",
	"/api/stats",
	"/api/activity",
	"/api/auth/magic-link",
	"/api/auth/callback",
	"/api/auth/logout",
	"/api/edit-token",
	"/api/admin/verify",
	"/api/admin/login",
	"/api/admin/logout",
}

var publicPrefixes = []string{
	"/api/manage",
}

// withAuth resolves the request's Actor. A bearer token that fails to verify
// is rejected on protected paths; a bad cookie is simply ignored.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		actor, token, err := a.resolveActor(r)
		if err != nil && !isPublicPath(r.URL.Path) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="cachepledge"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := r.Context()
		if actor.Authenticated() {
			ctx = auth.ContextWithActor(ctx, actor)
			ctx = auth.ContextWithToken(ctx, token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) resolveActor(r *http.Request) (auth.Actor, string, error) {
	var (
		actor auth.Actor
		token string
	)
	if header := r.Header.Get(authHeader); strings.TrimSpace(header) != "" {
		t, err := extractBearerToken(header)
		if err != nil {
			return auth.Actor{}, "", err
		}
		claims, err := a.deps.Issuer.ParseSession(t)
		if err != nil {
			return auth.Actor{}, "", errors.New("invalid token")
		}
		actor = a.deps.Admins.Actor(claims.Subject, claims.Email)
		token = t
	} else if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		if claims, err := a.deps.Issuer.ParseSession(c.Value); err == nil {
			actor = a.deps.Admins.Actor(claims.Subject, claims.Email)
			token = c.Value
		}
	}
	if c, err := r.Cookie(adminSessionCookie); err == nil && c.Value != "" {
		if claims, ok := a.deps.Issuer.VerifyAdminSession(c.Value); ok {
			actor.Admin = true
			if actor.Email == "" {
				actor.Email = claims.Email
			}
		}
	}
	return actor, token, nil
}

// requireUser returns the signed-in user or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok || actor.UserID == "" {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Actor{}, false
	}
	return actor, true
}

// requireActor accepts any identity, including an admin session without a
// user account, or writes 401.
func requireActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Actor{}, false
	}
	return actor, true
}

// requireAdmin returns an admin actor or writes 403.
func requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok || !actor.Admin {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return auth.Actor{}, false
	}
	return actor, true
}

func currentActor(r *http.Request) auth.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}

func (a *API) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   a.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
