package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cachepledge.org/internal/audit"
	"cachepledge.org/internal/auth"
	"cachepledge.org/internal/obs"
	"cachepledge.org/internal/registry"
)

type callbackRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type sessionResponse struct {
	Success   bool          `json:"success"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	User      registry.User `json:"user"`
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in registry.EmailInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := registry.Validate(in); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	if _, err := a.deps.Registry.EnsureUser(r.Context(), in.Email); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	vt, err := a.deps.MagicLinks.Issue(r.Context(), in.Email)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	link := a.deps.Mailer.Link("/auth/callback", vt.Token) + "&email=" + url.QueryEscape(in.Email)
	a.deps.Mailer.MagicLink(r.Context(), in.Email, link)
	_ = audit.LogEvent(r.Context(), "auth.magic_link_sent", map[string]any{"email": in.Email})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "Check your email for a sign-in link",
	})
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req callbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ok, err := a.deps.MagicLinks.Consume(r.Context(), req.Email, req.Token)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid or expired sign-in link")
		return
	}
	user, err := a.deps.Registry.EnsureUser(r.Context(), req.Email)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	token, expires, err := a.deps.Issuer.IssueSession(user.ID, user.Email)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.setCookie(w, sessionCookie, token, expires)
	_ = audit.LogEvent(r.Context(), "auth.session_issued", map[string]any{"user_id": user.ID})

	writeJSON(w, http.StatusOK, sessionResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expires,
		User:      user,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.clearCookie(w, sessionCookie)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleAdminVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req adminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.AdminPassword.Verify(req.Password); err != nil {
		a.adminAuthFailed(w, r, err)
		return
	}
	if !a.issueAdminSession(w, r, currentActor(r).Email) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req adminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "Email and password are required")
		return
	}
	if !a.deps.Admins.Contains(req.Email) {
		writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := a.deps.AdminPassword.Verify(req.Password); err != nil {
		a.adminAuthFailed(w, r, err)
		return
	}
	if !a.issueAdminSession(w, r, strings.ToLower(req.Email)) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
	})
}

func (a *API) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.clearCookie(w, adminSessionCookie)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) issueAdminSession(w http.ResponseWriter, r *http.Request, email string) bool {
	token, expires, err := a.deps.Issuer.IssueAdminSession(email)
	if err != nil {
		handleRegistryError(w, r, err)
		return false
	}
	a.setCookie(w, adminSessionCookie, token, expires)
	_ = audit.LogEvent(r.Context(), "auth.admin_session_issued", map[string]any{"email": email})
	return true
}

func (a *API) adminAuthFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrAdminPasswordUnset) {
		obs.Error("admin password not configured", err, nil)
		writeError(w, r, http.StatusInternalServerError, "Admin password not configured")
		return
	}
	writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
}

func (a *API) handleEditToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in registry.EmailInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := registry.Validate(in); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	user, err := a.deps.Registry.UserByEmail(r.Context(), in.Email)
	if err != nil {
		if registry.IsNotFound(err) {
			writeError(w, r, http.StatusNotFound, "No account found with this email")
			return
		}
		handleRegistryError(w, r, err)
		return
	}
	token, _, err := a.deps.Issuer.IssueEditToken(user.ID)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.deps.Mailer.EditLink(r.Context(), user.Email, a.deps.Mailer.Link("/manage", token))

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Magic link sent to your email",
	})
}
