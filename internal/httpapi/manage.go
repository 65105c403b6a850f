package httpapi

import (
	"net/http"
	"strings"

	"cachepledge.org/internal/auth"
	"cachepledge.org/internal/registry"
)

type manageUser struct {
	ID         string `json:"id"`
	GCUsername string `json:"gcUsername"`
	Email      string `json:"email"`
}

// editActor resolves the ?token= edit link to the user it was issued for.
// Edit links never carry admin rights.
func (a *API) editActor(w http.ResponseWriter, r *http.Request) (auth.Actor, string, bool) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, r, http.StatusBadRequest, "Token is required")
		return auth.Actor{}, "", false
	}
	userID, ok := a.deps.Issuer.ValidateEditToken(token)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Invalid or expired token")
		return auth.Actor{}, "", false
	}
	return auth.Actor{UserID: userID}, token, true
}

func (a *API) handleManage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, token, ok := a.editActor(w, r)
	if !ok {
		return
	}
	view, err := a.deps.Registry.Manage(r.Context(), actor.UserID)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": manageUser{
			ID:         view.User.ID,
			GCUsername: view.User.GCUsername,
			Email:      view.User.Email,
		},
		"pledges":     view.Pledges,
		"submissions": view.Submissions,
		"token":       token,
	})
}

func (a *API) handleManagePledge(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/manage/pledge/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut && r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		return
	}
	actor, _, ok := a.editActor(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodDelete {
		if err := a.deps.Registry.DeletePledge(r.Context(), actor, id); err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Pledge deleted successfully",
		})
		return
	}

	var upd registry.PledgeUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.deps.Registry.UpdatePledge(r.Context(), actor, id, upd)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"pledge":  p,
	})
}

func (a *API) handleManageConfirmation(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/manage/confirmation/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut && r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		return
	}
	actor, _, ok := a.editActor(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodDelete {
		if err := a.deps.Registry.DeleteSubmission(r.Context(), actor, id); err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Confirmation deleted successfully",
		})
		return
	}

	var upd registry.SubmissionUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := a.deps.Registry.UpdateSubmission(r.Context(), actor, id, upd)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"submission": sub,
	})
}
