package httpapi

import (
	"net/http"

	"cachepledge.org/internal/registry"
)

func (a *API) handleSubmissionsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in registry.SubmissionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := a.deps.Registry.Confirm(r.Context(), actor, in)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"submission": sub,
	})
}

func (a *API) handleSubmissionResource(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/submissions/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if id == "me" {
		if actor.UserID == "" {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		subs, err := a.deps.Registry.ListMySubmissions(r.Context(), actor)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
		return
	}

	switch r.Method {
	case http.MethodGet:
		sub, err := a.deps.Registry.GetSubmission(r.Context(), actor, id)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"submission": sub})
	case http.MethodPatch:
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
	case http.MethodDelete:
		if err := a.deps.Registry.DeleteSubmission(r.Context(), actor, id); err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
