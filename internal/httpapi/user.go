package httpapi

import (
	"net/http"

	"cachepledge.org/internal/registry"
)

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		profile, err := a.deps.Registry.Profile(r.Context(), actor)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": profile})
	case http.MethodPatch:
		var in registry.UsernameInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		u, err := a.deps.Registry.UpdateUsername(r.Context(), actor, in)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": u})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) handlePublicStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	out, err := a.deps.Stats.Public(r.Context())
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
