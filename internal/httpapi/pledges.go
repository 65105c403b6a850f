package httpapi

import (
	"net/http"

	"cachepledge.org/internal/registry"
)

func (a *API) handlePledgesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in registry.PledgeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.deps.Registry.CreatePledge(r.Context(), actor, in)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"pledge":  p,
	})
}

func (a *API) handlePledgeResource(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/pledges/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if id == "me" {
		a.handleMyPledges(w, r)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := a.deps.Registry.GetPledge(r.Context(), actor, id)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pledge": p})
	case http.MethodPatch:
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
	case http.MethodDelete:
		if err := a.deps.Registry.DeletePledge(r.Context(), actor, id); err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleMyPledges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	pledges, err := a.deps.Registry.ListMyPledges(r.Context(), actor)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pledges": pledges})
}

// handleLegacyPledge answers the retired single-pledge endpoint for every method.
func (a *API) handleLegacyPledge(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusGone, "This endpoint is deprecated. Please use /api/pledges with authentication.")
}
