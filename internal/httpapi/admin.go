package httpapi

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"cachepledge.org/internal/audit"
	"cachepledge.org/internal/export"
	"cachepledge.org/internal/registry"
)

func (a *API) handleAdminPledges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	f, err := registry.FilterFromQuery(r.URL.Query())
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	pledges, err := a.deps.Registry.ListPledges(r.Context(), actor, f)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pledges": pledges})
}

func (a *API) handleAdminSubmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	f, err := registry.FilterFromQuery(r.URL.Query())
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	subs, err := a.deps.Registry.ListSubmissions(r.Context(), actor, f)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (a *API) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	kind, known := export.ParseKind(pathID(r.URL.Path, "/api/admin/export/"))
	if !known {
		writeError(w, r, http.StatusNotFound, "unknown export")
		return
	}
	f, err := registry.FilterFromQuery(r.URL.Query())
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}

	var buf bytes.Buffer
	switch kind {
	case export.KindPledges:
		recs, lerr := a.deps.Registry.ListPledges(r.Context(), actor, f)
		if lerr != nil {
			handleRegistryError(w, r, lerr)
			return
		}
		err = export.WritePledges(&buf, recs)
	default:
		recs, lerr := a.deps.Registry.ListSubmissions(r.Context(), actor, f)
		if lerr != nil {
			handleRegistryError(w, r, lerr)
			return
		}
		if kind == export.KindConfirmations {
			err = export.WriteConfirmations(&buf, recs)
		} else {
			err = export.WriteSubmissions(&buf, recs)
		}
	}
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}

	name := export.Filename(a.opts.ExportPrefix, kind, a.now())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (a *API) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	out, err := a.deps.Stats.Admin(r.Context())
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	q := r.URL.Query()
	f := audit.Filter{
		Action:     strings.TrimSpace(q.Get("action")),
		TargetKind: strings.TrimSpace(q.Get("targetKind")),
		ActorEmail: strings.TrimSpace(q.Get("actorEmail")),
	}
	var err error
	if f.From, err = registry.ParseQueryDate(q.Get("startDate")); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid startDate")
		return
	}
	if f.To, err = registry.ParseQueryDate(q.Get("endDate")); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid endDate")
		return
	}
	entries, err := a.deps.Audit.Query(r.Context(), f)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"auditLogs": entries})
}

func (a *API) handleAdminImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	images, err := a.deps.Registry.GalleryImages(r.Context(), actor)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}
