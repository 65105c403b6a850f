package httpapi

import (
	"context"
	"net/http"
	"time"

	"cachepledge.org/api/spec"
	"cachepledge.org/internal/audit"
	"cachepledge.org/internal/auth"
	"cachepledge.org/internal/notify"
	"cachepledge.org/internal/obs"
	"cachepledge.org/internal/registry"
	"cachepledge.org/internal/stats"
	"cachepledge.org/internal/stream"
)

const serviceName = "cachepledge-api"

// Pinger is satisfied by *sql.DB and the Postgres store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ReadyProbe checks the database, when there is one.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer drives. Registry, Issuer and
// MagicLinks are required; the rest may be nil.
type Deps struct {
	Registry      *registry.Service
	Stats         *stats.Aggregator
	Audit         *audit.Recorder
	Issuer        *auth.Issuer
	Admins        auth.AdminList
	AdminPassword auth.AdminPassword
	MagicLinks    *auth.MagicLinks
	Mailer        *notify.Mailer
	Stream        *stream.Stream
	Ready         readinessChecker
}

// Options are transport settings.
type Options struct {
	Version       string
	ExportPrefix  string
	CORSOrigins   []string
	SecureCookies bool
	RateBurst     int
	RatePerSec    float64
	MaxBodyBytes  int64
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	deps Deps
	opts Options
	now  func() time.Time

	rateBurst  int
	ratePerSec float64
}

func New(deps Deps, opts Options) *API {
	if deps.Ready == nil {
		deps.Ready = ReadyProbe{}
	}
	if deps.Mailer == nil {
		deps.Mailer = notify.NewMailer(nil, "", "")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = maxJSONBody
	}
	a := &API{
		mux:        http.NewServeMux(),
		deps:       deps,
		opts:       opts,
		now:        time.Now,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/api/info", a.Info)
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)
	a.mux.Handle("/metrics", obs.Handler())

	// sign-in
	a.mux.HandleFunc("/api/auth/magic-link", a.handleMagicLink)
	a.mux.HandleFunc("/api/auth/callback", a.handleCallback)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/user/me", a.handleMe)

	// pledges and submissions
	a.mux.HandleFunc("/api/pledges", a.handlePledgesCollection)
	a.mux.HandleFunc("/api/pledges/", a.handlePledgeResource)
	a.mux.HandleFunc("/api/submissions", a.handleSubmissionsCollection)
	a.mux.HandleFunc("/api/submissions/", a.handleSubmissionResource)
	a.mux.HandleFunc("/api/pledge", a.handleLegacyPledge)

	// public
	a.mux.HandleFunc("/api/stats", a.handlePublicStats)
	a.mux.HandleFunc("/api/activity", a.Activity)

	// edit links
	a.mux.HandleFunc("/api/edit-token", a.handleEditToken)
	a.mux.HandleFunc("/api/manage", a.handleManage)
	a.mux.HandleFunc("/api/manage/pledge/", a.handleManagePledge)
	a.mux.HandleFunc("/api/manage/confirmation/", a.handleManageConfirmation)

	// admin
	a.mux.HandleFunc("/api/admin/verify", a.handleAdminVerify)
	a.mux.HandleFunc("/api/admin/login", a.handleAdminLogin)
	a.mux.HandleFunc("/api/admin/logout", a.handleAdminLogout)
	a.mux.HandleFunc("/api/admin/pledges", a.handleAdminPledges)
	a.mux.HandleFunc("/api/admin/submissions", a.handleAdminSubmissions)
	a.mux.HandleFunc("/api/admin/export/", a.handleAdminExport)
	a.mux.HandleFunc("/api/admin/stats", a.handleAdminStats)
	a.mux.HandleFunc("/api/admin/audit", a.handleAdminAudit)
	a.mux.HandleFunc("/api/admin/images", a.handleAdminImages)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the mux behind the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.withAuth(a.mux)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.opts.CORSOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    a.now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}
