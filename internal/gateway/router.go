package gateway

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eurekahq/wsgate/internal/authn"
	"github.com/eurekahq/wsgate/internal/core"
	"github.com/eurekahq/wsgate/internal/gateway/middleware"
	"github.com/eurekahq/wsgate/internal/lifecycle"
)

// Gateway is the HTTP front door: workspace subdomains go through auth and
// the streaming proxy, everything else falls through to the application
// router.
type Gateway struct {
	cfg      Config
	registry *lifecycle.Registry
	proxy    *Proxy
	auth     authn.Authenticator
	log      *zap.Logger
}

func New(cfg Config, registry *lifecycle.Registry, proxy *Proxy, auth authn.Authenticator, log *zap.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		registry: registry,
		proxy:    proxy,
		auth:     auth,
		log:      log,
	}
}

// Handler returns the root handler: subdomain classification first, then
// either the workspace pipeline or the application router.
func (g *Gateway) Handler() http.Handler {
	app := g.appRouter()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isWorkspaceHost(r.Host) {
			app.ServeHTTP(w, r)
			return
		}
		g.serveWorkspace(w, r)
	})
}

func (g *Gateway) serveWorkspace(w http.ResponseWriter, r *http.Request) {
	user, repo, err := parseWorkspaceHost(r.Host)
	if err != nil {
		g.log.Warn("workspace host rejected", zap.String("host", r.Host), zap.Error(err))
		http.Error(w, "unparseable workspace subdomain", http.StatusBadGateway)
		return
	}

	sessionID := g.ensureSession(w, r)

	if _, ok := g.auth.Principal(r); !ok {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		http.Redirect(w, r, fmt.Sprintf("%s://%s/auth/github", scheme, baseHost(r.Host)), http.StatusFound)
		return
	}

	key := core.WorkspaceKey{SessionID: sessionID, User: user, Repo: repo}
	if err := key.Validate(); err != nil {
		writeInvalidSubdomainPage(w)
		return
	}
	g.proxy.Serve(w, r, key)
}

// appRouter serves the base domain: health, and the workspace admin API the
// landing UI and wsgatectl poll.
func (g *Gateway) appRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.Recoverer(g.log))
	r.Use(middleware.Logger)

	r.Get("/healthz", g.HealthHandler)
	r.Get("/readyz", g.ReadyHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/workspaces", g.ListWorkspaces)
		r.Route("/workspaces/{session}/{user}/{repo}", func(r chi.Router) {
			r.Get("/", g.GetWorkspace)
			r.Post("/ensure", g.EnsureWorkspace)
			r.Post("/suspend", g.SuspendWorkspace)
		})
	})

	return r
}

// HealthHandler returns 200 if the service is healthy.
func (g *Gateway) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ReadyHandler returns 200 if the service is ready to accept requests.
func (g *Gateway) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(g.cfg.DataDir); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "data dir unavailable"})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
