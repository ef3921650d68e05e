package gateway

import (
	"net/http"
	"strings"

	"github.com/eurekahq/wsgate/internal/core"
)

// SessionCookieName carries the opaque workspace identity shared between the
// base domain and every workspace subdomain. It is deliberately independent
// from the authentication cookie.
const SessionCookieName = "workspace_session_id"

const sessionMaxAge = 86400

// ensureSession returns the workspace session id for this request, minting
// and setting the cookie when absent.
func (g *Gateway) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := core.NewSessionID()
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	}
	// Scope to the wildcard domain so subdomains share identity; localhost
	// does not accept a Domain attribute.
	if base := hostname(g.cfg.BaseDomain); base != "localhost" && !strings.HasSuffix(base, ".localhost") {
		cookie.Domain = "." + base
	}
	http.SetCookie(w, cookie)
	return id
}
