// Package authn bridges the gateway to the external login service. The
// gateway only needs to know whether a request carries an authenticated
// principal; issuing and verifying the session token is owned upstream.
package authn

import "net/http"

// Authenticator produces the verified principal for a request, if any.
type Authenticator interface {
	Principal(r *http.Request) (string, bool)
}

// CookieAuthenticator reads the login service's opaque session cookie. An
// absent or empty cookie means unauthenticated; everything beyond presence is
// the login service's concern.
type CookieAuthenticator struct {
	CookieName string
}

func (a *CookieAuthenticator) Principal(r *http.Request) (string, bool) {
	c, err := r.Cookie(a.CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
