package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCookieAuthenticator(t *testing.T) {
	a := &CookieAuthenticator{CookieName: "wsgate_auth"}

	r := httptest.NewRequest("GET", "/", nil)
	if _, ok := a.Principal(r); ok {
		t.Error("missing cookie treated as authenticated")
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: "wsgate_auth", Value: ""})
	if _, ok := a.Principal(r); ok {
		t.Error("empty cookie treated as authenticated")
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: "wsgate_auth", Value: "alice"})
	principal, ok := a.Principal(r)
	if !ok || principal != "alice" {
		t.Errorf("Principal = (%q, %v), want (alice, true)", principal, ok)
	}
}
