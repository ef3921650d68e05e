package gateway

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

var (
	// ErrNotWorkspace means the host does not address a workspace at all;
	// the request falls through to the application router.
	ErrNotWorkspace = errors.New("host is not a workspace subdomain")
	// ErrBadSubdomain means the first label looks like a workspace subdomain
	// but does not split into a (user, repo) pair.
	ErrBadSubdomain = errors.New("unparseable workspace subdomain")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// hostname strips an optional port from a request Host value.
func hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// isWorkspaceHost is the cheap classification gate: workspace hosts carry a
// "--" pair separator and are never the www label.
func isWorkspaceHost(host string) bool {
	h := hostname(host)
	if !strings.Contains(h, "--") {
		return false
	}
	return strings.SplitN(h, ".", 2)[0] != "www"
}

// parseWorkspaceHost extracts (user, repo) from <user>--<repo>.<base>.
// Multi-dash usernames or repos are not supported.
func parseWorkspaceHost(host string) (user, repo string, err error) {
	h := hostname(host)
	label := strings.SplitN(h, ".", 2)[0]
	if label == "www" || !strings.Contains(label, "--") {
		return "", "", ErrNotWorkspace
	}

	parts := strings.Split(label, "--")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadSubdomain, label)
	}
	if !namePattern.MatchString(parts[0]) || !namePattern.MatchString(parts[1]) {
		return "", "", fmt.Errorf("%w: %q", ErrBadSubdomain, label)
	}
	return parts[0], parts[1], nil
}

// baseHost strips the first dot-label: the apex the auth redirect points at.
func baseHost(host string) string {
	h := hostname(host)
	if i := strings.Index(h, "."); i >= 0 {
		h = h[i+1:]
	}
	if _, port, err := net.SplitHostPort(host); err == nil && port != "" {
		return h + ":" + port
	}
	return h
}
