// Package steamweb owns the authenticated Steam web session: cookie
// lifecycle, the RSA+AES login handshake, expiry detection with serialized
// refresh, per-host rate limiting, the bounded-retry request executor, and
// the Web API key lifecycle.
package steamweb

import (
	"errors"
	"net/url"
	"strings"
)

// Steam web hosts. Session cookies are installed on all three; the session
// probe runs against the store host.
const (
	HostCommunity = "steamcommunity.com"
	HostStore     = "store.steampowered.com"
	HostHelp      = "help.steampowered.com"
)

// appName ends up in the registered API key domain
// ("generated.by.<appname>.localhost").
const appName = "steamguard"

var (
	// ErrInvalidRequest is returned for an empty host or path.
	ErrInvalidRequest = errors.New("steamweb: empty host or request path")

	// ErrTriesExhausted is returned when the retry budget runs out before a
	// request classifies as success.
	ErrTriesExhausted = errors.New("steamweb: max tries exhausted")

	// ErrSessionRefreshFailed is returned when an expired session could not
	// be renewed.
	ErrSessionRefreshFailed = errors.New("steamweb: session refresh failed")

	// ErrNotInitialized is returned when the handler never became
	// initialized within the connection timeout.
	ErrNotInitialized = errors.New("steamweb: session not initialized")

	// ErrNoSessionID is returned when a POST requires the sessionid cookie
	// and the jar has none for the target host.
	ErrNoSessionID = errors.New("steamweb: sessionid cookie is missing")

	// errNilResponse stands in for a browser call that returned neither a
	// response nor an error, so wrapped transport errors stay non-nil.
	errNilResponse = errors.New("steamweb: browser returned no response")
)

// isSessionExpiredURI reports whether a terminal redirect URI means the web
// session died: a path under /login or the literal "lostauth" host.
func isSessionExpiredURI(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/login") || u.Host == "lostauth"
}
