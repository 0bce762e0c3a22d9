package steamweb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/k64z/steamguard/steamapi"
	"github.com/k64z/steamguard/steamid"
)

// DefaultMaxTries bounds the retry budget of session-aware operations.
const DefaultMaxTries = 5

// DefaultConnectionTimeout bounds how long an operation waits for the
// handler to become initialized.
const DefaultConnectionTimeout = 90 * time.Second

// Bot is the facade owning the Steam protocol connection. It renews the web
// session when the handler observes expiry and knows whether the account is
// limited (limited accounts cannot register API keys).
type Bot interface {
	// RefreshSession acquires a fresh nonce and re-runs the handler's Init.
	// Reports whether the session is usable again.
	RefreshSession(ctx context.Context) bool

	// IsAccountLimited reports whether the account is limited.
	IsAccountLimited() bool
}

// Handler is the authenticated Steam web session manager: one per account.
// All its operations are safe for concurrent use.
type Handler struct {
	bot     Bot
	browser Browser
	shared  *Shared
	log     *zap.Logger

	maxTries          int
	connectionTimeout time.Duration
	initPollInterval  time.Duration

	initialized atomic.Bool

	// sessionMu serializes expiry checks and refreshes. stateMu guards the
	// two timestamps and the identity fields; it is separate so the
	// handshake, which runs inside Bot.RefreshSession while sessionMu is
	// held, can publish its terminal state without deadlocking.
	sessionMu          sync.Mutex
	stateMu            sync.Mutex
	steamID            steamid.SteamID
	vanityURL          string
	lastSessionCheck   time.Time
	lastSessionRefresh time.Time

	apiKeyMu sync.Mutex
	// cachedAPIKey is nil while unknown; the empty string marks the key as
	// permanently unavailable for this account.
	cachedAPIKey *string

	// authenticate is steamapi.AuthenticateUser, swappable in tests.
	authenticate authenticateFunc
}

type authenticateFunc func(ctx context.Context, steamID64 uint64, encryptedSessionKey, encryptedLoginKey []byte) (*steamapi.WebSessionTokens, error)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithMaxTries overrides the default retry budget for all operations.
func WithMaxTries(n int) Option {
	return func(h *Handler) { h.maxTries = n }
}

// WithConnectionTimeout overrides how long operations wait for
// initialization.
func WithConnectionTimeout(d time.Duration) Option {
	return func(h *Handler) { h.connectionTimeout = d }
}

// New creates a Handler. It performs no network I/O: authentication happens
// explicitly via Init, and the API key resolves lazily on first use.
func New(bot Bot, browser Browser, shared *Shared, opts ...Option) (*Handler, error) {
	if bot == nil {
		return nil, errors.New("bot should be non-nil")
	}
	if browser == nil {
		return nil, errors.New("browser should be non-nil")
	}
	if shared == nil {
		return nil, errors.New("shared should be non-nil")
	}

	h := &Handler{
		bot:               bot,
		browser:           browser,
		shared:            shared,
		log:               zap.NewNop(),
		maxTries:          DefaultMaxTries,
		connectionTimeout: DefaultConnectionTimeout,
		initPollInterval:  time.Second,
		authenticate:      steamapi.AuthenticateUser,
	}
	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// Initialized reports whether a web session has been established and not yet
// seen expired.
func (h *Handler) Initialized() bool {
	return h.initialized.Load()
}

// SteamID returns the account the current session belongs to (zero before
// the first Init).
func (h *Handler) SteamID() steamid.SteamID {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.steamID
}

// OnDisconnected must be called when the underlying Steam connection drops.
// The session and the cached API key are forgotten; the cookie jar is kept,
// the next handshake overwrites it.
func (h *Handler) OnDisconnected() {
	h.initialized.Store(false)

	h.apiKeyMu.Lock()
	h.cachedAPIKey = nil
	h.apiKeyMu.Unlock()

	h.log.Debug("web session dropped on disconnect")
}

// OnVanityURLChanged records the account's new vanity URL, which changes the
// profile path used for self-profile redirect detection.
func (h *Handler) OnVanityURLChanged(vanityURL string) {
	h.stateMu.Lock()
	h.vanityURL = vanityURL
	h.stateMu.Unlock()
}

// LimitConfirmations exposes the process-wide confirmations gate to the
// confirmation protocol layer.
func (h *Handler) LimitConfirmations(ctx context.Context) error {
	return h.shared.LimitConfirmations(ctx)
}

// profilePath returns the absolute path of the account's own profile: the
// vanity form when one is set, the numeric form otherwise.
func (h *Handler) profilePath() string {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if h.vanityURL != "" {
		return "/id/" + h.vanityURL
	}
	return "/profiles/" + h.steamID.String()
}

// isSelfProfileURI reports whether a terminal redirect landed on the
// account's own profile. Steam occasionally answers unrelated requests this
// way; such responses are retried transparently.
func (h *Handler) isSelfProfileURI(u *url.URL) bool {
	if u == nil {
		return false
	}
	return u.Path == h.profilePath()
}

// lastSeenHealthy reports whether the most recent session check saw the
// session alive. Call with stateMu held. Both dedup paths consume this with
// explicit polarity: the expiry probe negates it, the refresher returns it
// as-is.
func (h *Handler) lastSeenHealthy() bool {
	return h.lastSessionCheck.Equal(h.lastSessionRefresh)
}

// checkSessionExpired probes whether the web session is still alive with a
// HEAD against the store account page, which redirects to login when the
// session died. Concurrent callers are deduplicated: whoever enters after a
// finished check inherits its verdict. The returned error means the probe
// itself failed and the verdict is unknown.
func (h *Handler) checkSessionExpired(ctx context.Context) (bool, error) {
	entry := time.Now()

	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()

	h.stateMu.Lock()
	alreadyChecked := !h.lastSessionCheck.Before(entry)
	healthy := h.lastSeenHealthy()
	h.stateMu.Unlock()
	if alreadyChecked {
		return !healthy, nil
	}

	var resp *Response
	err := h.shared.limit(ctx, HostStore, func() error {
		var derr error
		resp, derr = h.browser.Do(ctx, http.MethodHead, "https://"+HostStore+"/account", nil)
		return derr
	})

	now := time.Now()
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	h.lastSessionCheck = now

	if err != nil || resp == nil {
		if err == nil {
			err = errNilResponse
		}
		return false, fmt.Errorf("session probe: %w", err)
	}

	if isSessionExpiredURI(resp.FinalURL) {
		h.initialized.Store(false)
		h.log.Debug("session seen expired", zap.String("uri", resp.FinalURL.String()))
		return true, nil
	}

	h.lastSessionRefresh = now
	return false, nil
}

// refreshSession renews an expired session through the bot facade. Callers
// racing an in-flight refresh are deduplicated the same way as the expiry
// probe; after dedup a caller reports success iff the last check saw the
// session healthy.
func (h *Handler) refreshSession(ctx context.Context) bool {
	entry := time.Now()

	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()

	h.stateMu.Lock()
	alreadyChecked := !h.lastSessionCheck.Before(entry)
	healthy := h.lastSeenHealthy()
	h.stateMu.Unlock()
	if alreadyChecked {
		return healthy
	}

	h.initialized.Store(false)

	if !h.bot.RefreshSession(ctx) {
		h.log.Warn("session refresh failed")
		return false
	}

	now := time.Now()
	h.stateMu.Lock()
	h.lastSessionCheck = now
	h.lastSessionRefresh = now
	h.stateMu.Unlock()

	h.log.Debug("session refreshed")
	return true
}

// waitForSessionIdle blocks until no expiry check or refresh is in flight.
// Operations that skip the preemptive check still must not ride a session
// that is being rebuilt under them.
func (h *Handler) waitForSessionIdle() {
	h.sessionMu.Lock()
	//lint:ignore SA2001 acquire-then-release is the point: we only wait out an in-flight refresh
	h.sessionMu.Unlock()
}

// waitForInitialized polls until the handler is initialized, the context is
// cancelled, or the connection timeout elapses.
func (h *Handler) waitForInitialized(ctx context.Context) bool {
	if h.initialized.Load() {
		return true
	}

	deadline := time.Now().Add(h.connectionTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(h.initPollInterval):
		}
		if h.initialized.Load() {
			return true
		}
	}
	return h.initialized.Load()
}
