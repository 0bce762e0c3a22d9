package steamweb

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeBrowser scripts the whole network for executor tests. The probe
// (HEAD store/account) answers healthy unless probeExpired is set; all other
// traffic goes through handle.
type fakeBrowser struct {
	mu      sync.Mutex
	cookies map[string]map[string]string
	handle  func(method, rawURL string, form Form) (*Response, error)

	probeExpired bool
	probeNil     bool
	probeCount   int
	requests     []string
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{cookies: make(map[string]map[string]string)}
}

func respTo(rawURL string) *Response {
	u, _ := url.Parse(rawURL)
	return &Response{FinalURL: u, Body: []byte("{}")}
}

func (b *fakeBrowser) Do(ctx context.Context, method, rawURL string, form Form) (*Response, error) {
	b.mu.Lock()
	if method == http.MethodHead && strings.HasSuffix(rawURL, "/account") {
		b.probeCount++
		expired, nilResp := b.probeExpired, b.probeNil
		b.mu.Unlock()
		if nilResp {
			return nil, nil
		}
		if expired {
			return respTo("https://store.steampowered.com/login/?redir=account"), nil
		}
		return respTo(rawURL), nil
	}
	b.requests = append(b.requests, method+" "+rawURL)
	handle := b.handle
	b.mu.Unlock()

	if handle != nil {
		return handle(method, rawURL, form)
	}
	return respTo(rawURL), nil
}

func (b *fakeBrowser) CookieValue(host, name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cookies[host][name]
}

func (b *fakeBrowser) SetCookies(host string, cookies []*http.Cookie) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cookies[host] == nil {
		b.cookies[host] = make(map[string]string)
	}
	for _, c := range cookies {
		b.cookies[host][c.Name] = c.Value
	}
}

func (b *fakeBrowser) requestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// fakeBot mimics the real facade: a successful refresh re-initializes the
// handler, the way Bot.RefreshSession re-runs Init in production.
type fakeBot struct {
	mu       sync.Mutex
	handler  *Handler
	refuse   bool
	limited  bool
	refreshN int
}

func (bot *fakeBot) RefreshSession(ctx context.Context) bool {
	bot.mu.Lock()
	bot.refreshN++
	refuse := bot.refuse
	h := bot.handler
	bot.mu.Unlock()

	if refuse {
		return false
	}
	if h != nil {
		h.initialized.Store(true)
	}
	return true
}

func (bot *fakeBot) IsAccountLimited() bool {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	return bot.limited
}

func (bot *fakeBot) refreshCount() int {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	return bot.refreshN
}

// newTestHandler wires a handler with no limiter delay, a fast init poll and
// an established session.
func newTestHandler(t *testing.T, browser *fakeBrowser, bot *fakeBot) *Handler {
	t.Helper()

	shared := NewShared(WithWebLimiterDelay(0), WithConfirmationsDelay(0))
	h, err := New(bot, browser, shared)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	bot.handler = h

	h.initPollInterval = time.Millisecond
	h.connectionTimeout = 100 * time.Millisecond

	// Backdated so a check entering now is never deduplicated against them.
	now := time.Now().Add(-time.Second)
	h.steamID = 76561198012345678
	h.lastSessionCheck = now
	h.lastSessionRefresh = now
	h.initialized.Store(true)

	return h
}
