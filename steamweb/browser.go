package steamweb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Response is the outcome of a browser request: the terminal URI after all
// redirects plus the raw body. Classification (session-expired, self-profile)
// happens on FinalURL.
type Response struct {
	FinalURL *url.URL
	Body     []byte
}

// Browser is the cookie-carrying HTTP client the session core drives. It is
// deliberately small so tests can fake the whole network.
type Browser interface {
	// Do performs method against rawURL, following redirects. form may be
	// nil; when present it is sent urlencoded.
	Do(ctx context.Context, method, rawURL string, form Form) (*Response, error)

	// CookieValue returns the named cookie currently stored for the host,
	// or "" when absent.
	CookieValue(host, name string) string

	// SetCookies installs cookies into the jar for the host.
	SetCookies(host string, cookies []*http.Cookie)
}

const defaultUserAgent = "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Mobile Safari/537.36"

// HTTPBrowser is the production Browser: an *http.Client with a cookie jar
// and a per-request timeout.
type HTTPBrowser struct {
	client    *http.Client
	userAgent string
}

type browserConfig struct {
	proxy     *url.URL
	timeout   time.Duration
	userAgent string
}

// BrowserOption configures an HTTPBrowser.
type BrowserOption func(*browserConfig) error

// WithProxy routes all browser traffic through an HTTP proxy.
func WithProxy(proxy *url.URL) BrowserOption {
	return func(c *browserConfig) error {
		if proxy == nil {
			return errors.New("proxy should be non-nil")
		}
		c.proxy = proxy
		return nil
	}
}

// WithTimeout overrides the per-request timeout (default 60s).
func WithTimeout(timeout time.Duration) BrowserOption {
	return func(c *browserConfig) error {
		if timeout <= 0 {
			return errors.New("timeout should be positive")
		}
		c.timeout = timeout
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) BrowserOption {
	return func(c *browserConfig) error {
		c.userAgent = ua
		return nil
	}
}

// NewBrowser creates an HTTPBrowser with a fresh cookie jar.
func NewBrowser(opts ...BrowserOption) (*HTTPBrowser, error) {
	cfg := browserConfig{
		timeout:   60 * time.Second,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := http.DefaultTransport
	if cfg.proxy != nil {
		transport = &http.Transport{Proxy: http.ProxyURL(cfg.proxy)}
	}

	return &HTTPBrowser{
		client: &http.Client{
			Jar:       jar,
			Timeout:   cfg.timeout,
			Transport: transport,
		},
		userAgent: cfg.userAgent,
	}, nil
}

// Do implements Browser.
func (b *HTTPBrowser) Do(ctx context.Context, method, rawURL string, form Form) (*Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", b.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		FinalURL: resp.Request.URL,
		Body:     data,
	}, nil
}

// CookieValue implements Browser.
func (b *HTTPBrowser) CookieValue(host, name string) string {
	u := &url.URL{Scheme: "https", Host: host, Path: "/"}
	for _, cookie := range b.client.Jar.Cookies(u) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}

// SetCookies implements Browser.
func (b *HTTPBrowser) SetCookies(host string, cookies []*http.Cookie) {
	u := &url.URL{Scheme: "https", Host: host, Path: "/"}
	b.client.Jar.SetCookies(u, cookies)
}
