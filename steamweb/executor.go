package steamweb

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

type reqOptions struct {
	maxTries         int
	session          SessionField
	skipSessionCheck bool
}

// RequestOption tunes a single executor operation.
type RequestOption func(*reqOptions)

// WithTries overrides the retry budget for this operation.
func WithTries(n int) RequestOption {
	return func(o *reqOptions) { o.maxTries = n }
}

// WithSessionField selects the casing of the stamped session id field, or
// suppresses stamping with SessionFieldNone.
func WithSessionField(f SessionField) RequestOption {
	return func(o *reqOptions) { o.session = f }
}

// WithoutPreemptiveCheck skips the session probe before dispatch. The
// operation still waits out any in-flight refresh and still reacts to a
// session-expired redirect afterwards.
func WithoutPreemptiveCheck() RequestOption {
	return func(o *reqOptions) { o.skipSessionCheck = true }
}

func (h *Handler) requestOptions(method string, opts []RequestOption) reqOptions {
	o := reqOptions{
		maxTries: h.maxTries,
		session:  SessionFieldNone,
	}
	if method == http.MethodPost {
		o.session = SessionFieldLower
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// execute is the single retry loop behind every session-aware operation.
// Session expiry (preemptive or classified from the terminal URI) triggers a
// refresh and consumes one try; a self-profile redirect consumes one try
// without touching the session; a transport failure consumes one try. The
// limiter and the initialization wait never consume tries.
func (h *Handler) execute(ctx context.Context, method, host, path string, form Form, o reqOptions) (*Response, error) {
	if host == "" || path == "" {
		return nil, ErrInvalidRequest
	}
	if o.maxTries <= 0 {
		return nil, ErrTriesExhausted
	}

	requestURL := "https://" + host + path
	pathOnly := path
	if i := strings.IndexByte(path, '?'); i >= 0 {
		pathOnly = path[:i]
	}

	var lastErr error
	for tries := o.maxTries; tries > 0; tries-- {
		if !o.skipSessionCheck {
			expired, err := h.checkSessionExpired(ctx)
			if expired || err != nil {
				if !h.refreshSession(ctx) {
					return nil, ErrSessionRefreshFailed
				}
				lastErr = err
				continue
			}
		} else {
			h.waitForSessionIdle()
		}

		if !h.waitForInitialized(ctx) {
			return nil, ErrNotInitialized
		}

		body := form
		if method == http.MethodPost && o.session != SessionFieldNone {
			sessionID := h.browser.CookieValue(host, "sessionid")
			if sessionID == "" {
				return nil, ErrNoSessionID
			}
			body = form.Clone()
			body.SetUnique(o.session.fieldName(), sessionID)
		}

		var resp *Response
		err := h.shared.limit(ctx, host, func() error {
			var derr error
			resp, derr = h.browser.Do(ctx, method, requestURL, body)
			return derr
		})
		if err != nil || resp == nil {
			if err == nil {
				err = errNilResponse
			}
			lastErr = err
			h.log.Debug("request transport failure",
				zap.String("url", requestURL), zap.Error(err))
			continue
		}

		if isSessionExpiredURI(resp.FinalURL) {
			if !h.refreshSession(ctx) {
				return nil, ErrSessionRefreshFailed
			}
			h.log.Debug("request hit expired session, retrying",
				zap.String("url", requestURL))
			continue
		}

		if h.isSelfProfileURI(resp.FinalURL) && resp.FinalURL.Path != pathOnly {
			h.log.Debug("request redirected to own profile, retrying",
				zap.String("url", requestURL))
			continue
		}

		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrTriesExhausted, lastErr)
	}
	return nil, ErrTriesExhausted
}

// Head performs a session-aware HEAD request.
func (h *Handler) Head(ctx context.Context, host, path string, opts ...RequestOption) error {
	_, err := h.execute(ctx, http.MethodHead, host, path, nil, h.requestOptions(http.MethodHead, opts))
	return err
}

// GetHTML performs a session-aware GET and parses the body as HTML.
func (h *Handler) GetHTML(ctx context.Context, host, path string, opts ...RequestOption) (*html.Node, error) {
	resp, err := h.execute(ctx, http.MethodGet, host, path, nil, h.requestOptions(http.MethodGet, opts))
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// GetJSON performs a session-aware GET and unmarshals the body into out.
func (h *Handler) GetJSON(ctx context.Context, host, path string, out any, opts ...RequestOption) error {
	resp, err := h.execute(ctx, http.MethodGet, host, path, nil, h.requestOptions(http.MethodGet, opts))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// GetXML performs a session-aware GET and unmarshals the body into out.
func (h *Handler) GetXML(ctx context.Context, host, path string, out any, opts ...RequestOption) error {
	resp, err := h.execute(ctx, http.MethodGet, host, path, nil, h.requestOptions(http.MethodGet, opts))
	if err != nil {
		return err
	}

	if err := xml.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode xml: %w", err)
	}
	return nil
}

// Post performs a session-aware POST, discarding the response body. The
// session id is stamped as "sessionid" unless overridden.
func (h *Handler) Post(ctx context.Context, host, path string, form Form, opts ...RequestOption) error {
	_, err := h.execute(ctx, http.MethodPost, host, path, form, h.requestOptions(http.MethodPost, opts))
	return err
}

// PostHTML performs a session-aware POST and parses the body as HTML.
func (h *Handler) PostHTML(ctx context.Context, host, path string, form Form, opts ...RequestOption) (*html.Node, error) {
	resp, err := h.execute(ctx, http.MethodPost, host, path, form, h.requestOptions(http.MethodPost, opts))
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// PostJSON performs a session-aware POST with an ordered form body and
// unmarshals the response into out.
func (h *Handler) PostJSON(ctx context.Context, host, path string, form Form, out any, opts ...RequestOption) error {
	resp, err := h.execute(ctx, http.MethodPost, host, path, form, h.requestOptions(http.MethodPost, opts))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// PostJSONMap is PostJSON for callers with a plain map body.
func (h *Handler) PostJSONMap(ctx context.Context, host, path string, values map[string]string, out any, opts ...RequestOption) error {
	return h.PostJSON(ctx, host, path, FormFromMap(values), out, opts...)
}
