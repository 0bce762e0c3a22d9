package steamweb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"golang.org/x/net/html"
)

var (
	// ErrAPIKeyUnavailable means the account can never hold a Web API key
	// (limited account or access denied). The verdict is cached.
	ErrAPIKeyUnavailable = errors.New("steamweb: api key permanently unavailable")

	// ErrAPIKeyEmailUnverified means Steam wants a validated email address
	// before registering a key. Transient: not cached, retry after the
	// email is verified.
	ErrAPIKeyEmailUnverified = errors.New("steamweb: api key requires validated email address")

	// ErrAPIKeyTimeout means the state page could not be fetched or parsed
	// into a verdict. Transient.
	ErrAPIKeyTimeout = errors.New("steamweb: api key state unavailable")
)

type apiKeyState int

const (
	apiKeyError apiKeyState = iota
	apiKeyTimeout
	apiKeyRegistered
	apiKeyNotRegisteredYet
	apiKeyAccessDenied
	apiKeyEmailUnverified
)

// The trailing boundary keeps a longer hex run from silently truncating to a
// bogus 32-character key.
var apiKeyPattern = regexp.MustCompile(`Key: ([0-9A-Fa-f]{32})\b`)

// APIKey resolves the account's Web API key, registering one when the
// account has none yet. The verdict is cached: a key forever, "permanently
// unavailable" forever, transient failures not at all.
func (h *Handler) APIKey(ctx context.Context) (string, error) {
	h.apiKeyMu.Lock()
	defer h.apiKeyMu.Unlock()

	if h.cachedAPIKey != nil {
		if *h.cachedAPIKey == "" {
			return "", ErrAPIKeyUnavailable
		}
		return *h.cachedAPIKey, nil
	}

	if h.bot.IsAccountLimited() {
		h.cacheAPIKeyLocked("")
		return "", ErrAPIKeyUnavailable
	}

	state, key, err := h.apiKeyState(ctx)
	switch state {
	case apiKeyRegistered:
		h.cacheAPIKeyLocked(key)
		return key, nil
	case apiKeyAccessDenied:
		h.cacheAPIKeyLocked("")
		return "", ErrAPIKeyUnavailable
	case apiKeyEmailUnverified:
		return "", ErrAPIKeyEmailUnverified
	case apiKeyTimeout:
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrAPIKeyTimeout, err)
		}
		return "", ErrAPIKeyTimeout
	case apiKeyNotRegisteredYet:
		// Register below.
	default:
		return "", fmt.Errorf("steamweb: unexpected api key page state")
	}

	if err := h.registerAPIKey(ctx); err != nil {
		return "", fmt.Errorf("register api key: %w", err)
	}

	state, key, err = h.apiKeyState(ctx)
	switch state {
	case apiKeyRegistered:
		h.cacheAPIKeyLocked(key)
		return key, nil
	case apiKeyTimeout:
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrAPIKeyTimeout, err)
		}
		return "", ErrAPIKeyTimeout
	default:
		return "", fmt.Errorf("steamweb: api key registration did not stick")
	}
}

func (h *Handler) cacheAPIKeyLocked(key string) {
	h.cachedAPIKey = &key
	if key == "" {
		h.log.Debug("api key marked permanently unavailable")
	} else {
		h.log.Debug("api key cached")
	}
}

// apiKeyState fetches /dev/apikey and classifies the page.
func (h *Handler) apiKeyState(ctx context.Context) (apiKeyState, string, error) {
	doc, err := h.GetHTML(ctx, HostCommunity, "/dev/apikey?l=english")
	if err != nil {
		return apiKeyTimeout, "", err
	}
	return classifyAPIKeyPage(doc)
}

func classifyAPIKeyPage(doc *html.Node) (apiKeyState, string, error) {
	main := NodeByID(doc, "mainContents")
	title := NodeByTag(main, "h2")
	if title == nil {
		return apiKeyTimeout, "", nil
	}

	titleText := NodeText(title)
	switch {
	case strings.Contains(titleText, "Validated email address required"):
		return apiKeyEmailUnverified, "", nil
	case strings.Contains(titleText, "Access Denied"):
		return apiKeyAccessDenied, "", nil
	}

	body := NodeByID(doc, "bodyContents_ex")
	para := NodeByTag(body, "p")
	if para == nil {
		return apiKeyError, "", nil
	}

	paraText := NodeText(para)
	if strings.Contains(paraText, "Registering for a Steam Web API Key") {
		return apiKeyNotRegisteredYet, "", nil
	}
	if m := apiKeyPattern.FindStringSubmatch(paraText); m != nil {
		return apiKeyRegistered, m[1], nil
	}

	return apiKeyError, "", nil
}

// registerAPIKey submits /dev/registerkey with the agreed terms and a
// deterministic throwaway domain.
func (h *Handler) registerAPIKey(ctx context.Context) error {
	form := Form{
		{Name: "agreeToTerms", Value: "agreed"},
		{Name: "domain", Value: "generated.by." + appName + ".localhost"},
		{Name: "Submit", Value: "Register"},
	}

	if err := h.Post(ctx, HostCommunity, "/dev/registerkey", form); err != nil {
		return err
	}

	h.log.Debug("api key registration submitted", zap.String("domain", "generated.by."+appName+".localhost"))
	return nil
}
