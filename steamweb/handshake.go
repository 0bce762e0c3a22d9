package steamweb

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/k64z/steamguard/steamapi"
	"github.com/k64z/steamguard/steamid"
)

// sessionIDForSteamID derives the sessionid cookie value the handshake
// installs: base64 of the decimal SteamID64.
func sessionIDForSteamID(sid steamid.SteamID) string {
	return base64.StdEncoding.EncodeToString([]byte(sid.String()))
}

// GenerateSessionID returns a random 24-character hex session id for flows
// that need a sessionid cookie before any handshake installed one.
func GenerateSessionID() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// timezoneOffsetValue builds the timezoneOffset cookie value: the local UTC
// offset in seconds, then ",0" with the comma URL-encoded. Steam's own
// frontend sets the encoded form, so that is the compatibility-safe choice.
func timezoneOffsetValue(now time.Time) string {
	_, offset := now.Zone()
	return strconv.Itoa(offset) + "%2C0"
}

// Init establishes a logged-in web session from a single-use Web API nonce:
// it RSA-encrypts a random session key, AES-encrypts the nonce under it,
// exchanges both for session tokens, and installs the cookies on the
// community, help and store hosts. With a 4-digit parentalCode the family
// view is unlocked as well. The whole exchange is attempted exactly once;
// the nonce burns on use.
func (h *Handler) Init(ctx context.Context, sid steamid.SteamID, universe steamid.Universe, webAPIUserNonce, parentalCode string) error {
	if !sid.IsIndividual() {
		return fmt.Errorf("steamid %s is not an individual account", sid)
	}
	if !universe.IsDefined() {
		return fmt.Errorf("universe %d is not defined", universe)
	}
	if webAPIUserNonce == "" {
		return errors.New("empty web API user nonce")
	}

	sessionKey, err := generateSessionKey()
	if err != nil {
		return err
	}

	encryptedSessionKey, err := encryptSessionKey(universe, sessionKey)
	if err != nil {
		return fmt.Errorf("encrypt session key: %w", err)
	}

	encryptedLoginKey, err := symmetricEncrypt(sessionKey, []byte(webAPIUserNonce))
	if err != nil {
		return fmt.Errorf("encrypt login key: %w", err)
	}

	var tokens *steamapi.WebSessionTokens
	err = h.shared.GateWebAPI(ctx, func() error {
		var aerr error
		tokens, aerr = h.authenticate(ctx, sid.ToSteamID64(), encryptedSessionKey, encryptedLoginKey)
		return aerr
	})
	if err != nil {
		return fmt.Errorf("authenticate user: %w", err)
	}

	sessionID := sessionIDForSteamID(sid)
	tzOffset := timezoneOffsetValue(time.Now())

	for _, host := range []string{HostCommunity, HostHelp, HostStore} {
		h.browser.SetCookies(host, []*http.Cookie{
			{Name: "sessionid", Value: sessionID, Path: "/", Domain: "." + host},
			{Name: "steamLogin", Value: tokens.Token, Path: "/", Domain: "." + host},
			{Name: "steamLoginSecure", Value: tokens.TokenSecure, Path: "/", Domain: "." + host},
			{Name: "timezoneOffset", Value: tzOffset, Path: "/", Domain: "." + host},
		})
	}

	h.stateMu.Lock()
	h.steamID = sid
	h.stateMu.Unlock()

	if len(parentalCode) == 4 {
		g, gctx := errgroup.WithContext(ctx)
		for _, host := range []string{HostCommunity, HostStore} {
			g.Go(func() error {
				return h.unlockParentalAccount(gctx, host, parentalCode)
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("unlock parental account: %w", err)
		}
	}

	now := time.Now()
	h.stateMu.Lock()
	h.lastSessionCheck = now
	h.lastSessionRefresh = now
	h.stateMu.Unlock()
	h.initialized.Store(true)

	h.log.Info("web session established", zap.String("steamid", sid.String()))
	return nil
}

// unlockParentalAccount enters the family view PIN on one host. It cannot go
// through the session-aware executor because the handler is not initialized
// yet; self-profile redirects are retried, a session-expired redirect is a
// hard failure.
func (h *Handler) unlockParentalAccount(ctx context.Context, host, pin string) error {
	sessionID := h.browser.CookieValue(host, "sessionid")
	if sessionID == "" {
		return ErrNoSessionID
	}

	form := Form{
		{Name: "pin", Value: pin},
		{Name: "sessionid", Value: sessionID},
	}
	unlockURL := "https://" + host + "/parental/ajaxunlock"

	for tries := h.maxTries; tries > 0; tries-- {
		var resp *Response
		err := h.shared.limit(ctx, host, func() error {
			var derr error
			resp, derr = h.browser.Do(ctx, http.MethodPost, unlockURL, form)
			return derr
		})
		if err != nil || resp == nil {
			if err == nil {
				err = errNilResponse
			}
			return fmt.Errorf("parental unlock on %s: %w", host, err)
		}

		if isSessionExpiredURI(resp.FinalURL) {
			return fmt.Errorf("parental unlock on %s: %w", host, ErrSessionRefreshFailed)
		}

		if h.isSelfProfileURI(resp.FinalURL) && resp.FinalURL.Path != "/parental/ajaxunlock" {
			continue
		}

		var result struct {
			Success bool `json:"success"`
		}
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			return fmt.Errorf("parental unlock on %s: decode response: %w", host, err)
		}
		if !result.Success {
			return fmt.Errorf("parental unlock on %s: pin rejected", host)
		}
		return nil
	}

	return fmt.Errorf("parental unlock on %s: %w", host, ErrTriesExhausted)
}
