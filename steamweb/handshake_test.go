package steamweb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k64z/steamguard/steamapi"
	"github.com/k64z/steamguard/steamid"
)

func TestSessionIDForSteamID(t *testing.T) {
	sid := steamid.FromSteamID64(76561198012345678)
	assert.Equal(t, "NzY1NjExOTgwMTIzNDU2Nzg=", sessionIDForSteamID(sid))
}

func TestGenerateSessionID(t *testing.T) {
	a, err := GenerateSessionID()
	require.NoError(t, err)
	assert.Len(t, a, 24)
	assert.Regexp(t, "^[0-9a-f]{24}$", a)

	b, err := GenerateSessionID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTimezoneOffsetValue(t *testing.T) {
	utc := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "0%2C0", timezoneOffsetValue(utc))

	east := utc.In(time.FixedZone("UTC+2", 2*3600))
	assert.Equal(t, "7200%2C0", timezoneOffsetValue(east))

	west := utc.In(time.FixedZone("UTC-5", -5*3600))
	assert.Equal(t, "-18000%2C0", timezoneOffsetValue(west))
}

func newHandshakeHandler(t *testing.T, browser *fakeBrowser) *Handler {
	t.Helper()

	h := newTestHandler(t, browser, &fakeBot{})
	h.initialized.Store(false)
	h.steamID = 0
	h.authenticate = func(ctx context.Context, steamID64 uint64, encryptedSessionKey, encryptedLoginKey []byte) (*steamapi.WebSessionTokens, error) {
		if steamID64 != 76561198012345678 {
			t.Errorf("authenticate called with steamID64 = %d", steamID64)
		}
		if len(encryptedSessionKey) != 128 {
			t.Errorf("encrypted session key length = %d, want 128", len(encryptedSessionKey))
		}
		if len(encryptedLoginKey) == 0 {
			t.Error("encrypted login key is empty")
		}
		return &steamapi.WebSessionTokens{Token: "tok", TokenSecure: "tokSecure"}, nil
	}
	return h
}

func TestInit(t *testing.T) {
	browser := newFakeBrowser()
	h := newHandshakeHandler(t, browser)
	sid := steamid.FromSteamID64(76561198012345678)

	err := h.Init(context.Background(), sid, steamid.UniversePublic, "nonce", "")
	require.NoError(t, err)

	assert.True(t, h.Initialized())
	assert.Equal(t, sid, h.SteamID())

	for _, host := range []string{HostCommunity, HostHelp, HostStore} {
		assert.Equal(t, "NzY1NjExOTgwMTIzNDU2Nzg=", browser.CookieValue(host, "sessionid"), host)
		assert.Equal(t, "tok", browser.CookieValue(host, "steamLogin"), host)
		assert.Equal(t, "tokSecure", browser.CookieValue(host, "steamLoginSecure"), host)
		assert.NotEmpty(t, browser.CookieValue(host, "timezoneOffset"), host)
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	assert.True(t, h.lastSeenHealthy())
}

func TestInitValidation(t *testing.T) {
	h := newHandshakeHandler(t, newFakeBrowser())
	ctx := context.Background()
	sid := steamid.FromSteamID64(76561198012345678)

	assert.Error(t, h.Init(ctx, 0, steamid.UniversePublic, "nonce", ""),
		"non-individual steamid must be rejected")
	assert.Error(t, h.Init(ctx, sid, steamid.UniverseInvalid, "nonce", ""),
		"undefined universe must be rejected")
	assert.Error(t, h.Init(ctx, sid, steamid.UniversePublic, "", ""),
		"empty nonce must be rejected")
	assert.False(t, h.Initialized())
}

func TestInitAuthenticateIsRateLimited(t *testing.T) {
	browser := newFakeBrowser()
	h := newHandshakeHandler(t, browser)
	h.shared = NewShared(WithWebLimiterDelay(30 * time.Millisecond))

	var starts []time.Time
	h.authenticate = func(ctx context.Context, steamID64 uint64, encryptedSessionKey, encryptedLoginKey []byte) (*steamapi.WebSessionTokens, error) {
		starts = append(starts, time.Now())
		return &steamapi.WebSessionTokens{Token: "tok", TokenSecure: "tokSecure"}, nil
	}

	sid := steamid.FromSteamID64(76561198012345678)
	for range 2 {
		require.NoError(t, h.Init(context.Background(), sid, steamid.UniversePublic, "nonce", ""))
	}

	require.Len(t, starts, 2)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), 25*time.Millisecond,
		"back-to-back handshakes must share the Web API host's spacing")
}

func TestInitAuthenticateFailure(t *testing.T) {
	h := newHandshakeHandler(t, newFakeBrowser())
	h.authenticate = func(ctx context.Context, steamID64 uint64, encryptedSessionKey, encryptedLoginKey []byte) (*steamapi.WebSessionTokens, error) {
		return nil, errors.New("nonce already consumed")
	}

	err := h.Init(context.Background(), steamid.FromSteamID64(76561198012345678), steamid.UniversePublic, "nonce", "")
	require.Error(t, err)
	assert.False(t, h.Initialized())
}

func TestInitParentalUnlock(t *testing.T) {
	browser := newFakeBrowser()
	h := newHandshakeHandler(t, browser)

	var mu sync.Mutex
	unlocked := make(map[string]string)
	browser.handle = func(method, rawURL string, form Form) (*Response, error) {
		if method == http.MethodPost && strings.Contains(rawURL, "/parental/ajaxunlock") {
			host := strings.TrimPrefix(rawURL, "https://")
			host = host[:strings.IndexByte(host, '/')]
			pin, _ := form.Get("pin")
			sessionID, _ := form.Get("sessionid")
			if sessionID == "" {
				t.Errorf("unlock on %s missing sessionid", host)
			}
			mu.Lock()
			unlocked[host] = pin
			mu.Unlock()

			resp := respTo(rawURL)
			resp.Body, _ = json.Marshal(map[string]bool{"success": true})
			return resp, nil
		}
		return respTo(rawURL), nil
	}

	err := h.Init(context.Background(), steamid.FromSteamID64(76561198012345678), steamid.UniversePublic, "nonce", "1234")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{
		HostCommunity: "1234",
		HostStore:     "1234",
	}, unlocked, "family view must be unlocked on community and store")
}

func TestInitParentalUnlockRejectedPin(t *testing.T) {
	browser := newFakeBrowser()
	h := newHandshakeHandler(t, browser)

	browser.handle = func(method, rawURL string, form Form) (*Response, error) {
		resp := respTo(rawURL)
		resp.Body, _ = json.Marshal(map[string]bool{"success": false})
		return resp, nil
	}

	err := h.Init(context.Background(), steamid.FromSteamID64(76561198012345678), steamid.UniversePublic, "nonce", "1234")
	require.Error(t, err)
	assert.False(t, h.Initialized())
}

func TestInitSkipsParentalUnlockWithoutPin(t *testing.T) {
	browser := newFakeBrowser()
	h := newHandshakeHandler(t, browser)

	err := h.Init(context.Background(), steamid.FromSteamID64(76561198012345678), steamid.UniversePublic, "nonce", "")
	require.NoError(t, err)
	assert.Zero(t, browser.requestCount(), "no pin, no unlock traffic")
}
