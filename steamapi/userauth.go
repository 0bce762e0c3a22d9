package steamapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/k64z/rq"
)

// WebSessionTokens are the cookie values ISteamUserAuth/AuthenticateUser
// hands out for a valid nonce.
type WebSessionTokens struct {
	Token       string // steamLogin cookie value
	TokenSecure string // steamLoginSecure cookie value
}

// AuthenticateUser exchanges an RSA-encrypted session key and an
// AES-encrypted login nonce for web session cookies.
//
// The call is made exactly once: the nonce burns on use, so a transport
// failure here is terminal and the caller must obtain a fresh nonce.
func AuthenticateUser(ctx context.Context, steamID64 uint64, encryptedSessionKey, encryptedLoginKey []byte) (*WebSessionTokens, error) {
	if steamID64 == 0 {
		return nil, errors.New("steamid is zero")
	}
	if len(encryptedSessionKey) == 0 || len(encryptedLoginKey) == 0 {
		return nil, errors.New("empty key material")
	}

	form := url.Values{}
	form.Set("steamid", fmt.Sprintf("%d", steamID64))
	form.Set("sessionkey", string(encryptedSessionKey))
	form.Set("encrypted_loginkey", string(encryptedLoginKey))

	resp := rq.New().
		URL(baseURL + "/ISteamUserAuth/AuthenticateUser/v1").
		Method(http.MethodPost).
		BodyBytes([]byte(form.Encode())).
		Header("Content-Type", "application/x-www-form-urlencoded").
		DoContext(ctx)

	body, err := checkResponse(resp)
	if err != nil {
		return nil, err
	}

	var result struct {
		AuthenticateUser struct {
			Token       string `json:"token"`
			TokenSecure string `json:"tokensecure"`
		} `json:"authenticateuser"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.AuthenticateUser.Token == "" || result.AuthenticateUser.TokenSecure == "" {
		return nil, errors.New("response is missing session tokens")
	}

	return &WebSessionTokens{
		Token:       result.AuthenticateUser.Token,
		TokenSecure: result.AuthenticateUser.TokenSecure,
	}, nil
}
