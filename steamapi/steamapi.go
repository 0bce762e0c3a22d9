// Package steamapi wraps the api.steampowered.com Web API endpoints the
// authenticator core needs: server time and the nonce-based user
// authentication used to establish web sessions.
package steamapi

import (
	"fmt"

	"github.com/k64z/rq"
)

// Host is the Web API host. It carries no cookies; requests go through rq
// rather than the cookie-jar browser.
const Host = "api.steampowered.com"

const baseURL = "https://" + Host

// checkResponse converts transport and HTTP-level failures of an rq response
// into errors and returns the raw body on success.
func checkResponse(resp *rq.Response) ([]byte, error) {
	if resp.Error() != nil {
		return nil, fmt.Errorf("rq: %w", resp.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := resp.Bytes()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}
