package steamapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/k64z/rq"
)

// QueryTime fetches the current time from Steam servers via
// ITwoFactorService/QueryTime. This endpoint doesn't require authentication.
// A zero server time is treated as failure.
func QueryTime(ctx context.Context) (uint64, error) {
	resp := rq.New().
		URL(baseURL + "/ITwoFactorService/QueryTime/v1").
		Method(http.MethodPost).
		DoContext(ctx)

	body, err := checkResponse(resp)
	if err != nil {
		return 0, err
	}

	var result struct {
		Response struct {
			ServerTime string `json:"server_time"`
		} `json:"response"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	serverTime, err := strconv.ParseUint(result.Response.ServerTime, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse server time: %w", err)
	}

	if serverTime == 0 {
		return 0, errors.New("server returned zero time")
	}

	return serverTime, nil
}
