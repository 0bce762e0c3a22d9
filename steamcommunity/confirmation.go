// Package steamcommunity implements the mobile authenticator protocol on top
// of an authenticated web session: login token generation and the
// /mobileconf listing, batch and per-item confirmation endpoints.
package steamcommunity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/k64z/steamguard/steamid"
	"github.com/k64z/steamguard/steamtotp"
	"github.com/k64z/steamguard/steamweb"
)

// ConfirmationType classifies a pending mobile confirmation.
type ConfirmationType int

const (
	ConfirmationTypeUnknown           ConfirmationType = 0
	ConfirmationTypeGeneric           ConfirmationType = 1
	ConfirmationTypeTrade             ConfirmationType = 2
	ConfirmationTypeMarket            ConfirmationType = 3
	ConfirmationTypePhoneNumberChange ConfirmationType = 5
	ConfirmationTypeAccountRecovery   ConfirmationType = 6
)

// IsKnown reports whether the wire value maps to a type this client
// understands. Unknown and the unassigned value 4 are rejected.
func (t ConfirmationType) IsKnown() bool {
	switch t {
	case ConfirmationTypeGeneric, ConfirmationTypeTrade, ConfirmationTypeMarket,
		ConfirmationTypePhoneNumberChange, ConfirmationTypeAccountRecovery:
		return true
	}
	return false
}

func (t ConfirmationType) String() string {
	switch t {
	case ConfirmationTypeGeneric:
		return "Generic"
	case ConfirmationTypeTrade:
		return "Trade"
	case ConfirmationTypeMarket:
		return "Market"
	case ConfirmationTypePhoneNumberChange:
		return "PhoneNumberChange"
	case ConfirmationTypeAccountRecovery:
		return "AccountRecovery"
	default:
		return "Unknown"
	}
}

// Confirmation is one pending mobile confirmation. ID, Key and Creator are
// all nonzero on any confirmation Steam serves.
type Confirmation struct {
	ID      uint64
	Key     uint64
	Creator uint64
	Type    ConfirmationType
}

// ErrMalformedListing means the confirmation page could not be parsed into a
// trustworthy listing. A partially parsed listing is never returned: acting
// on a half-read page risks confirming the wrong trade.
var ErrMalformedListing = errors.New("steamcommunity: malformed confirmation listing")

// Web is the slice of the session-aware request executor the authenticator
// needs. *steamweb.Handler satisfies it.
type Web interface {
	GetHTML(ctx context.Context, host, path string, opts ...steamweb.RequestOption) (*html.Node, error)
	GetJSON(ctx context.Context, host, path string, out any, opts ...steamweb.RequestOption) error
	PostJSON(ctx context.Context, host, path string, form steamweb.Form, out any, opts ...steamweb.RequestOption) error
	LimitConfirmations(ctx context.Context) error
}

// TimeSource yields corrected Steam time. *steamtime.Oracle satisfies it.
type TimeSource interface {
	SteamTime(ctx context.Context) uint32
}

// Authenticator holds one account's mobile authenticator credentials and
// signs /mobileconf requests with them. Safe for concurrent use.
type Authenticator struct {
	web  Web
	time TimeSource
	log  *zap.Logger

	steamID        steamid.SteamID
	sharedSecret   string
	identitySecret string

	mu       sync.Mutex
	deviceID string
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(log *zap.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.log = log }
}

// WithDeviceID sets the device identifier recorded when the authenticator
// was enrolled. Without it the deterministic derivation from the SteamID is
// used, which matches what the official app generates.
func WithDeviceID(deviceID string) AuthenticatorOption {
	return func(a *Authenticator) { a.deviceID = deviceID }
}

// NewAuthenticator creates an Authenticator for one account. The secrets are
// the shared_secret and identity_secret of the account's maFile.
func NewAuthenticator(web Web, source TimeSource, sid steamid.SteamID, sharedSecret, identitySecret string, opts ...AuthenticatorOption) (*Authenticator, error) {
	if web == nil {
		return nil, errors.New("web should be non-nil")
	}
	if source == nil {
		return nil, errors.New("time source should be non-nil")
	}
	if !sid.IsIndividual() {
		return nil, fmt.Errorf("steamid %s is not an individual account", sid)
	}

	a := &Authenticator{
		web:            web,
		time:           source,
		log:            zap.NewNop(),
		steamID:        sid,
		sharedSecret:   sharedSecret,
		identitySecret: identitySecret,
		deviceID:       steamtotp.DeriveDeviceID(sid.ToSteamID64()),
	}
	for _, opt := range opts {
		opt(a)
	}

	if !steamtotp.IsValidDeviceID(a.deviceID) {
		return nil, steamtotp.ErrInvalidDeviceID
	}
	return a, nil
}

// DeviceID returns the current device identifier.
func (a *Authenticator) DeviceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deviceID
}

// SetDeviceID replaces the device identifier, rejecting values Steam would
// not accept.
func (a *Authenticator) SetDeviceID(deviceID string) error {
	if !steamtotp.IsValidDeviceID(deviceID) {
		return steamtotp.ErrInvalidDeviceID
	}

	a.mu.Lock()
	a.deviceID = deviceID
	a.mu.Unlock()

	a.log.Debug("device id updated")
	return nil
}

// GenerateToken produces the 5-character login code for the current Steam
// time window.
func (a *Authenticator) GenerateToken(ctx context.Context) (string, error) {
	return steamtotp.GenerateAuthCode(a.sharedSecret, a.time.SteamTime(ctx))
}

// signedParams assembles the query parameters every /mobileconf request
// carries: account, device, time and the HMAC over time and tag.
func (a *Authenticator) signedParams(ctx context.Context, tag string) (url.Values, error) {
	deviceID := a.DeviceID()
	if !steamtotp.IsValidDeviceID(deviceID) {
		return nil, steamtotp.ErrInvalidDeviceID
	}

	steamTime := a.time.SteamTime(ctx)
	key, err := steamtotp.GenerateConfirmationKey(a.identitySecret, steamTime, tag)
	if err != nil {
		return nil, fmt.Errorf("confirmation key: %w", err)
	}

	params := url.Values{}
	params.Set("a", a.steamID.String())
	params.Set("k", key)
	params.Set("l", "english")
	params.Set("m", "android")
	params.Set("p", deviceID)
	params.Set("t", strconv.FormatUint(uint64(steamTime), 10))
	params.Set("tag", tag)
	return params, nil
}

// GetConfirmations lists the account's pending mobile confirmations. An
// empty result means there is nothing to confirm; a malformed page yields
// ErrMalformedListing instead of a partial listing. Listings process-wide
// are spaced out by the confirmations gate.
func (a *Authenticator) GetConfirmations(ctx context.Context) ([]Confirmation, error) {
	params, err := a.signedParams(ctx, "conf")
	if err != nil {
		return nil, err
	}

	if err := a.web.LimitConfirmations(ctx); err != nil {
		return nil, fmt.Errorf("confirmations gate: %w", err)
	}

	doc, err := a.web.GetHTML(ctx, steamweb.HostCommunity, "/mobileconf/conf?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch confirmations: %w", err)
	}

	confs, err := parseConfirmationList(doc)
	if err != nil {
		return nil, err
	}

	a.log.Debug("confirmations listed", zap.Int("count", len(confs)))
	return confs, nil
}

func parseConfirmationList(doc *html.Node) ([]Confirmation, error) {
	entries := steamweb.NodesByClass(doc, "mobileconf_list_entry")

	confs := make([]Confirmation, 0, len(entries))
	for _, entry := range entries {
		id, err := nonzeroUint(entry, "data-confid")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedListing, err)
		}
		key, err := nonzeroUint(entry, "data-key")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedListing, err)
		}
		creator, err := nonzeroUint(entry, "data-creator")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedListing, err)
		}

		rawType := steamweb.NodeAttr(entry, "data-type")
		typeValue, err := strconv.Atoi(rawType)
		if err != nil {
			return nil, fmt.Errorf("%w: data-type %q", ErrMalformedListing, rawType)
		}
		confType := ConfirmationType(typeValue)
		if !confType.IsKnown() {
			return nil, fmt.Errorf("%w: unsupported confirmation type %d", ErrMalformedListing, typeValue)
		}

		confs = append(confs, Confirmation{
			ID:      id,
			Key:     key,
			Creator: creator,
			Type:    confType,
		})
	}
	return confs, nil
}

func nonzeroUint(entry *html.Node, attr string) (uint64, error) {
	raw := steamweb.NodeAttr(entry, attr)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q", attr, raw)
	}
	if v == 0 {
		return 0, fmt.Errorf("%s is zero", attr)
	}
	return v, nil
}

// AcceptConfirmations approves the given confirmations.
func (a *Authenticator) AcceptConfirmations(ctx context.Context, confs []Confirmation) error {
	return a.HandleConfirmations(ctx, confs, true)
}

// CancelConfirmations denies the given confirmations.
func (a *Authenticator) CancelConfirmations(ctx context.Context, confs []Confirmation) error {
	return a.HandleConfirmations(ctx, confs, false)
}

// HandleConfirmations approves or denies confirmations in one batch call.
// When Steam answers the batch with success=false, which it does under load
// even for operations it applied, each confirmation is retried individually
// with a fresh signature; individual verdicts are ignored and only a
// transport failure aborts the sweep.
func (a *Authenticator) HandleConfirmations(ctx context.Context, confs []Confirmation, accept bool) error {
	if len(confs) == 0 {
		return nil
	}

	op := "cancel"
	if accept {
		op = "allow"
	}

	params, err := a.signedParams(ctx, "conf")
	if err != nil {
		return err
	}

	form := steamweb.Form{
		{Name: "a", Value: params.Get("a")},
		{Name: "k", Value: params.Get("k")},
		{Name: "m", Value: "android"},
		{Name: "op", Value: op},
		{Name: "p", Value: params.Get("p")},
		{Name: "t", Value: params.Get("t")},
		{Name: "tag", Value: "conf"},
	}
	for _, c := range confs {
		form.Add("cid[]", strconv.FormatUint(c.ID, 10))
		form.Add("ck[]", strconv.FormatUint(c.Key, 10))
	}

	var result struct {
		Success bool `json:"success"`
	}
	err = a.web.PostJSON(ctx, steamweb.HostCommunity, "/mobileconf/multiajaxop", form, &result)
	if err != nil {
		return fmt.Errorf("batch confirmation op: %w", err)
	}
	if result.Success {
		a.log.Debug("confirmations handled",
			zap.Int("count", len(confs)), zap.String("op", op))
		return nil
	}

	a.log.Debug("batch confirmation op reported failure, retrying per item",
		zap.Int("count", len(confs)))
	return a.handleEach(ctx, confs, op)
}

func (a *Authenticator) handleEach(ctx context.Context, confs []Confirmation, op string) error {
	for _, c := range confs {
		params, err := a.signedParams(ctx, "conf")
		if err != nil {
			return err
		}
		params.Set("cid", strconv.FormatUint(c.ID, 10))
		params.Set("ck", strconv.FormatUint(c.Key, 10))
		params.Set("op", op)

		// Steam lies about per-item success the same way it does for the
		// batch; only a dead transport is worth aborting for.
		var result struct {
			Success bool `json:"success"`
		}
		err = a.web.GetJSON(ctx, steamweb.HostCommunity, "/mobileconf/ajaxop?"+params.Encode(), &result)
		if err != nil {
			return fmt.Errorf("confirmation op for %d: %w", c.ID, err)
		}
	}
	return nil
}
