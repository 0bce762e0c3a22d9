// Package steamtime maintains a corrected Steam server clock. The offset
// between Steam time and the local clock is queried from
// ITwoFactorService/QueryTime at most once per TTL and shared by every
// handler that holds the same Oracle.
package steamtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/k64z/steamguard/steamapi"
)

// DefaultTTL is how long a fetched time delta stays valid.
const DefaultTTL = 24 * time.Hour

// QueryFunc fetches the current Steam server time in Unix seconds.
type QueryFunc func(ctx context.Context) (uint64, error)

// Oracle owns the process-wide Steam time delta. Construct one explicitly at
// program start and pass it to every handler; there is no hidden singleton.
type Oracle struct {
	query QueryFunc
	now   func() time.Time
	ttl   time.Duration
	log   *zap.Logger

	mu        sync.Mutex
	delta     int64
	haveDelta bool
	lastCheck time.Time
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithQuery replaces the server time source. Used by tests and by callers
// that route Web API traffic through their own transport.
func WithQuery(q QueryFunc) Option {
	return func(o *Oracle) { o.query = q }
}

// WithTTL overrides how long a fetched delta stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(o *Oracle) { o.ttl = ttl }
}

// WithClock replaces the local clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Oracle) { o.log = log }
}

// NewOracle returns an Oracle backed by steamapi.QueryTime.
func NewOracle(opts ...Option) *Oracle {
	o := &Oracle{
		query: steamapi.QueryTime,
		now:   time.Now,
		ttl:   DefaultTTL,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SteamTime returns the current Steam time in Unix seconds. While the cached
// delta is fresh the call is local. When it is stale, exactly one caller
// refreshes it; everyone blocked behind the mutex re-checks the TTL on entry
// and rides the fresh value. If the query fails the local clock is returned
// as-is and the stored delta is left untouched.
func (o *Oracle) SteamTime(ctx context.Context) uint32 {
	now := o.now()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.haveDelta && now.Sub(o.lastCheck) < o.ttl {
		return uint32(now.Unix() + o.delta)
	}

	serverTime, err := o.query(ctx)
	if err != nil {
		o.log.Warn("steam time query failed, using local clock", zap.Error(err))
		return uint32(now.Unix())
	}

	o.delta = int64(serverTime) - now.Unix()
	o.haveDelta = true
	o.lastCheck = now
	o.log.Debug("steam time delta refreshed", zap.Int64("delta", o.delta))

	return uint32(now.Unix() + o.delta)
}

// Delta returns the cached offset between Steam time and the local clock.
// The second return value is false until the first successful refresh.
func (o *Oracle) Delta() (int64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.delta, o.haveDelta
}
