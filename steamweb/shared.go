package steamweb

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/k64z/steamguard/steamapi"
)

// Tuning defaults for the process-wide limiters.
const (
	// DefaultWebLimiterDelay is the minimum start-to-start interval between
	// two requests against the same host.
	DefaultWebLimiterDelay = 300 * time.Millisecond

	// DefaultMaxConnections caps in-flight requests per host.
	DefaultMaxConnections = 10

	// DefaultConfirmationsDelay is the minimum gap between two confirmation
	// listings, enforced process-wide.
	DefaultConfirmationsDelay = 10 * time.Second
)

// hostLimiter is the per-host pair: conns caps concurrency for the whole
// duration of an operation, rate spaces out operation starts.
type hostLimiter struct {
	conns *semaphore.Weighted
	rate  *semaphore.Weighted
}

// Shared holds every piece of process-wide mutable state the handlers need:
// the per-host limiter pairs and the global confirmations gate. Construct one
// explicitly and hand it to every handler in the process.
type Shared struct {
	webDelay  time.Duration
	confDelay time.Duration

	limiters map[string]*hostLimiter
	fallback *hostLimiter
	confGate *semaphore.Weighted
}

// SharedOption configures Shared.
type SharedOption func(*Shared)

// WithWebLimiterDelay overrides the inter-start delay. Zero disables the
// limiter entirely.
func WithWebLimiterDelay(d time.Duration) SharedOption {
	return func(s *Shared) { s.webDelay = d }
}

// WithConfirmationsDelay overrides the confirmations gate delay. Zero
// disables the gate.
func WithConfirmationsDelay(d time.Duration) SharedOption {
	return func(s *Shared) { s.confDelay = d }
}

// NewShared builds the limiter set for the known Steam hosts plus a default
// bucket for anything else.
func NewShared(opts ...SharedOption) *Shared {
	s := &Shared{
		webDelay:  DefaultWebLimiterDelay,
		confDelay: DefaultConfirmationsDelay,
		confGate:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}

	newLimiter := func() *hostLimiter {
		return &hostLimiter{
			conns: semaphore.NewWeighted(DefaultMaxConnections),
			rate:  semaphore.NewWeighted(1),
		}
	}
	s.limiters = map[string]*hostLimiter{
		HostCommunity: newLimiter(),
		HostStore:     newLimiter(),
		HostHelp:      newLimiter(),
		steamapi.Host: newLimiter(),
	}
	s.fallback = newLimiter()

	return s
}

// limit runs op under the host's limiter pair: a connection slot is held for
// the whole call, while the rate slot is released by a detached timer after
// the configured delay, spacing out request starts. Unknown hosts use the
// default bucket.
func (s *Shared) limit(ctx context.Context, host string, op func() error) error {
	if s.webDelay == 0 {
		return op()
	}

	l := s.limiters[host]
	if l == nil {
		l = s.fallback
	}
	if l == nil {
		return op()
	}

	if err := l.conns.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.conns.Release(1)

	if err := l.rate.Acquire(ctx, 1); err != nil {
		return err
	}
	time.AfterFunc(s.webDelay, func() { l.rate.Release(1) })

	return op()
}

// GateWebAPI runs op under the api.steampowered.com limiter. Web API traffic
// bypasses the cookie-jar browser and therefore the executor, so it gates
// itself here instead.
func (s *Shared) GateWebAPI(ctx context.Context, op func() error) error {
	return s.limit(ctx, steamapi.Host, op)
}

// GatedTimeQuery returns query routed through the Web API limiter. Pass the
// result to steamtime.WithQuery so time resyncs share the host's spacing with
// every other Web API call in the process.
func (s *Shared) GatedTimeQuery(query func(ctx context.Context) (uint64, error)) func(ctx context.Context) (uint64, error) {
	return func(ctx context.Context) (uint64, error) {
		var serverTime uint64
		err := s.GateWebAPI(ctx, func() error {
			var qerr error
			serverTime, qerr = query(ctx)
			return qerr
		})
		return serverTime, err
	}
}

// LimitConfirmations acquires the global confirmations gate. The slot frees
// itself after the configured delay, so consecutive listings are spaced out
// even across handlers.
func (s *Shared) LimitConfirmations(ctx context.Context) error {
	if s.confDelay == 0 {
		return nil
	}

	if err := s.confGate.Acquire(ctx, 1); err != nil {
		return err
	}
	time.AfterFunc(s.confDelay, func() { s.confGate.Release(1) })

	return nil
}
