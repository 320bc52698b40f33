package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	apperrors "github.com/jrsteele09/go-coworking-session/internal/errors"
	"github.com/jrsteele09/go-coworking-session/internal/metrics"
	"github.com/jrsteele09/go-coworking-session/invalidation"
	"github.com/jrsteele09/go-coworking-session/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ErrRejected is wrapped by an Exchanger when the backend refuses the refresh
// token outright (HTTP 401), as opposed to failing for other reasons.
var ErrRejected = errors.New("refresh token rejected")

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const flightKey = "refresh"

// Exchanger trades a refresh token for a new token pair
type Exchanger interface {
	Exchange(ctx context.Context, tenantKey, refreshToken string) (token.Pair, error)
}

// Coordinator makes sure at most one refresh-token exchange is in flight per
// tab. Requests that are rejected while an exchange is running join it and
// resume with its outcome instead of starting their own.
type Coordinator struct {
	store     *token.Store
	exchanger Exchanger
	channel   *invalidation.Channel
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	group    singleflight.Group
	inFlight atomic.Bool
}

type Option func(*Coordinator)

// WithChannel publishes session expiry and token rotation on ch
func WithChannel(ch *invalidation.Channel) Option {
	return func(c *Coordinator) { c.channel = ch }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a coordinator for the tab owning store
func NewCoordinator(store *token.Store, exchanger Exchanger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		exchanger: exchanger,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "refresh-coordinator").Logger()
	return c
}

// InFlight reports whether an exchange is currently running
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

// Refresh returns a fresh access token. rejected is the access token the
// caller just saw refused; if the store already holds a different one, it is
// returned without another exchange.
//
// On failure the store is cleared, SessionExpired is published and a
// *errors.SessionExpiredError is returned to the caller and to every joined
// waiter. A caller whose ctx ends stops waiting; the exchange carries on for
// the others.
func (c *Coordinator) Refresh(ctx context.Context, rejected string) (string, error) {
	if current, ok := c.rotatedSince(ctx, rejected); ok {
		return current, nil
	}

	c.metrics.AddRefreshWaiters(1)
	defer c.metrics.AddRefreshWaiters(-1)

	results := c.group.DoChan(flightKey, func() (any, error) {
		return c.exchange(context.WithoutCancel(ctx), rejected)
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) rotatedSince(ctx context.Context, rejected string) (string, bool) {
	if rejected == "" {
		return "", false
	}
	current, ok := c.store.ReadAccess(ctx)
	if !ok || current == rejected {
		return "", false
	}
	c.metrics.IncRefresh(metrics.OutcomeReused)
	return current, true
}

func (c *Coordinator) exchange(ctx context.Context, rejected string) (string, error) {
	c.inFlight.Store(true)
	defer c.inFlight.Store(false)

	// a flight that finished just before this one started may already have rotated the token
	if current, ok := c.rotatedSince(ctx, rejected); ok {
		return current, nil
	}

	refreshToken, hasRefresh := c.store.ReadRefresh(ctx)
	tenant, hasTenant := c.store.ReadTenant(ctx)
	if !hasRefresh {
		return "", c.fail(ctx, invalidation.CauseRefreshPrecondition, "no refresh token available", apperrors.ErrNoRefreshToken)
	}
	if !hasTenant {
		return "", c.fail(ctx, invalidation.CauseRefreshPrecondition, "no tenant key available", apperrors.ErrNoTenant)
	}

	logger := c.logger.With().Str("tenant", tenant).Logger()
	logger.Debug().Msg("exchanging refresh token")

	pair, err := c.exchanger.Exchange(ctx, tenant, refreshToken)
	if err != nil {
		cause := invalidation.CauseRefreshFailed
		if errors.Is(err, ErrRejected) {
			cause = invalidation.CauseRefreshRejected
		}
		return "", c.fail(ctx, cause, "token refresh failed", err)
	}
	if pair.AccessToken == "" {
		return "", c.fail(ctx, invalidation.CauseRefreshFailed, "token refresh returned no access token", nil)
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}

	if err := c.store.Write(ctx, pair.AccessToken, pair.RefreshToken, tenant); err != nil {
		return "", c.fail(ctx, invalidation.CauseRefreshFailed, "failed to store refreshed tokens", err)
	}

	if err := c.channel.Publish(invalidation.Signal{
		Name:      invalidation.TokensRefreshed,
		ExpiresIn: pair.ExpiresInSeconds(NowTimeFunc()),
	}); err != nil {
		logger.Error().Err(err).Msg("failed to publish token rotation")
	}

	c.metrics.IncRefresh(metrics.OutcomeSuccess)
	logger.Info().Msg("tokens refreshed")
	return pair.AccessToken, nil
}

func (c *Coordinator) fail(ctx context.Context, cause, reason string, err error) error {
	c.logger.Warn().Err(err).Str("cause", cause).Msg(reason)

	if clearErr := c.store.Clear(ctx); clearErr != nil {
		c.logger.Error().Err(clearErr).Msg("failed to clear token store")
	}
	c.channel.Expire(cause)
	c.metrics.IncRefresh(metrics.OutcomeFailure)
	c.metrics.IncInvalidation(cause)

	return apperrors.SessionExpiredBy(err, reason)
}

// TokenSource adapts the coordinator to oauth2.TokenSource for callers bound
// to ctx. Token returns the stored access token, exchanging the refresh token
// first when none is stored.
func (c *Coordinator) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, c: c}
}

type tokenSource struct {
	ctx context.Context
	c   *Coordinator
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	if t := ts.c.store.OAuth2Token(ts.ctx); t != nil {
		return t, nil
	}
	if _, err := ts.c.Refresh(ts.ctx, ""); err != nil {
		return nil, fmt.Errorf("[Coordinator Token] %w", err)
	}
	if t := ts.c.store.OAuth2Token(ts.ctx); t != nil {
		return t, nil
	}
	return nil, apperrors.SessionExpiredBy(apperrors.ErrNoAccessToken, "no token")
}
