package coworking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-coworking-session/internal/errors"
	"github.com/jrsteele09/go-coworking-session/internal/metrics"
	"github.com/jrsteele09/go-coworking-session/invalidation"
	"github.com/jrsteele09/go-coworking-session/token"
	"github.com/jrsteele09/go-coworking-session/token/refresh"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Refresher hands out a replacement for an access token the server rejected
type Refresher interface {
	Refresh(ctx context.Context, rejected string) (string, error)
}

// Executor sends requests that need the member's access token. A request
// rejected with 401 is re-issued once with a refreshed token.
type Executor struct {
	httpClient *http.Client
	store      *token.Store
	refresher  Refresher
	channel    *invalidation.Channel
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

func NewExecutor(httpClient *http.Client, store *token.Store, refresher Refresher, channel *invalidation.Channel, m *metrics.Metrics, logger zerolog.Logger) *Executor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Executor{
		httpClient: httpClient,
		store:      store,
		refresher:  refresher,
		channel:    channel,
		metrics:    m,
		logger:     logger.With().Str("component", "executor").Logger(),
	}
}

// Do sends method url with body encoded as JSON (nil for no body). The token
// is read from the store at call time.
//
// The response is returned unchanged for every status except a first 401,
// which triggers one refresh and one retry. The caller closes the body.
func (e *Executor) Do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("[Executor Do] failed to encode body: %w", err)
		}
	}

	tok := e.store.OAuth2Token(ctx)
	if tok == nil {
		e.expire(ctx, invalidation.CauseNoToken)
		return nil, apperrors.SessionExpiredBy(apperrors.ErrNoAccessToken, "no session token, please authenticate first")
	}

	logger := e.logger.With().Str("request_id", uuid.NewString()).Str("method", method).Str("url", url).Logger()

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("[Executor Do] %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		tok.SetAuthHeader(req)

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("[Executor Do] %w", err)
		}
		if resp.StatusCode != http.StatusUnauthorized || attempt > 0 {
			return resp, nil
		}
		discard(resp)

		if isRefreshURL(url) {
			logger.Warn().Msg("refresh endpoint rejected the session")
			e.expire(ctx, invalidation.CauseRefreshRejected)
			return nil, apperrors.SessionExpiredBy(refresh.ErrRejected, "session expired, please authenticate again")
		}

		logger.Debug().Msg("access token rejected, refreshing")
		fresh, err := e.refresher.Refresh(ctx, tok.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("[Executor Do] %w", err)
		}
		tok = &oauth2.Token{AccessToken: fresh, TokenType: "Bearer"}
		e.metrics.IncRetried()
	}
}

func (e *Executor) expire(ctx context.Context, cause string) {
	if err := e.store.Clear(ctx); err != nil {
		e.logger.Error().Err(err).Msg("failed to clear token store")
	}
	e.channel.Expire(cause)
	e.metrics.IncInvalidation(cause)
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
