package refresh_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-coworking-session/internal/errors"
	"github.com/jrsteele09/go-coworking-session/internal/metrics"
	"github.com/jrsteele09/go-coworking-session/invalidation"
	"github.com/jrsteele09/go-coworking-session/storage"
	"github.com/jrsteele09/go-coworking-session/token"
	"github.com/jrsteele09/go-coworking-session/token/refresh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	calls atomic.Int32
	gate  chan struct{}
	pair  token.Pair
	err   error

	mu          sync.Mutex
	lastTenant  string
	lastRefresh string
}

func (f *fakeExchanger) Exchange(ctx context.Context, tenantKey, refreshToken string) (token.Pair, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastTenant, f.lastRefresh = tenantKey, refreshToken
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	return f.pair, f.err
}

type testFixture struct {
	store     *token.Store
	exchanger *fakeExchanger
	channel   *invalidation.Channel
	metrics   *metrics.Metrics
	coord     *refresh.Coordinator
	signals   <-chan invalidation.Signal
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &testFixture{
		store:     token.NewStore(storage.NewMemory()),
		exchanger: &fakeExchanger{pair: token.Pair{AccessToken: "t2", RefreshToken: "r2", ExpiresIn: 3600}},
		channel:   invalidation.NewChannel(),
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	t.Cleanup(func() { _ = f.channel.Close() })

	signals, err := f.channel.Subscribe(ctx)
	require.NoError(t, err)
	f.signals = signals

	f.coord = refresh.NewCoordinator(f.store, f.exchanger,
		refresh.WithChannel(f.channel),
		refresh.WithMetrics(f.metrics),
	)
	return f
}

func nextSignal(t *testing.T, signals <-chan invalidation.Signal) invalidation.Signal {
	t.Helper()
	select {
	case sig := <-signals:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("no signal received")
		return invalidation.Signal{}
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	require.NoError(t, f.store.Write(ctx, "t1", "r1", "acme"))

	got, err := f.coord.Refresh(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "t2", got)

	access, _ := f.store.ReadAccess(ctx)
	refreshToken, _ := f.store.ReadRefresh(ctx)
	tenant, _ := f.store.ReadTenant(ctx)
	require.Equal(t, "t2", access)
	require.Equal(t, "r2", refreshToken)
	require.Equal(t, "acme", tenant)

	require.Equal(t, "acme", f.exchanger.lastTenant)
	require.Equal(t, "r1", f.exchanger.lastRefresh)

	sig := nextSignal(t, f.signals)
	require.Equal(t, invalidation.TokensRefreshed, sig.Name)
	require.Equal(t, 3600, sig.ExpiresIn)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.exchanger.pair = token.Pair{AccessToken: "t2", ExpiresIn: 60}
	require.NoError(t, f.store.Write(ctx, "t1", "r1", "acme"))

	_, err := f.coord.Refresh(ctx, "t1")
	require.NoError(t, err)

	refreshToken, _ := f.store.ReadRefresh(ctx)
	require.Equal(t, "r1", refreshToken)
}

func TestConcurrentRefreshesShareOneExchange(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.exchanger.gate = make(chan struct{})
	require.NoError(t, f.store.Write(ctx, "t1", "r1", "acme"))

	const callers = 8
	results := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.coord.Refresh(ctx, "t1")
		}(i)
	}

	require.Eventually(t, f.coord.InFlight, time.Second, 5*time.Millisecond)
	close(f.exchanger.gate)
	wg.Wait()

	require.Equal(t, int32(1), f.exchanger.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "t2", results[i])
	}
	require.False(t, f.coord.InFlight())
}

func TestRefreshReusesAlreadyRotatedToken(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	require.NoError(t, f.store.Write(ctx, "t2", "r2", "acme"))

	got, err := f.coord.Refresh(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "t2", got)
	require.Zero(t, f.exchanger.calls.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues(metrics.OutcomeReused)))
}

func TestRefreshPreconditions(t *testing.T) {
	tests := map[string]struct {
		seed    func(ctx context.Context, s *token.Store)
		missing error
	}{
		"no tokens at all": {
			seed:    func(ctx context.Context, s *token.Store) {},
			missing: apperrors.ErrNoRefreshToken,
		},
		"no refresh token": {
			seed: func(ctx context.Context, s *token.Store) {
				require.NoError(t, s.Write(ctx, "t1", "", "acme"))
			},
			missing: apperrors.ErrNoRefreshToken,
		},
		"no tenant": {
			seed: func(ctx context.Context, s *token.Store) {
				require.NoError(t, s.Write(ctx, "t1", "r1", ""))
			},
			missing: apperrors.ErrNoTenant,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := setupTestFixture(t)
			tt.seed(ctx, f.store)

			_, err := f.coord.Refresh(ctx, "t1")
			require.True(t, apperrors.IsSessionExpired(err))
			require.ErrorIs(t, err, tt.missing)
			require.Zero(t, f.exchanger.calls.Load())

			_, ok := f.store.ReadAccess(ctx)
			require.False(t, ok)

			sig := nextSignal(t, f.signals)
			require.Equal(t, invalidation.SessionExpired, sig.Name)
			require.Equal(t, invalidation.CauseRefreshPrecondition, sig.Cause)
		})
	}
}

func TestFailedExchangeFailsEveryWaiter(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.exchanger.gate = make(chan struct{})
	f.exchanger.err = errors.New("connection reset")
	require.NoError(t, f.store.Write(ctx, "t1", "r1", "acme"))

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coord.Refresh(ctx, "t1")
		}(i)
	}
	require.Eventually(t, f.coord.InFlight, time.Second, 5*time.Millisecond)
	close(f.exchanger.gate)
	wg.Wait()

	for _, err := range errs {
		require.True(t, apperrors.IsSessionExpired(err))
	}
	for _, read := range []func(context.Context) (string, bool){f.store.ReadAccess, f.store.ReadRefresh, f.store.ReadTenant} {
		_, ok := read(ctx)
		require.False(t, ok)
	}

	sig := nextSignal(t, f.signals)
	require.Equal(t, invalidation.SessionExpired, sig.Name)
	require.Equal(t, invalidation.CauseRefreshFailed, sig.Cause)
}

func TestRejectedRefreshTokenCause(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.exchanger.err = apperrors.Wrapf(refresh.ErrRejected, "[Client Exchange]")
	require.NoError(t, f.store.Write(ctx, "t1", "r1", "acme"))

	_, err := f.coord.Refresh(ctx, "t1")
	require.True(t, apperrors.IsSessionExpired(err))

	sig := nextSignal(t, f.signals)
	require.Equal(t, invalidation.CauseRefreshRejected, sig.Cause)
}

func TestCancelledWaiterDoesNotAbortExchange(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.exchanger.gate = make(chan struct{})
	require.NoError(t, f.store.Write(ctx, "t1", "r1", "acme"))

	waitCtx, cancel := context.WithCancel(ctx)
	cancelled := make(chan error, 1)
	go func() {
		_, err := f.coord.Refresh(waitCtx, "t1")
		cancelled <- err
	}()
	require.Eventually(t, f.coord.InFlight, time.Second, 5*time.Millisecond)

	var got string
	var gotErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		got, gotErr = f.coord.Refresh(ctx, "t1")
	}()

	cancel()
	require.ErrorIs(t, <-cancelled, context.Canceled)

	close(f.exchanger.gate)
	<-done
	require.NoError(t, gotErr)
	require.Equal(t, "t2", got)
	require.Equal(t, int32(1), f.exchanger.calls.Load())
	access, _ := f.store.ReadAccess(ctx)
	assert.Equal(t, "t2", access)
}

func TestTokenSource(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	require.NoError(t, f.store.Write(ctx, "t1", "r1", "acme"))

	tok, err := f.coord.TokenSource(ctx).Token()
	require.NoError(t, err)
	require.Equal(t, "t1", tok.AccessToken)
	require.Zero(t, f.exchanger.calls.Load())

	require.NoError(t, f.store.Clear(ctx))
	_, err = f.coord.TokenSource(ctx).Token()
	require.True(t, apperrors.IsSessionExpired(err))
}
