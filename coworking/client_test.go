package coworking_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-coworking-session/coworking"
	"github.com/jrsteele09/go-coworking-session/internal/config"
	apperrors "github.com/jrsteele09/go-coworking-session/internal/errors"
	"github.com/jrsteele09/go-coworking-session/internal/metrics"
	"github.com/jrsteele09/go-coworking-session/invalidation"
	"github.com/jrsteele09/go-coworking-session/server"
	"github.com/jrsteele09/go-coworking-session/storage"
	tenantrepofakes "github.com/jrsteele09/go-coworking-session/tenants/repofakes"
	"github.com/jrsteele09/go-coworking-session/token"
	fakeuserrepo "github.com/jrsteele09/go-coworking-session/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	api     *server.Server
	client  *coworking.Client
	store   *token.Store
	metrics *metrics.Metrics
	signals <-chan invalidation.Signal
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	spaces := tenantrepofakes.NewFakeTenantRepo()
	members := fakeuserrepo.NewFakeUserRepo()
	require.NoError(t, server.SeedDemo(spaces, members, time.Now()))
	api := server.New(config.New(), spaces, members)
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	channel := invalidation.NewChannel()
	t.Cleanup(func() { _ = channel.Close() })
	signals, err := channel.Subscribe(ctx)
	require.NoError(t, err)

	store := token.NewStore(storage.NewMemory())
	m := metrics.New(prometheus.NewRegistry())
	client := coworking.NewClient(ts.URL, store,
		coworking.WithHTTPClient(ts.Client()),
		coworking.WithChannel(channel),
		coworking.WithMetrics(m),
	)
	return &testFixture{api: api, client: client, store: store, metrics: m, signals: signals}
}

func (f *testFixture) startSession(t *testing.T) *coworking.StartSessionResponse {
	t.Helper()
	resp, err := f.client.StartSession(context.Background(), server.DemoSpaceSlug,
		coworking.StartSessionRequest{Email: "guest@example.com", Name: "Guest"})
	require.NoError(t, err)
	return resp
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

func requireStoreEmpty(t *testing.T, store *token.Store) {
	t.Helper()
	ctx := context.Background()
	for _, read := range []func(context.Context) (string, bool){store.ReadAccess, store.ReadRefresh, store.ReadTenant} {
		_, ok := read(ctx)
		require.False(t, ok)
	}
}

func TestStartSessionStoresTokens(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	resp := f.startSession(t)
	require.Equal(t, "Guest", resp.Member().Name)

	access, _ := f.store.ReadAccess(ctx)
	refreshToken, _ := f.store.ReadRefresh(ctx)
	tenant, _ := f.store.ReadTenant(ctx)
	require.Equal(t, resp.AccessToken, access)
	require.Equal(t, resp.RefreshToken, refreshToken)
	require.Equal(t, server.DemoSpaceSlug, tenant)
}

func TestVerifyBookingAndGetBookings(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	verified, err := f.client.VerifyBooking(ctx, server.DemoSpaceSlug, coworking.VerifyBookingRequest{
		BookingReference: server.DemoBookingReference,
		Email:            server.DemoMemberEmail,
	})
	require.NoError(t, err)
	require.True(t, verified.Member.Verified)

	bookings, err := f.client.GetBookings(ctx, server.DemoSpaceSlug)
	require.NoError(t, err)
	require.Len(t, bookings.Bookings, 1)
	require.Equal(t, server.DemoBookingReference, bookings.Bookings[0].Reference)
}

func TestMagicLinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	sent, err := f.client.SendMagicLink(ctx, server.DemoSpaceSlug, coworking.VerifyEmailRequest{Email: server.DemoMemberEmail})
	require.NoError(t, err)
	require.True(t, sent.Success)

	link, ok := f.api.LatestMagicLink(server.DemoSpaceSlug, server.DemoMemberEmail)
	require.True(t, ok)

	verified, err := f.client.VerifyMagicLink(ctx, server.DemoSpaceSlug, link)
	require.NoError(t, err)
	require.Equal(t, server.DemoMemberEmail, verified.Member.Email)

	_, err = f.client.VerifyMagicLink(ctx, server.DemoSpaceSlug, link)
	var apiErr *apperrors.APIError
	require.True(t, apperrors.As(err, &apiErr))
	require.Equal(t, "Invalid or expired verification link", apiErr.Message)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRequestWithoutTokenExpiresSession(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.client.GetBookings(context.Background(), server.DemoSpaceSlug)
	require.True(t, apperrors.IsSessionExpired(err))
	require.ErrorIs(t, err, apperrors.ErrNoAccessToken)

	sig := nextSignal(t, f.signals)
	require.Equal(t, invalidation.SessionExpired, sig.Name)
	require.Equal(t, invalidation.CauseNoToken, sig.Cause)
}

func TestConcurrentRejectedRequestsShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	session := f.startSession(t)
	f.api.ExpireAccessTokens()

	const requests = 10
	var wg sync.WaitGroup
	errs := make([]error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.client.GetBookings(ctx, server.DemoSpaceSlug)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.api.RefreshCalls())

	access, _ := f.store.ReadAccess(ctx)
	refreshToken, _ := f.store.ReadRefresh(ctx)
	require.NotEqual(t, session.AccessToken, access)
	require.NotEqual(t, session.RefreshToken, refreshToken)

	sig := nextSignal(t, f.signals)
	require.Equal(t, invalidation.TokensRefreshed, sig.Name)
	require.Positive(t, sig.ExpiresIn)
}

func TestFailedRefreshExpiresSession(t *testing.T) {
	f := setupTestFixture(t)
	f.startSession(t)
	f.api.ExpireAccessTokens()
	f.api.RevokeRefreshTokens()

	_, err := f.client.GetOrders(context.Background(), server.DemoSpaceSlug)
	require.True(t, apperrors.IsSessionExpired(err))
	requireStoreEmpty(t, f.store)

	sig := nextSignal(t, f.signals)
	require.Equal(t, invalidation.SessionExpired, sig.Name)
	require.Equal(t, invalidation.CauseRefreshRejected, sig.Cause)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues(metrics.OutcomeFailure)))
}

func TestAPIErrors(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	_, err := f.client.GetSpaceInfo(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.EqualError(t, err, "GetSpaceInfo: Coworking space not found")

	f.startSession(t)
	_, err = f.client.GetOrder(ctx, server.DemoSpaceSlug, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Contains(t, err.Error(), "Order not found")

	_, err = f.client.CreateOrder(ctx, server.DemoSpaceSlug, coworking.CreateOrderRequest{DeliveryAddress: "Desk 4, second floor", ScheduledTime: "25:00"})
	var apiErr *apperrors.APIError
	require.True(t, apperrors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "scheduled time must be HH:MM", apiErr.Message)

	// API errors leave the session alone
	_, ok := f.store.ReadAccess(ctx)
	require.True(t, ok)
}

func TestRateLimitedMessage(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	var err error
	for i := 0; i < 4; i++ {
		_, err = f.client.SendMagicLink(ctx, server.DemoSpaceSlug, coworking.VerifyEmailRequest{Email: "someone@example.com"})
	}
	require.ErrorIs(t, err, apperrors.ErrRateLimited)
	require.Contains(t, err.Error(), "Too many requests. Please try again later.")
}

func TestRetryIsAttemptedOnce(t *testing.T) {
	ctx := context.Background()
	var bookingCalls, refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /coworking/acme/bookings", func(w http.ResponseWriter, r *http.Request) {
		bookingCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("POST /coworking/acme/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"t2","refresh_token":"r2","expires_in":60}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	store := token.NewStore(storage.NewMemory())
	require.NoError(t, store.Write(ctx, "t1", "r1", "acme"))
	client := coworking.NewClient(ts.URL, store, coworking.WithHTTPClient(ts.Client()))

	_, err := client.GetBookings(ctx, "acme")
	var apiErr *apperrors.APIError
	require.True(t, apperrors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "Failed to fetch bookings", apiErr.Message)

	require.Equal(t, int32(2), bookingCalls.Load())
	require.Equal(t, int32(1), refreshCalls.Load())
}

func TestUnauthorizedRefreshURLIsNotRetried(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	store := token.NewStore(storage.NewMemory())
	require.NoError(t, store.Write(ctx, "t1", "r1", "acme"))
	client := coworking.NewClient(ts.URL, store, coworking.WithHTTPClient(ts.Client()))

	_, err := client.Executor().Do(ctx, http.MethodPost, ts.URL+coworking.SpacePath(coworking.RouteRefresh, "acme"), nil)
	require.True(t, apperrors.IsSessionExpired(err))
	require.Equal(t, int32(1), calls.Load())
	requireStoreEmpty(t, store)
}

func TestRoutePaths(t *testing.T) {
	assert.Equal(t, "/coworking/a%20b/bookings", coworking.SpacePath(coworking.RouteBookings, "a b"))
	assert.Equal(t, "/coworking/acme/orders/o-1", coworking.OrderPath("acme", "o-1"))
}

func TestSessionResponseWithoutAccessTokenIsRejected(t *testing.T) {
	ctx := context.Background()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"refresh_token":"r1","expires_in":3600,"email":"a@b.com","name":"Acme Co"}`))
	}))
	defer ts.Close()

	store := token.NewStore(storage.NewMemory())
	client := coworking.NewClient(ts.URL, store, coworking.WithHTTPClient(ts.Client()))

	_, err := client.StartSession(ctx, "acme", coworking.StartSessionRequest{Email: "a@b.com", Name: "Acme Co"})
	var apiErr *apperrors.APIError
	require.True(t, apperrors.As(err, &apiErr))
	require.Equal(t, "Failed to start session", apiErr.Message)
	require.False(t, apperrors.IsSessionExpired(err))
	requireStoreEmpty(t, store)
}
