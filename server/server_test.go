package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-coworking-session/coworking"
	"github.com/jrsteele09/go-coworking-session/internal/config"
	"github.com/jrsteele09/go-coworking-session/internal/metrics"
	"github.com/jrsteele09/go-coworking-session/server"
	"github.com/jrsteele09/go-coworking-session/tenants"
	tenantrepofakes "github.com/jrsteele09/go-coworking-session/tenants/repofakes"
	fakeuserrepo "github.com/jrsteele09/go-coworking-session/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	api  *server.Server
	http *httptest.Server
	reg  *prometheus.Registry
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	spaces := tenantrepofakes.NewFakeTenantRepo(&tenants.SpaceInfo{Name: "Other", Slug: "other-space", Address: "Elsewhere 1"})
	members := fakeuserrepo.NewFakeUserRepo()
	require.NoError(t, server.SeedDemo(spaces, members, time.Now()))

	reg := prometheus.NewRegistry()
	api := server.New(config.New(), spaces, members, server.WithMetrics(metrics.New(reg), reg))
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	return &testFixture{api: api, http: ts, reg: reg}
}

func (f *testFixture) do(t *testing.T, method, path, accessToken string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (f *testFixture) startSession(t *testing.T) coworking.StartSessionResponse {
	t.Helper()
	resp, raw := f.do(t, http.MethodPost, coworking.SpacePath(coworking.RouteStartSession, server.DemoSpaceSlug), "",
		coworking.StartSessionRequest{Email: "guest@example.com", Name: "Guest"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var out coworking.StartSessionResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func message(t *testing.T, raw []byte) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body.Message
}

func TestSpaceInfo(t *testing.T) {
	f := setupTestFixture(t)

	resp, raw := f.do(t, http.MethodGet, coworking.SpacePath(coworking.RouteSpace, server.DemoSpaceSlug), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var space tenants.SpaceInfo
	require.NoError(t, json.Unmarshal(raw, &space))
	require.Equal(t, "Demo Coworking", space.Name)
	require.NotNil(t, space.OperatingHours)

	resp, raw = f.do(t, http.MethodGet, coworking.SpacePath(coworking.RouteSpace, "missing"), "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Coworking space not found", message(t, raw))
}

func TestStartSessionIssuesGuestTokens(t *testing.T) {
	f := setupTestFixture(t)

	session := f.startSession(t)
	require.NotEmpty(t, session.AccessToken)
	require.NotEmpty(t, session.RefreshToken)
	require.Equal(t, 3600, session.ExpiresIn)
	require.False(t, session.Verified)

	resp, raw := f.do(t, http.MethodGet, coworking.SpacePath(coworking.RouteBookings, server.DemoSpaceSlug), session.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bookings coworking.GetBookingsResponse
	require.NoError(t, json.Unmarshal(raw, &bookings))
	require.Empty(t, bookings.Bookings)
	require.NotEmpty(t, bookings.Message)
}

func TestStartSessionValidation(t *testing.T) {
	f := setupTestFixture(t)

	resp, _ := f.do(t, http.MethodPost, coworking.SpacePath(coworking.RouteStartSession, server.DemoSpaceSlug), "",
		coworking.StartSessionRequest{Email: "guest@example.com", Name: "G"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefreshRotatesRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	session := f.startSession(t)
	refreshPath := coworking.SpacePath(coworking.RouteRefresh, server.DemoSpaceSlug)

	resp, raw := f.do(t, http.MethodPost, refreshPath, "", coworking.RefreshRequest{RefreshToken: session.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rotated coworking.StartSessionResponse
	require.NoError(t, json.Unmarshal(raw, &rotated))
	require.NotEqual(t, session.RefreshToken, rotated.RefreshToken)
	require.NotEqual(t, session.AccessToken, rotated.AccessToken)

	resp, _ = f.do(t, http.MethodPost, refreshPath, "", coworking.RefreshRequest{RefreshToken: session.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 2, f.api.RefreshCalls())
}

func TestTestControls(t *testing.T) {
	f := setupTestFixture(t)
	session := f.startSession(t)
	bookingsPath := coworking.SpacePath(coworking.RouteBookings, server.DemoSpaceSlug)

	require.Equal(t, 1, f.api.ExpireAccessTokens())
	resp, _ := f.do(t, http.MethodGet, bookingsPath, session.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.Equal(t, 1, f.api.RevokeRefreshTokens())
	resp, _ = f.do(t, http.MethodPost, coworking.SpacePath(coworking.RouteRefresh, server.DemoSpaceSlug), "",
		coworking.RefreshRequest{RefreshToken: session.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTokenIsBoundToItsSpace(t *testing.T) {
	f := setupTestFixture(t)
	session := f.startSession(t)

	resp, _ := f.do(t, http.MethodGet, coworking.SpacePath(coworking.RouteBookings, "other-space"), session.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, coworking.SpacePath(coworking.RouteBookings, server.DemoSpaceSlug), "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMagicLinkFlow(t *testing.T) {
	f := setupTestFixture(t)

	resp, raw := f.do(t, http.MethodPost, coworking.SpacePath(coworking.RouteVerifyEmail, server.DemoSpaceSlug), "",
		coworking.VerifyEmailRequest{Email: "nobody@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sent coworking.VerifyEmailResponse
	require.NoError(t, json.Unmarshal(raw, &sent))
	require.True(t, sent.Success)
	_, ok := f.api.LatestMagicLink(server.DemoSpaceSlug, "nobody@example.com")
	require.False(t, ok)

	resp, _ = f.do(t, http.MethodPost, coworking.SpacePath(coworking.RouteVerifyEmail, server.DemoSpaceSlug), "",
		coworking.VerifyEmailRequest{Email: server.DemoMemberEmail})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	link, ok := f.api.LatestMagicLink(server.DemoSpaceSlug, server.DemoMemberEmail)
	require.True(t, ok)

	verifyPath := coworking.SpacePath(coworking.RouteVerify, server.DemoSpaceSlug) + "?token=" + link
	resp, raw = f.do(t, http.MethodGet, verifyPath, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verified coworking.VerifyMagicLinkResponse
	require.NoError(t, json.Unmarshal(raw, &verified))
	require.True(t, verified.Member.Verified)
	require.Len(t, verified.Bookings, 1)

	resp, raw = f.do(t, http.MethodGet, verifyPath, "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Invalid or expired verification link", message(t, raw))
}

func TestVerifyBooking(t *testing.T) {
	f := setupTestFixture(t)
	path := coworking.SpacePath(coworking.RouteVerifyBooking, server.DemoSpaceSlug)

	resp, raw := f.do(t, http.MethodPost, path, "", coworking.VerifyBookingRequest{BookingReference: "BK-0000", Email: server.DemoMemberEmail})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Invalid booking reference or email", message(t, raw))

	resp, raw = f.do(t, http.MethodPost, path, "", coworking.VerifyBookingRequest{BookingReference: server.DemoBookingReference, Email: server.DemoMemberEmail})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verified coworking.VerifyBookingResponse
	require.NoError(t, json.Unmarshal(raw, &verified))
	require.Equal(t, server.DemoBookingReference, verified.Booking.Reference)

	resp, raw = f.do(t, http.MethodGet, coworking.SpacePath(coworking.RouteBookings, server.DemoSpaceSlug), verified.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bookings coworking.GetBookingsResponse
	require.NoError(t, json.Unmarshal(raw, &bookings))
	require.Len(t, bookings.Bookings, 1)
}

func TestStartSessionRateLimit(t *testing.T) {
	f := setupTestFixture(t)
	path := coworking.SpacePath(coworking.RouteStartSession, server.DemoSpaceSlug)
	req := coworking.StartSessionRequest{Email: "guest@example.com", Name: "Guest"}

	for i := 0; i < 5; i++ {
		resp, _ := f.do(t, http.MethodPost, path, "", req)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp, _ := f.do(t, http.MethodPost, path, "", req)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestOrders(t *testing.T) {
	f := setupTestFixture(t)
	session := f.startSession(t)
	ordersPath := coworking.SpacePath(coworking.RouteOrders, server.DemoSpaceSlug)

	resp, raw := f.do(t, http.MethodPost, ordersPath, session.AccessToken, coworking.CreateOrderRequest{DeliveryAddress: "short"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, message(t, raw), "delivery address")

	order := coworking.CreateOrderRequest{
		DeliveryAddress:  "Meeting Room 2, Floor 1",
		BookingReference: server.DemoBookingReference,
		ScheduledTime:    "12:30",
		OrderItems: []coworking.RestaurantOrder{{
			RestaurantID: "7f1c6f8e-4a5b-4b8e-9d43-0f6a2b1c9e11",
			MenuItems: []coworking.MenuItem{{
				MenuItemID: "0c9b1a9e-2f4d-4c1e-8e35-6a7d8b9c0d12",
				Quantity:   2,
			}},
		}},
	}
	resp, raw = f.do(t, http.MethodPost, ordersPath, session.AccessToken, order)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var created coworking.CreateOrderResponse
	require.NoError(t, json.Unmarshal(raw, &created))
	require.Equal(t, 17.0, created.Total.Subtotal)
	require.Equal(t, 20.35, created.Total.Total)
	require.True(t, strings.HasSuffix(created.EstimatedDelivery, "T12:30:00"))

	resp, raw = f.do(t, http.MethodGet, ordersPath, session.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list coworking.GetOrdersResponse
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Orders, 1)
	require.Equal(t, server.DemoBookingReference, *list.Orders[0].BookingReference)

	resp, raw = f.do(t, http.MethodGet, coworking.OrderPath(server.DemoSpaceSlug, created.OrderID), session.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail coworking.GetOrderDetailResponse
	require.NoError(t, json.Unmarshal(raw, &detail))
	require.Equal(t, created.OrderID, detail.OrderID)

	resp, raw = f.do(t, http.MethodGet, coworking.OrderPath(server.DemoSpaceSlug, "missing"), session.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Order not found", message(t, raw))
}

func TestCorsPreflight(t *testing.T) {
	f := setupTestFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.http.URL+coworking.SpacePath(coworking.RouteOrders, server.DemoSpaceSlug), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupTestFixture(t)
	f.do(t, http.MethodGet, coworking.SpacePath(coworking.RouteSpace, server.DemoSpaceSlug), "", nil)

	resp, raw := f.do(t, http.MethodGet, server.RouteMetrics, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), `coworking_mock_requests_total{route="/coworking/{slug}",status="200"} 1`)
}
