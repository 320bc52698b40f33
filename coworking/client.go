package coworking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/go-coworking-session/internal/errors"
	"github.com/jrsteele09/go-coworking-session/internal/metrics"
	"github.com/jrsteele09/go-coworking-session/invalidation"
	"github.com/jrsteele09/go-coworking-session/tenants"
	"github.com/jrsteele09/go-coworking-session/token"
	"github.com/jrsteele09/go-coworking-session/token/refresh"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Messages shown to the member when a call fails
const (
	msgSpaceNotFound   = "Coworking space not found"
	msgTooManyRequests = "Too many requests. Please try again later."
	msgInvalidLink     = "Invalid or expired verification link"
	msgInvalidBooking  = "Invalid booking reference or email"
	msgInvalidOrder    = "Invalid order data"
	msgOrderNotFound   = "Order not found"
)

var (
	_ tenants.Fetcher   = (*Client)(nil)
	_ refresh.Exchanger = (*Client)(nil)
)

// Client calls the coworking member API for one tab. Public calls go out
// directly; member calls go through the Executor. Successful session start
// and verification calls store the issued tokens.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	store       *token.Store
	channel     *invalidation.Channel
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	coordinator *refresh.Coordinator
	executor    *Executor
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithChannel sets the tab's invalidation channel
func WithChannel(ch *invalidation.Channel) Option {
	return func(c *Client) { c.channel = ch }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient wires a client, its refresh coordinator and its executor around
// store. baseURL is the API root, e.g. "https://api.example.com".
func NewClient(baseURL string, store *token.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		store:      store,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.coordinator = refresh.NewCoordinator(store, c,
		refresh.WithChannel(c.channel),
		refresh.WithMetrics(c.metrics),
		refresh.WithLogger(c.logger),
	)
	c.executor = NewExecutor(c.httpClient, store, c.coordinator, c.channel, c.metrics, c.logger)
	c.logger = c.logger.With().Str("component", "coworking-client").Logger()
	return c
}

func (c *Client) Store() *token.Store {
	return c.store
}

func (c *Client) Coordinator() *refresh.Coordinator {
	return c.coordinator
}

func (c *Client) Executor() *Executor {
	return c.executor
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// GetSpaceInfo fetches the public info of a space
func (c *Client) GetSpaceInfo(ctx context.Context, slug string) (*tenants.SpaceInfo, error) {
	resp, err := c.send(ctx, http.MethodGet, c.url(SpacePath(RouteSpace, slug)), nil)
	if err != nil {
		return nil, fmt.Errorf("[Client GetSpaceInfo] %w", err)
	}
	return decode[tenants.SpaceInfo](resp, "GetSpaceInfo", failure{
		fallback: "Failed to fetch space info",
		status:   map[int]string{http.StatusNotFound: msgSpaceNotFound},
	})
}

// StartSession opens a guest session without member verification
func (c *Client) StartSession(ctx context.Context, slug string, req StartSessionRequest) (*StartSessionResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, c.url(SpacePath(RouteStartSession, slug)), req)
	if err != nil {
		return nil, fmt.Errorf("[Client StartSession] %w", err)
	}
	out, err := decode[StartSessionResponse](resp, "StartSession", failure{
		fallback: "Failed to start session",
		status: map[int]string{
			http.StatusNotFound:        msgSpaceNotFound,
			http.StatusTooManyRequests: msgTooManyRequests,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := c.keep(ctx, "StartSession", "Failed to start session", out.Pair, slug); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMagicLink asks the API to email a verification link to a member
func (c *Client) SendMagicLink(ctx context.Context, slug string, req VerifyEmailRequest) (*VerifyEmailResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, c.url(SpacePath(RouteVerifyEmail, slug)), req)
	if err != nil {
		return nil, fmt.Errorf("[Client SendMagicLink] %w", err)
	}
	return decode[VerifyEmailResponse](resp, "SendMagicLink", failure{
		fallback: "Failed to send verification email",
		status:   map[int]string{http.StatusTooManyRequests: msgTooManyRequests},
	})
}

// VerifyMagicLink exchanges the emailed link token for a member session
func (c *Client) VerifyMagicLink(ctx context.Context, slug, linkToken string) (*VerifyMagicLinkResponse, error) {
	target := c.url(SpacePath(RouteVerify, slug)) + "?token=" + url.QueryEscape(linkToken)
	resp, err := c.send(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("[Client VerifyMagicLink] %w", err)
	}
	out, err := decode[VerifyMagicLinkResponse](resp, "VerifyMagicLink", failure{
		fallback: "Failed to verify link",
		status: map[int]string{
			http.StatusBadRequest: msgInvalidLink,
			http.StatusNotFound:   msgSpaceNotFound,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := c.keep(ctx, "VerifyMagicLink", "Failed to verify link", out.Pair, slug); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyBooking opens a member session from a booking reference and email
func (c *Client) VerifyBooking(ctx context.Context, slug string, req VerifyBookingRequest) (*VerifyBookingResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, c.url(SpacePath(RouteVerifyBooking, slug)), req)
	if err != nil {
		return nil, fmt.Errorf("[Client VerifyBooking] %w", err)
	}
	out, err := decode[VerifyBookingResponse](resp, "VerifyBooking", failure{
		fallback: "Failed to verify booking",
		status: map[int]string{
			http.StatusBadRequest:      msgInvalidBooking,
			http.StatusTooManyRequests: msgTooManyRequests,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := c.keep(ctx, "VerifyBooking", "Failed to verify booking", out.Pair, slug); err != nil {
		return nil, err
	}
	return out, nil
}

// Exchange trades a refresh token for a new pair. It does not touch the
// store; the coordinator owns that.
func (c *Client) Exchange(ctx context.Context, slug, refreshToken string) (token.Pair, error) {
	resp, err := c.send(ctx, http.MethodPost, c.url(SpacePath(RouteRefresh, slug)), RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return token.Pair{}, fmt.Errorf("[Client Exchange] %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		return token.Pair{}, fmt.Errorf("[Client Exchange] %w", refresh.ErrRejected)
	}
	pair, err := decode[token.Pair](resp, "Exchange", failure{fallback: "Token refresh failed"})
	if err != nil {
		return token.Pair{}, err
	}
	return *pair, nil
}

// GetBookings lists today's bookings of the member. Guest sessions get an
// empty list with an explanatory message.
func (c *Client) GetBookings(ctx context.Context, slug string) (*GetBookingsResponse, error) {
	resp, err := c.executor.Do(ctx, http.MethodGet, c.url(SpacePath(RouteBookings, slug)), nil)
	if err != nil {
		return nil, fmt.Errorf("[Client GetBookings] %w", err)
	}
	return decode[GetBookingsResponse](resp, "GetBookings", failure{fallback: "Failed to fetch bookings"})
}

func (c *Client) CreateOrder(ctx context.Context, slug string, req CreateOrderRequest) (*CreateOrderResponse, error) {
	resp, err := c.executor.Do(ctx, http.MethodPost, c.url(SpacePath(RouteOrders, slug)), req)
	if err != nil {
		return nil, fmt.Errorf("[Client CreateOrder] %w", err)
	}
	return decode[CreateOrderResponse](resp, "CreateOrder", failure{
		fallback:          "Failed to create order",
		status:            map[int]string{http.StatusBadRequest: msgInvalidOrder},
		preferServerOn400: true,
	})
}

func (c *Client) GetOrders(ctx context.Context, slug string) (*GetOrdersResponse, error) {
	resp, err := c.executor.Do(ctx, http.MethodGet, c.url(SpacePath(RouteOrders, slug)), nil)
	if err != nil {
		return nil, fmt.Errorf("[Client GetOrders] %w", err)
	}
	return decode[GetOrdersResponse](resp, "GetOrders", failure{fallback: "Failed to fetch orders"})
}

func (c *Client) GetOrder(ctx context.Context, slug, orderID string) (*GetOrderDetailResponse, error) {
	resp, err := c.executor.Do(ctx, http.MethodGet, c.url(OrderPath(slug, orderID)), nil)
	if err != nil {
		return nil, fmt.Errorf("[Client GetOrder] %w", err)
	}
	return decode[GetOrderDetailResponse](resp, "GetOrder", failure{
		fallback: "Failed to fetch order details",
		status:   map[int]string{http.StatusNotFound: msgOrderNotFound},
	})
}

// keep stores a freshly issued pair together with the space slug. A
// response without an access token is reported with the operation's
// fallback message and stores nothing.
func (c *Client) keep(ctx context.Context, op, fallback string, pair token.Pair, slug string) error {
	if pair.AccessToken == "" {
		c.logger.Warn().Str("tenant", slug).Str("op", op).Msg("response carried no access token")
		return &apperrors.APIError{Op: op, Kind: apperrors.KindGeneric, Message: fallback}
	}
	if err := c.store.Write(ctx, pair.AccessToken, pair.RefreshToken, slug); err != nil {
		return fmt.Errorf("[Client %s] %w", op, err)
	}
	c.logger.Info().Str("tenant", slug).Str("op", op).Msg("session tokens stored")
	return nil
}

// send issues an unauthenticated request
func (c *Client) send(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// failure describes how a non-2xx response is reported for one operation
type failure struct {
	fallback string
	status   map[int]string
	// preferServerOn400 uses the server's message for 400 when it sent one
	preferServerOn400 bool
}

func (f failure) toError(op string, resp *http.Response) error {
	msg, ok := f.status[resp.StatusCode]
	if resp.StatusCode == http.StatusBadRequest && (f.preferServerOn400 || !ok) {
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
			msg, ok = body.Message, true
		}
	}
	if !ok {
		if resp.StatusCode == http.StatusTooManyRequests {
			msg = msgTooManyRequests
		} else {
			msg = f.fallback
		}
	}
	return &apperrors.APIError{
		Op:      op,
		Status:  resp.StatusCode,
		Kind:    apperrors.KindFromStatus(resp.StatusCode),
		Message: msg,
	}
}

func decode[T any](resp *http.Response, op string, f failure) (*T, error) {
	defer discard(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, f.toError(op, resp)
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("[Client %s] failed to decode response: %w", op, err)
	}
	return &out, nil
}
