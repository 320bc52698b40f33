// Package sessions holds the live member session of one tab: who is signed
// in, until when, their bookings for today and the space they are in.
//
// A Controller restores the session persisted in the tab's storage, keeps
// the expiry up to date, and clears everything when the session times out,
// when a request finds it unusable, or when another tab logs out.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jrsteele09/go-coworking-session/coworking"
	"github.com/jrsteele09/go-coworking-session/internal/config"
	apperrors "github.com/jrsteele09/go-coworking-session/internal/errors"
	"github.com/jrsteele09/go-coworking-session/internal/metrics"
	"github.com/jrsteele09/go-coworking-session/invalidation"
	"github.com/jrsteele09/go-coworking-session/storage"
	"github.com/jrsteele09/go-coworking-session/tenants"
	"github.com/jrsteele09/go-coworking-session/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Storage keys persisted next to the tokens
const (
	MemberInfoKey    = "coworking_member_info"
	BookingsKey      = "coworking_bookings"
	SessionExpiryKey = "coworking_session_expiry"
)

// Causes logged and counted when the controller clears the session itself
const (
	CauseLogout    = "logout"
	CauseTimeout   = "session_timeout"
	CauseOtherTab  = "other_tab_logout"
	CauseHydration = "hydration"
)

const (
	DefaultTickInterval     = 30 * time.Second
	DefaultExpiringSoon     = 5 * time.Minute
	maxTickInterval         = time.Minute
	defaultHydrationTimeout = 5 * time.Second
)

// API is the part of the coworking client the controller drives
type API interface {
	StartSession(ctx context.Context, slug string, req coworking.StartSessionRequest) (*coworking.StartSessionResponse, error)
	VerifyMagicLink(ctx context.Context, slug, linkToken string) (*coworking.VerifyMagicLinkResponse, error)
	VerifyBooking(ctx context.Context, slug string, req coworking.VerifyBookingRequest) (*coworking.VerifyBookingResponse, error)
	GetBookings(ctx context.Context, slug string) (*coworking.GetBookingsResponse, error)
}

var _ API = (*coworking.Client)(nil)

// Snapshot is a consistent view of the controller state at one instant
type Snapshot struct {
	Loading            bool
	Authenticated      bool
	Member             *coworking.Member
	Bookings           []coworking.Booking
	SpaceInfo          *tenants.SpaceInfo
	Verified           bool
	ExpiresAt          time.Time
	MinutesUntilExpiry int
	ExpiringSoon       bool
}

// AuthStatus is what a page guarding member content needs to know
type AuthStatus struct {
	Loading       bool
	Authenticated bool
}

type Controller struct {
	store     *token.Store
	storage   storage.Storage
	api       API
	channel   *invalidation.Channel
	directory *tenants.Directory
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
	tick      time.Duration
	soon      time.Duration

	mu        sync.RWMutex
	loading   bool
	closed    bool
	member    *coworking.Member
	bookings  []coworking.Booking
	space     *tenants.SpaceInfo
	verified  bool
	expiresAt time.Time

	// generation changes whenever the session is cleared or replaced
	generation uint64
	// signals stamped before notBefore belong to an earlier session
	notBefore  time.Time

	// sessionMu orders session changes together with their storage writes
	sessionMu sync.Mutex

	startOnce sync.Once
	ready     chan struct{}
	wake      chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Controller)

func WithChannel(ch *invalidation.Channel) Option {
	return func(c *Controller) { c.channel = ch }
}

// WithDirectory enables LoadSpaceInfo
func WithDirectory(d *tenants.Directory) Option {
	return func(c *Controller) { c.directory = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTickInterval sets how often the expiry is checked. Values above one
// minute are capped.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.tick = d }
}

// WithExpiringSoon sets the remaining time under which the session counts
// as expiring soon
func WithExpiringSoon(d time.Duration) Option {
	return func(c *Controller) { c.soon = d }
}

// WithConfig applies the session settings of cfg
func WithConfig(cfg config.SessionConfig) Option {
	return func(c *Controller) {
		c.tick = cfg.GetTickInterval()
		c.soon = cfg.GetExpiringSoonThreshold()
	}
}

// NewController creates a controller over the tab storage behind store.
// Call Start to restore the persisted session and Close when done.
func NewController(store *token.Store, api API, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		storage: store.Storage(),
		api:     api,
		logger:  log.Logger,
		now:     time.Now,
		tick:    DefaultTickInterval,
		soon:    DefaultExpiringSoon,
		loading: true,
		ready:   make(chan struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tick <= 0 {
		c.tick = DefaultTickInterval
	}
	c.tick = min(c.tick, maxTickInterval)
	if c.soon <= 0 {
		c.soon = DefaultExpiringSoon
	}
	c.logger = c.logger.With().Str("component", "session-controller").Logger()
	return c
}

// Start restores the persisted session and starts watching for expiry,
// invalidation signals and other tabs' changes until ctx is done or Close
// is called. Only the first call has an effect.
func (c *Controller) Start(ctx context.Context) error {
	var err error
	c.startOnce.Do(func() {
		err = c.start(ctx)
	})
	return err
}

func (c *Controller) start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	// subscribe before hydrating so nothing published meanwhile is missed
	signals, err := c.channel.Subscribe(loopCtx)
	if err != nil {
		cancel()
		close(c.done)
		c.finishLoading()
		return fmt.Errorf("[Controller Start] %w", err)
	}
	var events <-chan storage.ChangeEvent
	if watcher, ok := c.storage.(storage.Watcher); ok {
		if events, err = watcher.Watch(loopCtx); err != nil {
			cancel()
			close(c.done)
			c.finishLoading()
			return fmt.Errorf("[Controller Start] %w", err)
		}
	}

	hydrateCtx, cancelHydrate := context.WithTimeout(ctx, defaultHydrationTimeout)
	c.hydrate(hydrateCtx)
	cancelHydrate()
	c.finishLoading()

	go c.run(loopCtx, signals, events)
	return nil
}

func (c *Controller) finishLoading() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
	close(c.ready)
}

// Ready is closed once the persisted session has been restored or discarded
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Close stops the controller. Results of calls still in flight no longer
// change its state. Close is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-c.done
}

// hydrate restores a complete unexpired session and discards anything else.
// Space info is restored whenever present.
func (c *Controller) hydrate(ctx context.Context) {
	if space, ok := tenants.LoadPersisted(ctx, c.storage); ok {
		c.mu.Lock()
		c.space = space
		c.mu.Unlock()
	}

	_, hasToken := c.store.ReadAccess(ctx)
	member, expiresAt, bookings, err := c.readPersisted(ctx)
	logger := c.logger.With().Bool("token", hasToken).Bool("member", member != nil).Logger()

	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("persisted session unreadable, clearing")
	case !hasToken && member == nil && expiresAt.IsZero():
		logger.Debug().Msg("no persisted session")
		return
	case !hasToken || member == nil || expiresAt.IsZero():
		logger.Warn().Msg("persisted session inconsistent, clearing")
	case !c.now().Before(expiresAt):
		logger.Info().Time("expires_at", expiresAt).Msg("persisted session expired, clearing")
	default:
		c.mu.Lock()
		c.member = member
		c.verified = member.Verified
		c.expiresAt = expiresAt
		c.bookings = bookings
		c.generation++
		c.mu.Unlock()
		logger.Info().Time("expires_at", expiresAt).Msg("session restored")
		return
	}
	c.clear(ctx, CauseHydration)
}

func (c *Controller) readPersisted(ctx context.Context) (*coworking.Member, time.Time, []coworking.Booking, error) {
	if c.storage == nil {
		return nil, time.Time{}, nil, nil
	}

	var (
		member    *coworking.Member
		expiresAt time.Time
		bookings  []coworking.Booking
	)

	raw, ok, err := c.storage.Get(ctx, MemberInfoKey)
	if err != nil {
		return nil, time.Time{}, nil, fmt.Errorf("failed to read member: %w", err)
	}
	if ok && raw != "" {
		member = &coworking.Member{}
		if err := json.Unmarshal([]byte(raw), member); err != nil {
			return nil, time.Time{}, nil, fmt.Errorf("failed to decode member: %w", err)
		}
	}

	raw, ok, err = c.storage.Get(ctx, SessionExpiryKey)
	if err != nil {
		return nil, time.Time{}, nil, fmt.Errorf("failed to read expiry: %w", err)
	}
	if ok && raw != "" {
		if expiresAt, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, time.Time{}, nil, fmt.Errorf("failed to decode expiry: %w", err)
		}
	}

	raw, ok, err = c.storage.Get(ctx, BookingsKey)
	if err != nil {
		return nil, time.Time{}, nil, fmt.Errorf("failed to read bookings: %w", err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &bookings); err != nil {
			return nil, time.Time{}, nil, fmt.Errorf("failed to decode bookings: %w", err)
		}
	}
	return member, expiresAt, bookings, nil
}

func (c *Controller) run(ctx context.Context, signals <-chan invalidation.Signal, events <-chan storage.ChangeEvent) {
	defer close(c.done)

	var (
		ticker *time.Ticker
		tickC  <-chan time.Time
	)
	syncTicker := func() {
		active := !c.SessionExpiresAt().IsZero()
		switch {
		case active && ticker == nil:
			ticker = time.NewTicker(c.tick)
			tickC = ticker.C
		case !active && ticker != nil:
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	syncTicker()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		case <-tickC:
			c.checkExpiry(ctx)
		case sig, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			c.handleSignal(ctx, sig)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Key == token.AccessTokenKey && ev.Removed {
				c.logger.Info().Str("source", ev.Source).Msg("access token removed by another tab")
				c.clear(ctx, CauseOtherTab)
				c.metrics.IncInvalidation(CauseOtherTab)
			}
		}
		syncTicker()
	}
}

func (c *Controller) handleSignal(ctx context.Context, sig invalidation.Signal) {
	if c.stale(sig) {
		c.logger.Debug().Str("signal", sig.Name).Str("cause", sig.Cause).Time("at", sig.At).
			Msg("ignoring signal from an earlier session")
		return
	}
	switch sig.Name {
	case invalidation.SessionExpired:
		c.logger.Info().Str("cause", sig.Cause).Msg("session invalidated")
		c.clear(ctx, sig.Cause)
	case invalidation.TokensRefreshed:
		if sig.ExpiresIn <= 0 {
			return
		}
		c.mu.Lock()
		if c.closed || c.member == nil {
			c.mu.Unlock()
			return
		}
		c.expiresAt = c.now().Add(time.Duration(sig.ExpiresIn) * time.Second)
		expiresAt := c.expiresAt
		c.mu.Unlock()
		c.persist(ctx, SessionExpiryKey, expiresAt.Format(time.RFC3339))
	}
}

func (c *Controller) checkExpiry(ctx context.Context) {
	expiresAt := c.SessionExpiresAt()
	if expiresAt.IsZero() || c.now().Before(expiresAt) {
		return
	}
	c.logger.Info().Time("expires_at", expiresAt).Msg("session timed out")
	c.clear(ctx, CauseTimeout)
	c.metrics.IncInvalidation(CauseTimeout)
}

// clear removes the tokens and the persisted session, keeping space info.
// It reports whether there was anything to clear.
func (c *Controller) clear(ctx context.Context, cause string) bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.reset(ctx, cause)
}

// clearIfCurrent clears the session only while it is still generation gen
func (c *Controller) clearIfCurrent(ctx context.Context, gen uint64, cause string) bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if !c.current(gen) {
		return false
	}
	return c.reset(ctx, cause)
}

// reset does the work of clear. Callers hold c.sessionMu.
func (c *Controller) reset(ctx context.Context, cause string) bool {
	c.mu.Lock()
	had := c.member != nil || !c.expiresAt.IsZero()
	c.member = nil
	c.bookings = nil
	c.verified = false
	c.expiresAt = time.Time{}
	c.generation++
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error().Err(err).Str("cause", cause).Msg("failed to clear tokens")
	}
	if c.storage != nil {
		if err := c.storage.Remove(ctx, MemberInfoKey, BookingsKey, SessionExpiryKey); err != nil {
			c.logger.Error().Err(err).Str("cause", cause).Msg("failed to clear persisted session")
		}
	}
	return had
}

// stale reports a signal published before the current session began
func (c *Controller) stale(sig invalidation.Signal) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !sig.At.IsZero() && sig.At.Before(c.notBefore)
}

// markStart moves notBefore forward to at. Signals carry the wall clock, so
// at must too. Callers hold c.mu.
func (c *Controller) markStart(at time.Time) {
	if at.After(c.notBefore) {
		c.notBefore = at
	}
}

// signingIn is called before a sign-in request, whose tokens are stored
// before the session is recorded
func (c *Controller) signingIn() {
	c.mu.Lock()
	c.markStart(time.Now())
	c.mu.Unlock()
}

// Logout ends the session in this tab and, through the storage, in every
// other tab of the same origin. Space info is kept.
func (c *Controller) Logout(ctx context.Context) {
	if c.clear(ctx, CauseLogout) {
		c.logger.Info().Msg("logged out")
	}
	c.notify()
}

// SetSession records a freshly authenticated session expiring expiresIn
// seconds from now. A nil bookings slice leaves the current bookings alone.
func (c *Controller) SetSession(ctx context.Context, member coworking.Member, bookings []coworking.Booking, expiresIn int, verified bool) error {
	member.Verified = verified
	expiresAt := c.now().Add(time.Duration(expiresIn) * time.Second)
	payload, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("[Controller SetSession] failed to encode member: %w", err)
	}

	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.member = &member
	c.verified = verified
	c.expiresAt = expiresAt
	if bookings != nil {
		c.bookings = append([]coworking.Booking(nil), bookings...)
	}
	c.generation++
	c.markStart(time.Now())
	c.mu.Unlock()

	c.persist(ctx, MemberInfoKey, string(payload))
	c.persist(ctx, SessionExpiryKey, expiresAt.Format(time.RFC3339))
	if bookings != nil {
		c.persistBookings(ctx, bookings)
	}
	c.notify()
	return nil
}

// SetBookings replaces the bookings of the current session and persists
// them. Without a session it does nothing.
func (c *Controller) SetBookings(ctx context.Context, bookings []coworking.Booking) {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()
	c.applyBookings(ctx, gen, bookings)
}

// applyBookings records bookings fetched for session generation gen. They
// are dropped when that session has since been cleared or replaced.
func (c *Controller) applyBookings(ctx context.Context, gen uint64, bookings []coworking.Booking) bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	c.mu.Lock()
	if c.closed || c.generation != gen || !c.authenticated(c.now()) {
		c.mu.Unlock()
		c.logger.Debug().Msg("dropping bookings of a session no longer current")
		return false
	}
	c.bookings = append([]coworking.Booking(nil), bookings...)
	c.mu.Unlock()
	c.persistBookings(ctx, bookings)
	return true
}

// SetSpaceInfo records the public info of the current space. It survives logout.
func (c *Controller) SetSpaceInfo(ctx context.Context, space tenants.SpaceInfo) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.space = &space
	c.mu.Unlock()

	payload, err := json.Marshal(space)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode space info")
		return
	}
	c.persist(ctx, tenants.SpaceInfoKey, string(payload))
}

// LoadSpaceInfo resolves slug through the directory and makes it the current space
func (c *Controller) LoadSpaceInfo(ctx context.Context, slug string) (*tenants.SpaceInfo, error) {
	if c.directory == nil {
		return nil, fmt.Errorf("[Controller LoadSpaceInfo] no tenant directory configured")
	}
	space, err := c.directory.Get(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("[Controller LoadSpaceInfo] %w", err)
	}

	c.mu.Lock()
	if !c.closed {
		copied := *space
		c.space = &copied
	}
	c.mu.Unlock()
	return space, nil
}

// RefreshBookings reloads today's bookings. It does nothing without an
// authenticated session. A failure keeps the current bookings and is
// returned for the caller to report; an unusable session is cleared.
func (c *Controller) RefreshBookings(ctx context.Context, slug string) error {
	c.mu.RLock()
	gen := c.generation
	ok := c.authenticated(c.now())
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	resp, err := c.api.GetBookings(ctx, slug)
	if err != nil {
		c.logger.Warn().Err(err).Str("tenant", slug).Msg("failed to refresh bookings")
		if apperrors.IsSessionExpired(err) {
			c.clearIfCurrent(ctx, gen, invalidation.CauseRefreshFailed)
		}
		return fmt.Errorf("[Controller RefreshBookings] %w", err)
	}
	c.applyBookings(ctx, gen, resp.Bookings)
	return nil
}

// current reports an open controller still holding session generation gen
func (c *Controller) current(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.generation == gen
}

// StartSession opens a guest session and records it
func (c *Controller) StartSession(ctx context.Context, slug string, req coworking.StartSessionRequest) (*coworking.StartSessionResponse, error) {
	c.signingIn()
	resp, err := c.api.StartSession(ctx, slug, req)
	if err != nil {
		return nil, fmt.Errorf("[Controller StartSession] %w", err)
	}
	member := resp.Member()
	if err := c.SetSession(ctx, member, nil, resp.ExpiresInSeconds(c.now()), member.Verified); err != nil {
		return nil, err
	}
	return resp, nil
}

// VerifyMagicLink completes an emailed verification and records the member session
func (c *Controller) VerifyMagicLink(ctx context.Context, slug, linkToken string) (*coworking.VerifyMagicLinkResponse, error) {
	c.signingIn()
	resp, err := c.api.VerifyMagicLink(ctx, slug, linkToken)
	if err != nil {
		return nil, fmt.Errorf("[Controller VerifyMagicLink] %w", err)
	}
	bookings := resp.Bookings
	if bookings == nil {
		bookings = []coworking.Booking{}
	}
	if err := c.SetSession(ctx, resp.Member, bookings, resp.ExpiresInSeconds(c.now()), resp.Member.Verified); err != nil {
		return nil, err
	}
	return resp, nil
}

// VerifyBooking verifies a booking reference and records the member session
func (c *Controller) VerifyBooking(ctx context.Context, slug string, req coworking.VerifyBookingRequest) (*coworking.VerifyBookingResponse, error) {
	c.signingIn()
	resp, err := c.api.VerifyBooking(ctx, slug, req)
	if err != nil {
		return nil, fmt.Errorf("[Controller VerifyBooking] %w", err)
	}
	bookings := []coworking.Booking{resp.Booking}
	if err := c.SetSession(ctx, resp.Member, bookings, resp.ExpiresInSeconds(c.now()), resp.Member.Verified); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Controller) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// IsAuthenticated reports a member present and an expiry still ahead
func (c *Controller) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated(c.now())
}

func (c *Controller) Member() *coworking.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.member == nil {
		return nil
	}
	m := *c.member
	return &m
}

func (c *Controller) Bookings() []coworking.Booking {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]coworking.Booking{}, c.bookings...)
}

func (c *Controller) SpaceInfo() *tenants.SpaceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.space == nil {
		return nil
	}
	s := *c.space
	return &s
}

func (c *Controller) IsVerified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verified
}

// SessionExpiresAt is zero when there is no session
func (c *Controller) SessionExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

// IsSessionExpired is true when there is no expiry or it has passed
func (c *Controller) IsSessionExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expired(c.now())
}

// MinutesUntilExpiry rounds the remaining time up to whole minutes
func (c *Controller) MinutesUntilExpiry() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.minutesLeft(c.now())
}

func (c *Controller) IsExpiringSoon() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiringSoon(c.now())
}

// SelectedBooking finds one of the current bookings by id
func (c *Controller) SelectedBooking(id string) (coworking.Booking, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.bookings {
		if b.ID == id {
			return b, true
		}
	}
	return coworking.Booking{}, false
}

func (c *Controller) AuthStatus() AuthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loading {
		return AuthStatus{Loading: true}
	}
	return AuthStatus{Authenticated: c.authenticated(c.now())}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	snap := Snapshot{
		Loading:            c.loading,
		Authenticated:      c.authenticated(now),
		Bookings:           append([]coworking.Booking{}, c.bookings...),
		Verified:           c.verified,
		ExpiresAt:          c.expiresAt,
		MinutesUntilExpiry: c.minutesLeft(now),
		ExpiringSoon:       c.expiringSoon(now),
	}
	if c.member != nil {
		m := *c.member
		snap.Member = &m
	}
	if c.space != nil {
		s := *c.space
		snap.SpaceInfo = &s
	}
	return snap
}

// helpers below expect c.mu to be held

func (c *Controller) expired(now time.Time) bool {
	return c.expiresAt.IsZero() || !now.Before(c.expiresAt)
}

func (c *Controller) authenticated(now time.Time) bool {
	return c.member != nil && !c.expired(now)
}

func (c *Controller) minutesLeft(now time.Time) int {
	if c.expired(now) {
		return 0
	}
	return int(math.Ceil(c.expiresAt.Sub(now).Minutes()))
}

func (c *Controller) expiringSoon(now time.Time) bool {
	return c.authenticated(now) && c.expiresAt.Sub(now) < c.soon
}

func (c *Controller) persist(ctx context.Context, key, value string) {
	if c.storage == nil {
		return
	}
	if err := c.storage.Set(ctx, key, value); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to persist session state")
	}
}

func (c *Controller) persistBookings(ctx context.Context, bookings []coworking.Booking) {
	payload, err := json.Marshal(bookings)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode bookings")
		return
	}
	c.persist(ctx, BookingsKey, string(payload))
}

// notify wakes the run loop so the ticker follows the expiry
func (c *Controller) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
