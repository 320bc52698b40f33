// Package server is an in-memory implementation of the coworking member API.
// It backs the client in tests and local development, and exposes controls
// for forcing token expiry and revocation.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-coworking-session/internal/config"
	"github.com/jrsteele09/go-coworking-session/internal/metrics"
	"github.com/jrsteele09/go-coworking-session/server/authflowrepo"
	"github.com/jrsteele09/go-coworking-session/server/loginsession"
	"github.com/jrsteele09/go-coworking-session/tenants"
	"github.com/jrsteele09/go-coworking-session/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is the subset of settings the mock server reads
type Config interface {
	config.EnvConfig
	config.MockServerConfig
}

type Server struct {
	env      string
	router   chi.Router
	config   Config
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	spaces     tenants.Repo
	members    users.UserRepo
	sessions   loginsession.Repo
	magicLinks authflowrepo.Repo
	tokens     *tokenIssuer
	limiter    *slidingWindowLimiter

	ordersMu sync.RWMutex
	orders   map[string][]*order // space slug -> orders

	refreshCalls atomic.Int64
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request counts in m and serves g on /metrics
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

func New(cfg Config, spaces tenants.Repo, members users.UserRepo, opts ...Option) *Server {
	s := &Server{
		env:        cfg.GetEnv(),
		router:     chi.NewRouter(),
		config:     cfg,
		logger:     log.Logger,
		spaces:     spaces,
		members:    members,
		sessions:   loginsession.NewInMemoryLoginSessionRepo(),
		magicLinks: authflowrepo.NewInMemoryRepo(),
		tokens:     newTokenIssuer(cfg.GetJWTSecret(), cfg.GetAccessTokenTTL()),
		limiter:    newSlidingWindowLimiter(),
		orders:     make(map[string][]*order),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "mock-api").Logger()

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ExpireAccessTokens invalidates every access token issued so far and
// returns how many were affected. Refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() int {
	return s.tokens.revokeAll()
}

// RevokeRefreshTokens drops every member session server side
func (s *Server) RevokeRefreshTokens() int {
	return s.sessions.DeleteAll()
}

// RefreshCalls counts requests received on the refresh endpoint
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// LatestMagicLink returns the last verification link token emailed to email
func (s *Server) LatestMagicLink(slug, email string) (string, bool) {
	return s.magicLinks.Latest(slug, users.NormalizeEmail(email))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		displayMethod := fmt.Sprintf(" %-7s", method)
		if color, ok := methodColors[method]; ok {
			displayMethod = color + displayMethod + ResetColor
		} else {
			displayMethod = Gray + displayMethod + ResetColor
		}
		s.logger.Debug().Msgf("[%-19s] %s", displayMethod, strings.TrimSuffix(route, "/*"))
		return nil
	})
}
