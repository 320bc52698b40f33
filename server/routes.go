package server

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-coworking-session/coworking"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Per-IP request limits per minute
const (
	startSessionLimit  = 5
	verifyEmailLimit   = 3
	verifyBookingLimit = 5
	rateLimitWindow    = time.Minute
)

const RouteMetrics = "/metrics"

func (s *Server) initRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RecoverMiddleware)
	r.Use(s.LoggingMiddleware)
	r.Use(s.MetricsMiddleware)
	r.Use(s.CorsMiddleware)

	if s.gatherer != nil {
		r.Handle(RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Public
	r.Get(coworking.RouteSpace, s.SpaceInfoHandler())
	r.With(s.RateLimit("start-session", startSessionLimit)).Post(coworking.RouteStartSession, s.StartSessionHandler())
	r.With(s.RateLimit("verify-email", verifyEmailLimit)).Post(coworking.RouteVerifyEmail, s.VerifyEmailHandler())
	r.Get(coworking.RouteVerify, s.VerifyMagicLinkHandler())
	r.With(s.RateLimit("verify-booking", verifyBookingLimit)).Post(coworking.RouteVerifyBooking, s.VerifyBookingHandler())
	r.Post(coworking.RouteRefresh, s.RefreshHandler())

	// Member
	r.Group(func(r chi.Router) {
		r.Use(s.RequireMember)
		r.Get(coworking.RouteBookings, s.BookingsHandler())
		r.Post(coworking.RouteOrders, s.CreateOrderHandler())
		r.Get(coworking.RouteOrders, s.ListOrdersHandler())
		r.Get(coworking.RouteOrder, s.GetOrderHandler())
	})
}
