package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-coworking-session/coworking"
	"github.com/jrsteele09/go-coworking-session/server/authflowrepo"
	"github.com/jrsteele09/go-coworking-session/server/loginsession"
	"github.com/jrsteele09/go-coworking-session/tenants"
	"github.com/jrsteele09/go-coworking-session/token"
	"github.com/jrsteele09/go-coworking-session/users"
)

const (
	refreshTokenTTL = 7 * 24 * time.Hour
	magicLinkTTL    = 15 * time.Minute

	// mock pricing
	unitPrice      = 8.50
	deliveryFee    = 2.50
	serviceFeeRate = 0.05

	verifyEmailMessage = "If this email belongs to a member, a verification link has been sent."
	guestBookingsMsg   = "Bookings are only available for verified members"
)

type order struct {
	id        string
	email     string
	request   coworking.CreateOrderRequest
	status    string
	subtotal  float64
	createdAt time.Time
}

func (o *order) total() float64 {
	return round2(o.subtotal + deliveryFee + o.subtotal*serviceFeeRate)
}

func (s *Server) SpaceInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		space, ok := s.space(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, space)
	}
}

func (s *Server) StartSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		space, ok := s.space(w, r)
		if !ok {
			return
		}

		var req coworking.StartSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := req.Validate(); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		// guests are never verified, even when the email matches a member
		guest := &users.User{
			Email:     users.NormalizeEmail(req.Email),
			Name:      strings.TrimSpace(req.Name),
			SpaceSlug: space.Slug,
		}
		if existing, err := s.members.GetByEmail(space.Slug, req.Email); err == nil {
			guest.ID = existing.ID
		}

		pair, err := s.openSession(space.Slug, guest)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, coworking.StartSessionResponse{
			Pair:  pair,
			Email: guest.Email,
			Name:  guest.Name,
		})
	}
}

func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		space, ok := s.space(w, r)
		if !ok {
			return
		}

		var req coworking.VerifyEmailRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if member, err := s.members.GetByEmail(space.Slug, req.Email); err == nil && member.Verified {
			now := NowTimeFunc()
			linkToken := uuid.New().String()
			err := s.magicLinks.Upsert(linkToken, &authflowrepo.MagicLink{
				TenantID:  space.Slug,
				Email:     users.NormalizeEmail(member.Email),
				CreatedAt: now,
				ExpiresAt: now.Add(magicLinkTTL),
			})
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			// stands in for the email
			s.logger.Debug().Str("tenant", space.Slug).Str("link", coworking.SpacePath(coworking.RouteVerify, space.Slug)+"?token="+linkToken).Msg("magic link issued")
		}

		writeJSON(w, http.StatusOK, coworking.VerifyEmailResponse{Success: true, Message: verifyEmailMessage})
	}
}

func (s *Server) VerifyMagicLinkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		space, ok := s.space(w, r)
		if !ok {
			return
		}

		linkToken := r.URL.Query().Get("token")
		link, err := s.magicLinks.Get(linkToken)
		if err != nil || link.TenantID != space.Slug || !NowTimeFunc().Before(link.ExpiresAt) {
			writeMessage(w, http.StatusBadRequest, "Invalid or expired verification link")
			return
		}
		_ = s.magicLinks.Delete(linkToken)

		member, err := s.members.GetByEmail(space.Slug, link.Email)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid or expired verification link")
			return
		}

		pair, err := s.openSession(space.Slug, member)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, coworking.VerifyMagicLinkResponse{
			Pair:     pair,
			Member:   member.Member(),
			Bookings: todaysBookings(member.Bookings),
		})
	}
}

func (s *Server) VerifyBookingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		space, ok := s.space(w, r)
		if !ok {
			return
		}

		var req coworking.VerifyBookingRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := req.Validate(); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		member, err := s.members.GetByEmail(space.Slug, req.Email)
		if err != nil || !member.Verified {
			writeMessage(w, http.StatusBadRequest, "Invalid booking reference or email")
			return
		}
		booking, found := member.BookingByReference(req.BookingReference)
		if !found {
			writeMessage(w, http.StatusBadRequest, "Invalid booking reference or email")
			return
		}

		pair, err := s.openSession(space.Slug, member)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, coworking.VerifyBookingResponse{
			Pair:    pair,
			Member:  member.Member(),
			Booking: booking,
		})
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		slug := chi.URLParam(r, "slug")

		var req coworking.RefreshRequest
		if !decodeBody(w, r, &req) {
			return
		}

		session, err := s.sessions.Get(slug, req.RefreshToken)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		_ = s.sessions.Delete(slug, req.RefreshToken)
		if !NowTimeFunc().Before(session.ExpiresAt) {
			writeMessage(w, http.StatusUnauthorized, "Refresh token expired")
			return
		}

		// rotate: the presented refresh token is now spent
		pair, err := s.issue(session)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) BookingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		if !claims.Verified {
			writeJSON(w, http.StatusOK, coworking.GetBookingsResponse{Bookings: []coworking.Booking{}, Message: guestBookingsMsg})
			return
		}

		member, err := s.members.GetByEmail(claims.Space, claims.Email)
		if err != nil {
			writeJSON(w, http.StatusOK, coworking.GetBookingsResponse{Bookings: []coworking.Booking{}})
			return
		}
		writeJSON(w, http.StatusOK, coworking.GetBookingsResponse{Bookings: todaysBookings(member.Bookings)})
	}
}

func (s *Server) CreateOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())

		var req coworking.CreateOrderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := req.Validate(); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		o := &order{
			id:        uuid.New().String(),
			email:     claims.Email,
			request:   req,
			status:    "pending",
			createdAt: NowTimeFunc(),
		}
		for _, ro := range req.OrderItems {
			for _, item := range ro.MenuItems {
				o.subtotal += float64(item.Quantity) * unitPrice
			}
		}
		o.subtotal = round2(o.subtotal)

		s.ordersMu.Lock()
		s.orders[claims.Space] = append(s.orders[claims.Space], o)
		s.ordersMu.Unlock()

		writeJSON(w, http.StatusCreated, coworking.CreateOrderResponse{
			OrderID: o.id,
			Status:  o.status,
			Total: coworking.CreateOrderTotal{
				Subtotal:    o.subtotal,
				DeliveryFee: deliveryFee,
				ServiceFee:  round2(o.subtotal * serviceFeeRate),
				Total:       o.total(),
			},
			DeliveryAddress:   req.DeliveryAddress,
			EstimatedDelivery: estimatedDelivery(req, o.createdAt),
		})
	}
}

func (s *Server) ListOrdersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())

		s.ordersMu.RLock()
		defer s.ordersMu.RUnlock()

		summaries := []coworking.OrderSummary{}
		for _, o := range s.orders[claims.Space] {
			if o.email != claims.Email {
				continue
			}
			summary := coworking.OrderSummary{
				ID:        o.id,
				Status:    o.status,
				Total:     o.total(),
				CreatedAt: o.createdAt,
			}
			if o.request.BookingReference != "" {
				ref := o.request.BookingReference
				summary.BookingReference = &ref
			}
			if o.request.RoomLocation != "" {
				loc := o.request.RoomLocation
				summary.RoomLocationDetails = &loc
			}
			summaries = append(summaries, summary)
		}
		writeJSON(w, http.StatusOK, coworking.GetOrdersResponse{Orders: summaries})
	}
}

func (s *Server) GetOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		orderID := chi.URLParam(r, "orderID")

		s.ordersMu.RLock()
		defer s.ordersMu.RUnlock()

		for _, o := range s.orders[claims.Space] {
			if o.id != orderID || o.email != claims.Email {
				continue
			}
			writeJSON(w, http.StatusOK, coworking.GetOrderDetailResponse{
				OrderID:         o.id,
				Status:          o.status,
				DeliveryAddress: o.request.DeliveryAddress,
				Total: coworking.OrderTotal{
					Subtotal:    o.subtotal,
					DeliveryFee: deliveryFee,
					Total:       o.total(),
				},
				CreatedAt: o.createdAt,
			})
			return
		}
		writeMessage(w, http.StatusNotFound, "Order not found")
	}
}

// space resolves the slug URL parameter, writing a 404 when unknown
func (s *Server) space(w http.ResponseWriter, r *http.Request) (*tenants.SpaceInfo, bool) {
	space, err := s.spaces.Get(chi.URLParam(r, "slug"))
	if err != nil {
		if !errors.Is(err, tenants.ErrSpaceNotFound) {
			s.logger.Error().Err(err).Msg("failed to load space")
		}
		writeMessage(w, http.StatusNotFound, "Coworking space not found")
		return nil, false
	}
	return space, true
}

// openSession creates a server-side session for u and issues its first pair
func (s *Server) openSession(slug string, u *users.User) (token.Pair, error) {
	now := NowTimeFunc()
	userID := u.ID
	if userID == "" {
		userID = uuid.New().String()
	}
	return s.issue(loginsession.Session{
		TenantID:  slug,
		UserID:    userID,
		Email:     users.NormalizeEmail(u.Email),
		Name:      u.Name,
		Verified:  u.Verified,
		ExpiresAt: now.Add(refreshTokenTTL),
		CreatedAt: now,
	})
}

// issue stores session under a new refresh token and signs an access token
func (s *Server) issue(session loginsession.Session) (token.Pair, error) {
	refreshToken := uuid.New().String()
	if err := s.sessions.Upsert(session.TenantID, refreshToken, session); err != nil {
		return token.Pair{}, err
	}
	access, expiresIn, err := s.tokens.issue(session)
	if err != nil {
		return token.Pair{}, err
	}
	return token.Pair{AccessToken: access, RefreshToken: refreshToken, ExpiresIn: expiresIn}, nil
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeMessage(w, http.StatusInternalServerError, "Internal server error")
}

func todaysBookings(bookings []coworking.Booking) []coworking.Booking {
	now := NowTimeFunc()
	y, m, d := now.Date()
	out := []coworking.Booking{}
	for _, b := range bookings {
		by, bm, bd := b.StartTime.In(now.Location()).Date()
		if by == y && bm == m && bd == d {
			out = append(out, b)
		}
	}
	return out
}

func estimatedDelivery(req coworking.CreateOrderRequest, createdAt time.Time) string {
	day := createdAt.Format(time.DateOnly)
	if req.ScheduledFor != "" {
		if t, err := time.Parse(time.RFC3339, req.ScheduledFor); err == nil {
			day = t.Format(time.DateOnly)
		} else if t, err := time.Parse(time.DateOnly, req.ScheduledFor); err == nil {
			day = t.Format(time.DateOnly)
		}
	}
	return day + "T" + req.ScheduledTime + ":00"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    message,
	})
}
