package main

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-coworking-session/coworking"
	apperrors "github.com/jrsteele09/go-coworking-session/internal/errors"
	"github.com/urfave/cli/v2"
)

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "space",
			Usage:  "Show the public info of the space",
			Action: withSession(spaceAction),
		},
		{
			Name:  "start-session",
			Usage: "Start a guest session",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "email", Required: true},
				&cli.StringFlag{Name: "name", Required: true},
			},
			Action: withSession(startSessionAction),
		},
		{
			Name:  "magic-link",
			Usage: "Email a verification link to a member",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "email", Required: true},
			},
			Action: withSession(magicLinkAction),
		},
		{
			Name:  "verify",
			Usage: "Verify the token of an emailed link",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "token", Required: true},
			},
			Action: withSession(verifyAction),
		},
		{
			Name:  "verify-booking",
			Usage: "Sign in with a booking reference",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "reference", Required: true},
				&cli.StringFlag{Name: "email", Required: true},
			},
			Action: withSession(verifyBookingAction),
		},
		{
			Name:   "bookings",
			Usage:  "Refresh and list today's bookings",
			Action: withSession(bookingsAction),
		},
		{
			Name:   "orders",
			Usage:  "List orders",
			Action: withSession(ordersAction),
		},
		{
			Name:  "order",
			Usage: "Show one order",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Required: true},
			},
			Action: withSession(orderAction),
		},
		{
			Name:   "status",
			Usage:  "Show the current session",
			Action: withSession(statusAction),
		},
		{
			Name:   "logout",
			Usage:  "End the session",
			Action: withSession(logoutAction),
		},
	}
}

func spaceAction(c *cli.Context, s *session) error {
	slug, err := s.space()
	if err != nil {
		return err
	}
	space, err := s.ctrl.LoadSpaceInfo(c.Context, slug)
	if err != nil {
		return err
	}
	return printJSON(space)
}

func startSessionAction(c *cli.Context, s *session) error {
	slug, err := s.space()
	if err != nil {
		return err
	}
	req := coworking.StartSessionRequest{Email: c.String("email"), Name: c.String("name")}
	if err := req.Validate(); err != nil {
		return err
	}
	if _, err := s.ctrl.StartSession(c.Context, slug, req); err != nil {
		return err
	}
	return printStatus(s)
}

func magicLinkAction(c *cli.Context, s *session) error {
	slug, err := s.space()
	if err != nil {
		return err
	}
	resp, err := s.client.SendMagicLink(c.Context, slug, coworking.VerifyEmailRequest{Email: c.String("email")})
	if err != nil {
		return err
	}
	fmt.Println(resp.Message)
	return nil
}

func verifyAction(c *cli.Context, s *session) error {
	slug, err := s.space()
	if err != nil {
		return err
	}
	if _, err := s.ctrl.VerifyMagicLink(c.Context, slug, c.String("token")); err != nil {
		return err
	}
	return printStatus(s)
}

func verifyBookingAction(c *cli.Context, s *session) error {
	slug, err := s.space()
	if err != nil {
		return err
	}
	req := coworking.VerifyBookingRequest{BookingReference: c.String("reference"), Email: c.String("email")}
	if err := req.Validate(); err != nil {
		return err
	}
	if _, err := s.ctrl.VerifyBooking(c.Context, slug, req); err != nil {
		return err
	}
	return printStatus(s)
}

func bookingsAction(c *cli.Context, s *session) error {
	slug, err := s.space()
	if err != nil {
		return err
	}
	if !s.ctrl.IsAuthenticated() {
		return apperrors.NewSessionExpired("not signed in")
	}
	if err := s.ctrl.RefreshBookings(c.Context, slug); err != nil {
		return err
	}
	return printJSON(s.ctrl.Bookings())
}

func ordersAction(c *cli.Context, s *session) error {
	slug, err := s.space()
	if err != nil {
		return err
	}
	resp, err := s.client.GetOrders(c.Context, slug)
	if err != nil {
		return err
	}
	return printJSON(resp.Orders)
}

func orderAction(c *cli.Context, s *session) error {
	slug, err := s.space()
	if err != nil {
		return err
	}
	resp, err := s.client.GetOrder(c.Context, slug, c.String("id"))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func statusAction(_ *cli.Context, s *session) error {
	return printStatus(s)
}

func logoutAction(c *cli.Context, s *session) error {
	s.ctrl.Logout(c.Context)
	fmt.Println("Logged out")
	return nil
}

type status struct {
	Space              string              `json:"space,omitempty"`
	Authenticated      bool                `json:"authenticated"`
	Verified           bool                `json:"verified"`
	Member             *coworking.Member   `json:"member,omitempty"`
	Bookings           []coworking.Booking `json:"bookings"`
	ExpiresAt          *time.Time          `json:"expiresAt,omitempty"`
	MinutesUntilExpiry int                 `json:"minutesUntilExpiry"`
	ExpiringSoon       bool                `json:"expiringSoon"`
}

func printStatus(s *session) error {
	snap := s.ctrl.Snapshot()
	out := status{
		Space:              s.slug,
		Authenticated:      snap.Authenticated,
		Verified:           snap.Verified,
		Member:             snap.Member,
		Bookings:           snap.Bookings,
		MinutesUntilExpiry: snap.MinutesUntilExpiry,
		ExpiringSoon:       snap.ExpiringSoon,
	}
	if !snap.ExpiresAt.IsZero() {
		out.ExpiresAt = &snap.ExpiresAt
	}
	return printJSON(out)
}
