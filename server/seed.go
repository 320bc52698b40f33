package server

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-coworking-session/coworking"
	"github.com/jrsteele09/go-coworking-session/internal/utils"
	"github.com/jrsteele09/go-coworking-session/tenants"
	"github.com/jrsteele09/go-coworking-session/users"
)

// Demo data loaded by SeedDemo
const (
	DemoSpaceSlug        = "demo-space"
	DemoMemberEmail      = "member@example.com"
	DemoBookingReference = "BK-1001"
)

// SeedDemo loads one space with a verified member who has a booking today
func SeedDemo(spaces tenants.Repo, members users.UserRepo, now time.Time) error {
	err := spaces.Upsert(&tenants.SpaceInfo{
		Name:                 "Demo Coworking",
		Slug:                 DemoSpaceSlug,
		Address:              "221B Baker Street, London",
		DeliveryInstructions: utils.Ptr("Leave orders at the front desk"),
		OperatingHours:       &tenants.OperatingHours{Start: "08:00", End: "18:00"},
	})
	if err != nil {
		return fmt.Errorf("[server SeedDemo] failed to create space: %w", err)
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err = members.Upsert(&users.User{
		Email:     DemoMemberEmail,
		Name:      "Demo Member",
		SpaceSlug: DemoSpaceSlug,
		Verified:  true,
		Bookings: []coworking.Booking{{
			ID:                  "booking-1001",
			Reference:           DemoBookingReference,
			RoomLocationDetails: "Meeting Room 2, Floor 1",
			StartTime:           day.Add(9 * time.Hour),
			EndTime:             day.Add(17 * time.Hour),
		}},
	})
	if err != nil {
		return fmt.Errorf("[server SeedDemo] failed to create member: %w", err)
	}
	return nil
}
