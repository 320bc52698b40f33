package users

import (
	"strings"

	"github.com/jrsteele09/go-coworking-session/coworking"
)

// User is a person the coworking backend knows in one space. Verified users
// come from the space's member directory; everyone else is a guest.
type User struct {
	ID        string              `json:"id,omitempty"`
	Email     string              `json:"email,omitempty"`
	Name      string              `json:"name,omitempty"`
	SpaceSlug string              `json:"space,omitempty"`
	Verified  bool                `json:"verified,omitempty"`
	Bookings  []coworking.Booking `json:"bookings,omitempty"`
}

// NormalizeEmail is the form emails are compared in
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Member returns the profile handed to the client
func (u *User) Member() coworking.Member {
	return coworking.Member{
		Email:    u.Email,
		Name:     u.Name,
		MemberID: u.ID,
		Verified: u.Verified,
	}
}

// BookingByReference finds a booking by its reference, ignoring case
func (u *User) BookingByReference(reference string) (coworking.Booking, bool) {
	for _, b := range u.Bookings {
		if strings.EqualFold(b.Reference, strings.TrimSpace(reference)) {
			return b, true
		}
	}
	return coworking.Booking{}, false
}
