package coworking

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-coworking-session/internal/errors"
)

// Limits enforced on session and order requests
const (
	MinNameLength                = 2
	MaxNameLength                = 100
	MinDeliveryAddressLength     = 10
	MaxDeliveryAddressLength     = 500
	MaxRoomLocationLength        = 200
	MaxOrderInstructionsLength   = 1000
	MaxRestaurantInstructionsLen = 500
	MaxRestaurantsPerOrder       = 10
	MaxMenuItemsPerRestaurant    = 50
)

var scheduledTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ValidationError describes the first rejected field of a request. It
// matches apperrors.ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrValidation
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (r StartSessionRequest) Validate() error {
	if !strings.Contains(r.Email, "@") {
		return invalid("a valid email is required")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(r.Name)); n < MinNameLength || n > MaxNameLength {
		return invalid("name must be between %d and %d characters", MinNameLength, MaxNameLength)
	}
	return nil
}

func (r VerifyBookingRequest) Validate() error {
	if strings.TrimSpace(r.BookingReference) == "" {
		return invalid("booking reference is required")
	}
	if !strings.Contains(r.Email, "@") {
		return invalid("a valid email is required")
	}
	return nil
}

// Validate checks the order against the limits the API accepts
func (r CreateOrderRequest) Validate() error {
	if n := utf8.RuneCountInString(r.DeliveryAddress); n < MinDeliveryAddressLength || n > MaxDeliveryAddressLength {
		return invalid("delivery address must be between %d and %d characters", MinDeliveryAddressLength, MaxDeliveryAddressLength)
	}
	if utf8.RuneCountInString(r.RoomLocation) > MaxRoomLocationLength {
		return invalid("room location must be at most %d characters", MaxRoomLocationLength)
	}
	if utf8.RuneCountInString(r.SpecialInstructions) > MaxOrderInstructionsLength {
		return invalid("special instructions must be at most %d characters", MaxOrderInstructionsLength)
	}
	if !scheduledTimePattern.MatchString(r.ScheduledTime) {
		return invalid("scheduled time must be HH:MM")
	}
	if len(r.OrderItems) == 0 || len(r.OrderItems) > MaxRestaurantsPerOrder {
		return invalid("an order must contain between 1 and %d restaurants", MaxRestaurantsPerOrder)
	}

	for i, ro := range r.OrderItems {
		if _, err := uuid.Parse(ro.RestaurantID); err != nil {
			return invalid("orderItems[%d]: restaurant id must be a UUID", i)
		}
		if utf8.RuneCountInString(ro.SpecialInstructions) > MaxRestaurantInstructionsLen {
			return invalid("orderItems[%d]: special instructions must be at most %d characters", i, MaxRestaurantInstructionsLen)
		}
		if len(ro.MenuItems) == 0 || len(ro.MenuItems) > MaxMenuItemsPerRestaurant {
			return invalid("orderItems[%d]: between 1 and %d menu items are required", i, MaxMenuItemsPerRestaurant)
		}
		for j, item := range ro.MenuItems {
			if _, err := uuid.Parse(item.MenuItemID); err != nil {
				return invalid("orderItems[%d].menuItems[%d]: menu item id must be a UUID", i, j)
			}
			if item.Quantity < 1 {
				return invalid("orderItems[%d].menuItems[%d]: quantity must be at least 1", i, j)
			}
		}
	}
	return nil
}
