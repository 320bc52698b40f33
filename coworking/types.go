// Package coworking is the client of the coworking member API: request and
// response types, the authenticated request executor and the endpoint calls.
package coworking

import (
	"time"

	"github.com/jrsteele09/go-coworking-session/token"
)

// Member is the profile of the person holding a session. Verified is set for
// members confirmed against the space's member directory, as opposed to
// guests who only gave a name and email.
type Member struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	MemberID string `json:"memberId,omitempty"`
	Verified bool   `json:"isOfficeRnDVerified"`
}

// Booking is a room booking of the member for today
type Booking struct {
	ID                  string    `json:"id"`
	Reference           string    `json:"reference"`
	RoomLocationDetails string    `json:"roomLocationDetails"`
	StartTime           time.Time `json:"startTime"`
	EndTime             time.Time `json:"endTime"`
}

type StartSessionRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type StartSessionResponse struct {
	token.Pair
	Email    string `json:"email"`
	Name     string `json:"name"`
	Verified bool   `json:"isOfficeRnDVerified"`
}

// Member returns the profile carried by the response
func (r *StartSessionResponse) Member() Member {
	return Member{Email: r.Email, Name: r.Name, Verified: r.Verified}
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
}

// VerifyEmailResponse always reports success so callers cannot tell which
// emails belong to members.
type VerifyEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type VerifyMagicLinkResponse struct {
	token.Pair
	Member   Member    `json:"member"`
	Bookings []Booking `json:"bookings"`
}

type VerifyBookingRequest struct {
	BookingReference string `json:"bookingReference"`
	Email            string `json:"email"`
}

type VerifyBookingResponse struct {
	token.Pair
	Member  Member  `json:"member"`
	Booking Booking `json:"booking"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type GetBookingsResponse struct {
	Bookings []Booking `json:"bookings"`
	// Message explains an empty list for guest sessions
	Message string `json:"message,omitempty"`
}

type MenuItemAddon struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	GroupTitle string `json:"groupTitle,omitempty"`
}

type MenuItem struct {
	MenuItemID     string          `json:"menuItemId"`
	Quantity       int             `json:"quantity"`
	SelectedAddons []MenuItemAddon `json:"selectedAddons,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

type RestaurantOrder struct {
	RestaurantID        string     `json:"restaurantId"`
	MenuItems           []MenuItem `json:"menuItems"`
	SpecialInstructions string     `json:"specialInstructions,omitempty"`
}

type CreateOrderRequest struct {
	DeliveryAddress     string            `json:"deliveryAddress"`
	BookingID           string            `json:"bookingId,omitempty"`
	BookingReference    string            `json:"bookingReference,omitempty"`
	RoomLocation        string            `json:"roomLocation,omitempty"`
	CustomerPhone       string            `json:"customerPhone,omitempty"`
	OrderItems          []RestaurantOrder `json:"orderItems"`
	SpecialInstructions string            `json:"specialInstructions,omitempty"`
	ScheduledFor        string            `json:"scheduledFor,omitempty"`
	ScheduledTime       string            `json:"scheduledTime"`
}

type CreateOrderTotal struct {
	Subtotal    float64 `json:"subtotal"`
	DeliveryFee float64 `json:"deliveryFee"`
	ServiceFee  float64 `json:"serviceFee"`
	Total       float64 `json:"total"`
}

type CreateOrderResponse struct {
	OrderID           string           `json:"orderId"`
	Status            string           `json:"status"`
	Total             CreateOrderTotal `json:"total"`
	DeliveryAddress   string           `json:"deliveryAddress"`
	EstimatedDelivery string           `json:"estimatedDelivery"`
}

type OrderSummary struct {
	ID                  string    `json:"id"`
	Status              string    `json:"status"`
	BookingReference    *string   `json:"bookingReference"`
	RoomLocationDetails *string   `json:"roomLocationDetails"`
	Total               float64   `json:"total"`
	CreatedAt           time.Time `json:"createdAt"`
}

type GetOrdersResponse struct {
	Orders []OrderSummary `json:"orders"`
}

type OrderTotal struct {
	Subtotal    float64 `json:"subtotal"`
	DeliveryFee float64 `json:"deliveryFee"`
	Total       float64 `json:"total"`
}

type GetOrderDetailResponse struct {
	OrderID         string     `json:"orderId"`
	Status          string     `json:"status"`
	DeliveryAddress string     `json:"deliveryAddress"`
	Total           OrderTotal `json:"total"`
	CreatedAt       time.Time  `json:"createdAt"`
}
