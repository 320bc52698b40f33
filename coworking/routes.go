package coworking

import (
	"net/url"
	"strings"
)

// Route patterns of the coworking member API. The placeholders use chi
// syntax so the mock server can mount them unchanged.
const (
	RouteSpace         = "/coworking/{slug}"
	RouteStartSession  = RouteSpace + "/start-session"
	RouteVerifyEmail   = RouteSpace + "/verify-email"
	RouteVerify        = RouteSpace + "/verify"
	RouteVerifyBooking = RouteSpace + "/verify-booking"
	RouteRefresh       = RouteSpace + "/refresh"
	RouteBookings      = RouteSpace + "/bookings"
	RouteOrders        = RouteSpace + "/orders"
	RouteOrder         = RouteOrders + "/{orderID}"
	refreshPathSuffix  = "/refresh"
	slugPlaceholder    = "{slug}"
	orderIDPlaceholder = "{orderID}"
)

// SpacePath fills the slug placeholder of route
func SpacePath(route, slug string) string {
	return strings.Replace(route, slugPlaceholder, url.PathEscape(slug), 1)
}

// OrderPath fills both placeholders of RouteOrder
func OrderPath(slug, orderID string) string {
	return strings.Replace(SpacePath(RouteOrder, slug), orderIDPlaceholder, url.PathEscape(orderID), 1)
}

// isRefreshURL reports whether rawURL targets the refresh endpoint
func isRefreshURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.Contains(rawURL, refreshPathSuffix)
	}
	return strings.HasSuffix(strings.TrimSuffix(u.Path, "/"), refreshPathSuffix)
}
