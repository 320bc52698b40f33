package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Pair is the token triple returned by session start, verification and
// refresh responses.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// Lifetime returns how long the access token lives from now. When the server
// omitted expires_in, the exp claim of a JWT access token is used instead.
func (p Pair) Lifetime(now time.Time) time.Duration {
	if p.ExpiresIn > 0 {
		return time.Duration(p.ExpiresIn) * time.Second
	}
	if exp, err := ExpiryFromJWT(p.AccessToken); err == nil && exp.After(now) {
		return exp.Sub(now)
	}
	return 0
}

// ExpiresInSeconds is Lifetime rounded down to whole seconds
func (p Pair) ExpiresInSeconds(now time.Time) int {
	return int(p.Lifetime(now) / time.Second)
}

// OAuth2 converts the pair into an oauth2 token expiring relative to now
func (p Pair) OAuth2(now time.Time) *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
	}
	if lifetime := p.Lifetime(now); lifetime > 0 {
		t.Expiry = now.Add(lifetime)
		t.ExpiresIn = int64(lifetime / time.Second)
	}
	return t
}

var ErrNoExpiry = errors.New("token has no exp claim")

// ExpiryFromJWT reads the exp claim of a JWT without verifying it. The client
// cannot verify server signatures; the value is only used as an expiry hint.
func ExpiryFromJWT(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}
