package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-coworking-session/token"
	"github.com/stretchr/testify/require"
)

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "member-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return raw
}

func TestPairLifetimeFromExpiresIn(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	p := token.Pair{AccessToken: "opaque", RefreshToken: "r1", ExpiresIn: 3600}

	require.Equal(t, time.Hour, p.Lifetime(now))

	tok := p.OAuth2(now)
	require.Equal(t, now.Add(time.Hour), tok.Expiry)
	require.Equal(t, "r1", tok.RefreshToken)
}

func TestPairLifetimeFallsBackToJWTExpiry(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	p := token.Pair{AccessToken: signedJWT(t, now.Add(30*time.Minute))}

	require.Equal(t, 30*time.Minute, p.Lifetime(now))
	require.Equal(t, 1800, p.ExpiresInSeconds(now))
}

func TestPairLifetimeUnknown(t *testing.T) {
	now := time.Now()
	require.Zero(t, token.Pair{AccessToken: "opaque"}.Lifetime(now))
	require.Zero(t, token.Pair{AccessToken: signedJWT(t, now.Add(-time.Minute))}.Lifetime(now))
}

func TestExpiryFromJWTWithoutExp(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = token.ExpiryFromJWT(raw)
	require.ErrorIs(t, err, token.ErrNoExpiry)
}
