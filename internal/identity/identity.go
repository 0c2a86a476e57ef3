// Package identity tracks who the client is currently acting as and
// notifies interested components when that changes. Components that branch
// on "is this a guest" subscribe to the bus instead of polling stored
// credentials.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity describes the current actor.
type Identity struct {
	UserID  string
	Name    string
	Email   string
	IsGuest bool
	Token   string
}

// FromToken recovers identity fields from the server-issued JWT without
// verifying the signature. Verification is the server's job; the client only
// needs the claims for display and for skipping a round-trip on a token
// that is already past its exp.
func FromToken(token string) (Identity, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}

	id := Identity{Token: token}
	if sub, err := claims.GetSubject(); err == nil {
		id.UserID = sub
	}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if isGuest, ok := claims["isGuest"].(bool); ok {
		id.IsGuest = isGuest
	}
	return id, nil
}

// TokenExpired reports whether the token's exp claim is already in the past.
// Tokens without an exp claim are treated as live.
func TokenExpired(token string, now time.Time) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
