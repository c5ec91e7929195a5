package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what the client can read out of its own bearer token.
type Identity struct {
	UserID    int64
	UserName  string
	ExpiresAt time.Time // zero if the token carries no expiry
}

// TokenInspector decodes bearer tokens client-side without verifying the
// signature. Verification is the server's job; the client only needs the
// subject (for whisper self-filtering) and the expiry (to avoid presenting
// a token that is already dead).
type TokenInspector struct {
	parser *jwt.Parser
}

func NewTokenInspector() *TokenInspector {
	return &TokenInspector{parser: jwt.NewParser()}
}

// Inspect extracts the identity claims from a bearer token.
func (ti *TokenInspector) Inspect(tokenStr string) (*Identity, error) {
	token, _, err := ti.parser.ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenMalformed
	}

	id := &Identity{}

	switch sub := claims["sub"].(type) {
	case string:
		uid, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return nil, errors.New("token subject is not a user id")
		}
		id.UserID = uid
	case float64:
		id.UserID = int64(sub)
	default:
		return nil, errors.New("token has no subject")
	}

	if name, ok := claims["name"].(string); ok {
		id.UserName = name
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

// Expired reports whether the token's expiry, if present, has passed.
func (ti *TokenInspector) Expired(tokenStr string, now time.Time) bool {
	id, err := ti.Inspect(tokenStr)
	if err != nil {
		return true
	}
	if id.ExpiresAt.IsZero() {
		return false
	}
	return now.After(id.ExpiresAt)
}
