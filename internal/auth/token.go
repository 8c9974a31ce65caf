package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"alrt/internal/config"
	"alrt/internal/types"
)

// TokenIssuer mints and verifies HS256 bearer tokens. The subject claim
// carries the user ID.
type TokenIssuer struct {
	secret   []byte
	lifetime time.Duration
	clock    types.Clock
}

// NewTokenIssuer creates a TokenIssuer from the auth configuration.
// If clock is nil, RealClock is used.
func NewTokenIssuer(cfg config.AuthConfig, clock types.Clock) *TokenIssuer {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &TokenIssuer{
		secret:   []byte(cfg.JWTSecret),
		lifetime: cfg.TokenLifetime,
		clock:    clock,
	}
}

// Issue signs a token for the given user ID.
func (t *TokenIssuer) Issue(userID string) (string, error) {
	now := t.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.lifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to sign token", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the user ID it names.
// Expired, malformed, and wrongly-signed tokens all map to the same
// invalid-token error.
func (t *TokenIssuer) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unexpected signing method", nil)
			}
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid or expired token", err)
	}
	if claims.Subject == "" {
		return "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "token has no subject", nil)
	}
	return claims.Subject, nil
}
