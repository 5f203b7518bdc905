// Package principal issues and verifies the session tokens that identify
// ledger owners on the authenticated API surface.
package principal

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims for an owner session token.
type Claims struct {
	jwt.RegisteredClaims
	OwnerID string `json:"owner_id"`
	Email   string `json:"email,omitempty"`
}

// Owner returns the owner id carried by the claims.
func (c *Claims) Owner() (uuid.UUID, error) {
	id, err := uuid.Parse(c.OwnerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed owner id in token: %w", err)
	}
	return id, nil
}

// TokenIssuer issues and verifies owner session tokens signed with HS256.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
//
//	issuerURL — The "iss" claim value; typically the service's base URL.
//	ttl        — Token lifetime (default: 24 hours).
func NewTokenIssuer(secret []byte, issuerURL string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{
		secret: secret,
		issuer: issuerURL,
		ttl:    ttl,
	}
}

// Issue creates a signed session token for owner.
func (t *TokenIssuer) Issue(owner uuid.UUID, email string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   owner.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		OwnerID: owner.String(),
		Email:   email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims on success.
func (t *TokenIssuer) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }
