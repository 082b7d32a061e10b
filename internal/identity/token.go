package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/debenture/internal/bond"
)

const callerTokenType = "caller"

// CallerClaims are the JWT claims of a caller session token. The subject is
// the caller address the engine authorizes against.
type CallerClaims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
	Type    string `json:"type"`
}

// CallerTokenIssuer issues and verifies caller session JWTs signed with a
// shared HMAC secret.
type CallerTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewCallerTokenIssuer creates a CallerTokenIssuer.
//
//	secret: HS256 signing key; must not be empty.
//	issuer: The "iss" claim value.
//	ttl: Token lifetime (default: 1 hour).
func NewCallerTokenIssuer(secret []byte, issuer string, ttl time.Duration) (*CallerTokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("caller token secret is empty")
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	return &CallerTokenIssuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue creates a signed caller token for address.
func (c *CallerTokenIssuer) Issue(address bond.Address) (string, time.Time, error) {
	now := c.now().UTC()
	expires := now.Add(c.ttl)
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   string(address),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.New().String(),
		},
		Address: string(address),
		Type:    callerTokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign caller token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses and validates a caller token, returning its claims.
func (c *CallerTokenIssuer) Verify(tokenStr string) (*CallerClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&CallerClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify caller token: %w", err)
	}
	claims, ok := token.Claims.(*CallerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid caller token claims")
	}
	if claims.Type != callerTokenType || claims.Address == "" || claims.Address != claims.Subject {
		return nil, fmt.Errorf("not a caller session token")
	}
	return claims, nil
}
