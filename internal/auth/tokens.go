package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens signs and verifies HS256 access tokens. Tokens signed with the
// alternate secret are still accepted so the primary secret can be rotated.
type Tokens struct {
	secret []byte
	alt    []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens builds a token issuer. alt may be empty.
func NewTokens(secret, alt string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	t := &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
	if alt != "" {
		t.alt = []byte(alt)
	}
	return t
}

// Issue signs a token for u and returns it with its expiry.
func (t *Tokens) Issue(u *User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		UserID:    u.ID,
		CompanyID: u.CompanyID,
		Role:      u.Role,
		Name:      u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses raw and returns its claims.
func (t *Tokens) Verify(raw string) (*Claims, error) {
	claims, err := t.parse(raw, t.secret)
	if err != nil && t.alt != nil && errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		claims, err = t.parse(raw, t.alt)
	}
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (t *Tokens) parse(raw string, key []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
