package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("malformed session token")
	ErrExpired   = errors.New("session token expired")
)

// Claims is the self-describing session payload: who the bearer is,
// which phone they verified, and when the session was issued and
// expires. Tokens are HMAC-signed so claims are tamper-evident.
type Claims struct {
	Sub   string `json:"sub"`
	Phone string `json:"phone"`
	jwt.RegisteredClaims
}

// NewSessionToken mints a signed bearer token for identityID.
func NewSessionToken(identityID, phone, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Sub:   identityID,
		Phone: phone,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Audience:  []string{"heylo-api"},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseSessionToken decodes and verifies a bearer token. Expired tokens
// return ErrExpired; anything else that fails to decode or verify
// returns ErrMalformed.
func ParseSessionToken(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}
