package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrUnrecognizedToken = errors.New("unrecognized token")
)

// Claims are the JWT claims carried by a marketplace credential.
// The claim names match the tokens issued by the auth service.
type Claims struct {
	UserID   string `json:"userId"`
	UserType Role   `json:"user_type"`
	FullName string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

func NewClaims(identity Identity, exp time.Time) *Claims {
	return &Claims{
		UserID:   identity.ID,
		UserType: identity.Role,
		FullName: identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "african-farm-route",
		},
	}
}

// NewToken signs a credential for identity. Token issuance lives in the auth
// service; this is kept for tests and local tooling.
func NewToken(identity Identity, expiration time.Duration, secret []byte) (string, time.Time, error) {
	exp := time.Now().Add(expiration)
	claims := NewClaims(identity, exp)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(secret)
	if err != nil {
		return signed, exp, err
	}

	return signed, exp, nil
}

// VerifyToken checks the signature and expiry of token and returns its claims.
func VerifyToken(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_token, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case _token != nil && _token.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrUnrecognizedToken
	}
}
