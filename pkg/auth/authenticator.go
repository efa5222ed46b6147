package auth

import (
	"errors"
	"net/http"
	"strings"
)

var ErrMissingToken = errors.New("missing token")

// TokenAuthenticator validates a bearer credential presented on a request and
// produces the authenticated identity. It is used both by the websocket
// handshake and by the REST middleware.
type TokenAuthenticator struct {
	secret []byte
}

func NewTokenAuthenticator(secret []byte) *TokenAuthenticator {
	return &TokenAuthenticator{secret: secret}
}

// Authenticate extracts the credential from the Authorization header or,
// for websocket handshakes where headers are awkward for browser clients,
// from the token query parameter.
func (a *TokenAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	claims, err := VerifyToken(token, a.secret)
	if err != nil {
		return Identity{}, err
	}

	identity := Identity{ID: claims.UserID, Role: claims.UserType, Name: claims.FullName}
	if identity.ID == "" || !identity.Role.Valid() {
		return Identity{}, ErrTokenInvalid
	}

	return identity, nil
}

func tokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return r.URL.Query().Get("token")
}
