package server

import (
	"errors"
	"net/http"
	"strings"

	"molt-mart/internal/config"
)

// ErrUnauthorized means the request carried no valid credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Seller bool
}

// Authenticator resolves request credentials to a caller identity.
// External identity providers live behind this interface; the built-in
// implementation is a static token table from configuration.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// StaticAuthenticator authenticates bearer tokens against a fixed table.
type StaticAuthenticator struct {
	identities map[string]Identity
}

var _ Authenticator = (*StaticAuthenticator)(nil)

// NewStaticAuthenticator builds an authenticator from configured API keys.
func NewStaticAuthenticator(keys []config.APIKey) *StaticAuthenticator {
	identities := make(map[string]Identity, len(keys))
	for _, k := range keys {
		identities[k.Token] = Identity{UserID: k.UserID, Seller: k.Seller}
	}
	return &StaticAuthenticator{identities: identities}
}

func (a *StaticAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		return nil, ErrUnauthorized
	}
	id, ok := a.identities[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &id, nil
}
