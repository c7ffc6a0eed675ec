// Package auth authenticates callers of the list backend and models the
// client-side session state the list core depends on.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Method represents the authentication method used.
type Method string

const (
	// MethodNone indicates no authentication.
	MethodNone Method = "none"
	// MethodBasic indicates HTTP Basic authentication.
	MethodBasic Method = "basic"
	// MethodAPIKey indicates API key authentication.
	MethodAPIKey Method = "apikey"
	// MethodMulti indicates multi-method authentication.
	MethodMulti Method = "multi"
)

// Principal holds the authenticated identity of a request.
type Principal struct {
	Method  Method
	Subject string
}

// Authenticator validates a request and returns the caller's identity.
type Authenticator interface {
	Authenticate(r *http.Request) (*Principal, error)
	Method() Method
}

// Sentinel errors for authentication failures.
var (
	ErrUnauthenticated    = errors.New("unauthenticated: no credentials provided")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type contextKey string

const principalKey contextKey = "auth_principal"

// FromContext retrieves the Principal from the context.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// WithPrincipal stores the Principal in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// parsePairs splits "a:b,c:d" into a map. Only the first colon of each entry
// separates the pair, so values may contain further colons.
func parsePairs(kind, config string) (map[string]string, error) {
	trimmed := strings.TrimSpace(config)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: config must not be empty", kind)
	}

	pairs := make(map[string]string)
	for _, entry := range strings.Split(trimmed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		left, right, found := strings.Cut(entry, ":")
		left = strings.TrimSpace(left)
		right = strings.TrimSpace(right)
		if !found {
			return nil, fmt.Errorf("%s: invalid entry format, expected a:b", kind)
		}
		if left == "" || right == "" {
			return nil, fmt.Errorf("%s: entry parts must not be empty", kind)
		}
		pairs[left] = right
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%s: no valid entries found", kind)
	}
	return pairs, nil
}
