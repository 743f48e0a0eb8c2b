// Package auth decides whether an incoming operation may proceed and which
// identity it runs as.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/marmos91/assetfiles/pkg/tokens"
)

var (
	// ErrMissingCredential is returned when identities exist but the caller
	// presented no bearer token.
	ErrMissingCredential = errors.New("missing bearer credential")

	// ErrInvalidCredential is returned when the presented token is unknown.
	ErrInvalidCredential = errors.New("invalid bearer credential")
)

// Policy tunes the gate.
type Policy struct {
	// ReadBypass lets GET and HEAD requests through without a credential.
	ReadBypass bool
}

// Decision is the outcome of a permitted authorization.
type Decision struct {
	// Identity is the resolved identity name. Empty for anonymous access.
	Identity string

	// Authenticated is true when a credential was checked and matched.
	Authenticated bool
}

// Anonymous reports whether the decision carries no identity.
func (d Decision) Anonymous() bool {
	return !d.Authenticated
}

// Gate authorizes operations against an identity table.
//
// A Gate holds no mutable state and is safe for concurrent use.
type Gate struct {
	table  tokens.Table
	policy Policy
}

// NewGate creates a Gate over table.
func NewGate(table tokens.Table, policy Policy) *Gate {
	return &Gate{table: table, policy: policy}
}

// Enabled reports whether any credential checking happens at all. An empty
// identity table disables the gate.
func (g *Gate) Enabled() bool {
	return !g.table.Empty()
}

// Policy returns the policy the gate was built with.
func (g *Gate) Policy() Policy {
	return g.policy
}

// Authorize decides whether an operation with the given HTTP method and
// bearer credential may proceed.
//
// The checks run in order:
//  1. an empty identity table permits everything anonymously
//  2. with ReadBypass, read methods are permitted anonymously
//  3. an empty credential fails with ErrMissingCredential
//  4. an unknown credential fails with ErrInvalidCredential
//  5. otherwise the operation runs as the credential's identity
func (g *Gate) Authorize(method, credential string) (Decision, error) {
	if g.table.Empty() {
		return Decision{}, nil
	}

	if g.policy.ReadBypass && IsRead(method) {
		return Decision{}, nil
	}

	if credential == "" {
		return Decision{}, ErrMissingCredential
	}

	name, ok := g.table.Lookup(credential)
	if !ok {
		return Decision{}, ErrInvalidCredential
	}

	return Decision{Identity: name, Authenticated: true}, nil
}

// IsRead reports whether method is a read-only retrieval.
func IsRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// ParseBearer extracts the token from an Authorization header value of the
// form "Bearer <token>". The scheme is matched case-insensitively. Any other
// form yields an empty string.
func ParseBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
