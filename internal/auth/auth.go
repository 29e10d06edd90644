// Package auth guards the bridge command surface.
//
// A debug monitor has no authentication of its own; anyone who can
// reach its port owns the console. The bridge re-exposes that port
// over HTTP, so it gets a minimal gate: one shared token, compared in
// constant time. Policy and storage stay out.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates a presented token.
type Validator interface {
	Validate(token string) error
}

// SharedToken accepts exactly one token. An empty stored token denies
// everything; turning the gate off is the caller's decision, not a
// token value.
type SharedToken struct {
	Token string
}

func (s SharedToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Bearer extracts the token from an Authorization header value. The
// scheme comparison is case-insensitive per RFC 7235.
func Bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
