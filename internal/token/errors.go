package token

import "errors"

var (
	// ErrNoToken indicates no candidate token value was presented at all.
	ErrNoToken = errors.New("token: no token provided")
	// ErrInvalidToken signals that a candidate value was presented but
	// failed validation. The failing clause (unknown, revoked, wrong path,
	// expired, exhausted) is deliberately not distinguished so responses
	// cannot leak which check rejected the token.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrNotFound is returned by management lookups for unknown token IDs.
	ErrNotFound = errors.New("token: not found")
)
