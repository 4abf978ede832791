// Package token implements access tokens and their bbolt-backed store. A
// token authorizes exactly one canonical protected path and may carry an
// expiry time and a maximum use count; the store performs validation and
// usage accounting in a single write transaction so concurrent requests
// cannot over-consume a limited token.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// secretBytes is the number of random bytes behind each token secret.
const secretBytes = 32

// AccessToken grants time/use-limited access to one protected path.
type AccessToken struct {
	// ID identifies the token for management operations. The secret is
	// never used as an identifier outside validation.
	ID string `json:"id"`

	// Description is free-form text for administrators.
	Description string `json:"description"`

	// Path is the canonical pattern string this token authorizes, exactly
	// as produced by the route registry, parameter placeholders included.
	Path string `json:"path"`

	// Token is the secret credential presented by clients.
	Token string `json:"token"`

	// IsValid is cleared when the token is revoked.
	IsValid bool `json:"is_valid"`

	// ExpiresAt, when set, is the instant the token stops working.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// MaxUses, when set, caps the number of successful validations.
	MaxUses *uint `json:"max_uses,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	TimesAccessed uint       `json:"times_accessed"`
	LastAccessed  *time.Time `json:"last_accessed,omitempty"`
}

// New creates a token for the given canonical path with a freshly generated
// secret.
func New(description, path string, expiresAt *time.Time, maxUses *uint) *AccessToken {
	return &AccessToken{
		ID:          uuid.NewString(),
		Description: description,
		Path:        path,
		Token:       GenerateSecret(),
		IsValid:     true,
		ExpiresAt:   expiresAt,
		MaxUses:     maxUses,
		CreatedAt:   time.Now(),
	}
}

// GenerateSecret returns a URL-safe secret backed by 32 bytes from the
// cryptographically secure random source.
func GenerateSecret() string {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; a broken random
		// source is not something to limp past.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// usableAt reports whether the token passes every validity clause at the
// given instant: not revoked, not expired, not exhausted.
func (t *AccessToken) usableAt(now time.Time) bool {
	if !t.IsValid {
		return false
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
		return false
	}
	if t.MaxUses != nil && t.TimesAccessed >= *t.MaxUses {
		return false
	}
	return true
}

// Exhausted reports whether the token's use count has reached its cap.
func (t *AccessToken) Exhausted() bool {
	return t.MaxUses != nil && t.TimesAccessed >= *t.MaxUses
}

// Expired reports whether the token's expiry has passed at the given
// instant.
func (t *AccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}
