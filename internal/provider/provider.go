// Package provider creates best-effort backing sessions with the
// external identity provider. The bearer token minted by pkg/auth is
// authoritative either way; a provider session only unlocks the
// provider's row-level-security policies elsewhere in the system.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/heylo/heylo-auth/internal/domain"
)

var ErrDisabled = errors.New("identity provider sessions disabled")

// BackingSession is the non-authoritative secondary credential.
type BackingSession struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Sessions interface {
	CreateSession(ctx context.Context, identity *domain.Identity) (*BackingSession, error)
}

// Disabled is used when no provider is configured.
type Disabled struct{}

func (Disabled) CreateSession(ctx context.Context, identity *domain.Identity) (*BackingSession, error) {
	return nil, ErrDisabled
}
