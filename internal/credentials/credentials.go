// Package credentials supplies the bearer token used against the remote
// messaging API. Storage of the token is owned by the operator; this package
// only reads it, and forgets it when the server rejects it.
package credentials

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNoCredential is returned when no token is available
var ErrNoCredential = errors.New("no credential available")

// Provider supplies a bearer token on demand
type Provider interface {
	// Token returns the current token or ErrNoCredential
	Token(ctx context.Context) (string, error)
	// Invalidate drops the cached token after the server rejected it
	Invalidate(ctx context.Context) error
}

// Static serves a fixed token until it is invalidated
type Static struct {
	mu    sync.RWMutex
	token string
}

// NewStatic creates a provider for a fixed token
func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token)}
}

// Token returns the token or ErrNoCredential
func (s *Static) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

// Invalidate forgets the token
func (s *Static) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

// Chain asks each provider in order and returns the first token found
type Chain []Provider

// Token returns the first available token
func (c Chain) Token(ctx context.Context) (string, error) {
	for _, p := range c {
		token, err := p.Token(ctx)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNoCredential) {
			return "", err
		}
	}
	return "", ErrNoCredential
}

// Invalidate invalidates every provider in the chain
func (c Chain) Invalidate(ctx context.Context) error {
	var errs []error
	for _, p := range c {
		if err := p.Invalidate(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
