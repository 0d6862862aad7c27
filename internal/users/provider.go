package users

import (
	"context"

	"github.com/gatewarden/gatewarden/internal/guard"
)

// Provider adapts the user service to the guard registry.
type Provider struct {
	service *Service
}

// NewProvider constructs a Provider.
func NewProvider(service *Service) *Provider {
	return &Provider{service: service}
}

// FindActor implements guard.Provider.
func (p *Provider) FindActor(ctx context.Context, id int64) (guard.Actor, error) {
	return p.service.Find(ctx, id)
}
