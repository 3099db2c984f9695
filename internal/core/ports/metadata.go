package ports

import (
	"context"

	"github.com/trustgrid/samlsp/internal/core/domain"
)

// MetadataResolver is the port interface for resolving IdP metadata.
type MetadataResolver interface {
	// Resolve returns the descriptor for a specific IdP by entity ID.
	// The resolver refreshes expired cache entries before answering.
	Resolve(ctx context.Context, entityID string) (*domain.IdPInfo, error)

	// Refresh reloads metadata from all configured sources.
	Refresh(ctx context.Context) error

	// Health returns the health status of the resolver.
	Health() domain.MetadataHealth
}
