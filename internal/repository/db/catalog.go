package db

import (
	"context"

	"github.com/zzenonn/zraid/internal/domain"
)

// Catalog stores one ObjectMetadata record per object name.
type Catalog interface {
	CreateMetadata(ctx context.Context, metadata domain.ObjectMetadata) (domain.ObjectMetadata, error)
	// GetMetadata returns an error wrapping ErrNotFound for unknown names.
	GetMetadata(ctx context.Context, name string) (domain.ObjectMetadata, error)
	ListMetadata(ctx context.Context) ([]domain.ObjectMetadata, error)
	DeleteMetadata(ctx context.Context, name string) error
}
