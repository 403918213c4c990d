package repository

import (
	"context"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

// PromotionFilter defines filter criteria for listing promotions.
type PromotionFilter struct {
	Active  *bool
	Page    int
	PerPage int
}

// PromotionRepository defines the interface for promotion persistence operations.
type PromotionRepository interface {
	// Create inserts a new promotion into the store.
	Create(ctx context.Context, p *domain.PromotionDefinition) error

	// GetByID retrieves a promotion by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.PromotionDefinition, error)

	// GetByCode retrieves a promotion by its normalized code.
	GetByCode(ctx context.Context, code string) (*domain.PromotionDefinition, error)

	// List returns promotions matching the given filter along with the total count.
	List(ctx context.Context, filter PromotionFilter) ([]domain.PromotionDefinition, int, error)

	// Update modifies an existing promotion. CurrentUsage is never written here.
	Update(ctx context.Context, p *domain.PromotionDefinition) error

	// RecordUsage increments the usage counter, refusing to pass MaxUsesTotal,
	// and stores the audit row in the same transaction.
	RecordUsage(ctx context.Context, usage *domain.PromotionUsage) error

	// ListUsages returns the usage audit trail of one promotion, newest first.
	ListUsages(ctx context.Context, promotionID string, page, perPage int) ([]domain.PromotionUsage, int, error)
}

// CatalogProvider hands the engine every configured promotion in one batch,
// targets and free-product lists already resolved.
type CatalogProvider interface {
	ListCatalog(ctx context.Context) ([]domain.PromotionDefinition, error)
}
