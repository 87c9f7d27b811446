package port

import (
	"context"

	"github.com/rl1809/import-export/internal/core/domain"
)

type CatalogRepository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// ListLatestProducts returns up to limit products, newest first
	ListLatestProducts(ctx context.Context, limit int) ([]domain.Product, error)

	// SearchProducts matches text case-insensitively anywhere in the name
	SearchProducts(ctx context.Context, text string) ([]domain.Product, error)

	// GetProduct returns domain.ErrNotFound for unknown ids
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	ListProductsByOwner(ctx context.Context, ownerID string) ([]domain.Product, error)

	CreateProduct(ctx context.Context, product domain.Product) error

	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.UpdateResult, error)

	DeleteProduct(ctx context.Context, id string) (domain.DeleteResult, error)

	// CommitTransfer decrements the product's quantity and appends the transfer
	// in one atomic unit, only if the current quantity covers it. The returned
	// transfer carries the product snapshot; the int is the remaining quantity.
	CommitTransfer(ctx context.Context, transfer domain.Transfer) (domain.Transfer, int, error)

	ListTransfersByUser(ctx context.Context, userID string) ([]domain.Transfer, error)

	ListTransfersByProduct(ctx context.Context, productID string) ([]domain.Transfer, error)

	// DeleteTransfer removes one ledger entry. With replenish set the
	// transferred quantity is returned to the product in the same unit.
	DeleteTransfer(ctx context.Context, id string, replenish bool) (domain.DeleteResult, error)

	// DeleteUserTransfers removes every transfer a user drew from a product.
	DeleteUserTransfers(ctx context.Context, productID, userID string, replenish bool) (domain.DeleteResult, error)

	Ping(ctx context.Context) error
}
