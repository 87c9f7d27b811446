package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/import-export/internal/core/domain"
	"github.com/rl1809/import-export/internal/port"
)

type CatalogService struct {
	repo   port.CatalogRepository
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

func NewCatalogService(repo port.CatalogRepository, events port.EventPublisher, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		repo:   repo,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *CatalogService) ListAll(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *CatalogService) ListLatest(ctx context.Context, n int) ([]domain.Product, error) {
	if n <= 0 {
		return []domain.Product{}, nil
	}
	return s.repo.ListLatestProducts(ctx, n)
}

// Search matches text against product names; blank text returns everything.
func (s *CatalogService) Search(ctx context.Context, text string) ([]domain.Product, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.repo.ListProducts(ctx)
	}
	return s.repo.SearchProducts(ctx, text)
}

// GetByID returns the product together with its transfer ledger.
func (s *CatalogService) GetByID(ctx context.Context, id string) (*domain.ProductDetail, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	transfers, err := s.repo.ListTransfersByProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return domain.NewProductDetail(*product, transfers), nil
}

func (s *CatalogService) ListByOwner(ctx context.Context, ownerID string) ([]domain.Product, error) {
	return s.repo.ListProductsByOwner(ctx, ownerID)
}

// Create lists a new product for export. Nothing is persisted when any
// required field is missing or malformed.
func (s *CatalogService) Create(ctx context.Context, fields map[string]any) (*domain.Product, error) {
	product, err := buildProduct(fields)
	if err != nil {
		return nil, err
	}

	product.ID = uuid.New().String()
	product.CreatedAt = s.now()

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.Info("catalog.product_listed",
		zap.String("product_id", product.ID),
		zap.String("owner_id", product.OwnerID),
		zap.Int("quantity", product.Quantity),
	)
	s.publish(ctx, port.EventProductListed, product)
	return &product, nil
}

// Update merges the supplied fields into an existing product.
func (s *CatalogService) Update(ctx context.Context, id string, fields map[string]any) (domain.UpdateResult, error) {
	patch, err := buildPatch(fields)
	if err != nil {
		return domain.UpdateResult{}, err
	}
	return s.repo.UpdateProduct(ctx, id, patch)
}

// Remove deletes a product permanently. Its transfers stay in the ledger.
func (s *CatalogService) Remove(ctx context.Context, id string) (domain.DeleteResult, error) {
	res, err := s.repo.DeleteProduct(ctx, id)
	if err != nil {
		return domain.DeleteResult{}, err
	}

	s.logger.Info("catalog.product_removed", zap.String("product_id", id))
	s.publish(ctx, port.EventProductRemoved, map[string]string{"productId": id})
	return res, nil
}

// ListTransfers returns the ledger of a single product.
func (s *CatalogService) ListTransfers(ctx context.Context, productID string) ([]domain.Transfer, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListTransfersByProduct(ctx, productID)
}

func (s *CatalogService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *CatalogService) publish(ctx context.Context, eventType string, payload any) {
	publishEvent(ctx, s.events, s.logger, eventType, payload)
}
