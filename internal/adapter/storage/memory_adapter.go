package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rl1809/import-export/internal/core/domain"
)

type memoryProduct struct {
	seq     int64
	product domain.Product
}

type memoryTransfer struct {
	seq      int64
	transfer domain.Transfer
}

// MemoryAdapter keeps the catalog and ledger in process memory. A single
// mutex makes every operation, including CommitTransfer, atomic.
type MemoryAdapter struct {
	mu        sync.RWMutex
	seq       int64
	products  map[string]*memoryProduct
	transfers map[string]*memoryTransfer
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products:  make(map[string]*memoryProduct),
		transfers: make(map[string]*memoryTransfer),
	}
}

func (m *MemoryAdapter) nextSeq() int64 {
	m.seq++
	return m.seq
}

// sortedProducts returns products matching keep in insertion order.
func (m *MemoryAdapter) sortedProducts(keep func(domain.Product) bool) []domain.Product {
	rows := make([]*memoryProduct, 0, len(m.products))
	for _, p := range m.products {
		if keep == nil || keep(p.product) {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.product)
	}
	return out
}

func (m *MemoryAdapter) sortedTransfers(keep func(domain.Transfer) bool) []domain.Transfer {
	rows := make([]*memoryTransfer, 0)
	for _, t := range m.transfers {
		if keep(t.transfer) {
			rows = append(rows, t)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]domain.Transfer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.transfer)
	}
	return out
}

func (m *MemoryAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedProducts(nil), nil
}

func (m *MemoryAdapter) ListLatestProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]*memoryProduct, 0, len(m.products))
	for _, p := range m.products {
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.product.CreatedAt.Equal(b.product.CreatedAt) {
			return a.product.CreatedAt.After(b.product.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit < len(rows) {
		rows = rows[:limit]
	}

	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.product)
	}
	return out, nil
}

func (m *MemoryAdapter) SearchProducts(ctx context.Context, text string) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(text)
	return m.sortedProducts(func(p domain.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), needle)
	}), nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	product := p.product
	return &product, nil
}

func (m *MemoryAdapter) ListProductsByOwner(ctx context.Context, ownerID string) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedProducts(func(p domain.Product) bool {
		return p.OwnerID == ownerID
	}), nil
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.products[product.ID]; exists {
		return fmt.Errorf("product %s already exists", product.ID)
	}
	m.products[product.ID] = &memoryProduct{seq: m.nextSeq(), product: product}
	return nil
}

func (m *MemoryAdapter) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return domain.UpdateResult{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	patch.Apply(&p.product)
	return domain.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (m *MemoryAdapter) DeleteProduct(ctx context.Context, id string) (domain.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return domain.DeleteResult{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	delete(m.products, id)
	return domain.DeleteResult{DeletedCount: 1}, nil
}

func (m *MemoryAdapter) CommitTransfer(ctx context.Context, transfer domain.Transfer) (domain.Transfer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[transfer.ProductID]
	if !ok {
		return domain.Transfer{}, 0, fmt.Errorf("product %s: %w", transfer.ProductID, domain.ErrNotFound)
	}
	if p.product.Quantity < transfer.Quantity {
		return domain.Transfer{}, 0, domain.ErrInsufficientStock
	}

	transfer.Snapshot(p.product)
	p.product.Quantity -= transfer.Quantity
	m.transfers[transfer.ID] = &memoryTransfer{seq: m.nextSeq(), transfer: transfer}
	return transfer, p.product.Quantity, nil
}

func (m *MemoryAdapter) ListTransfersByUser(ctx context.Context, userID string) ([]domain.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedTransfers(func(t domain.Transfer) bool {
		return t.UserID == userID
	}), nil
}

func (m *MemoryAdapter) ListTransfersByProduct(ctx context.Context, productID string) ([]domain.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedTransfers(func(t domain.Transfer) bool {
		return t.ProductID == productID
	}), nil
}

func (m *MemoryAdapter) DeleteTransfer(ctx context.Context, id string, replenish bool) (domain.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[id]
	if !ok {
		return domain.DeleteResult{}, fmt.Errorf("transfer %s: %w", id, domain.ErrNotFound)
	}
	delete(m.transfers, id)
	if replenish {
		m.restock(t.transfer.ProductID, t.transfer.Quantity)
	}
	return domain.DeleteResult{DeletedCount: 1}, nil
}

func (m *MemoryAdapter) DeleteUserTransfers(ctx context.Context, productID, userID string, replenish bool) (domain.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[productID]; !ok {
		return domain.DeleteResult{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}

	var deleted int64
	returned := 0
	for id, t := range m.transfers {
		if t.transfer.ProductID == productID && t.transfer.UserID == userID {
			returned += t.transfer.Quantity
			delete(m.transfers, id)
			deleted++
		}
	}
	if replenish {
		m.restock(productID, returned)
	}
	return domain.DeleteResult{DeletedCount: deleted}, nil
}

// restock is a no-op when the product has since been removed.
func (m *MemoryAdapter) restock(productID string, quantity int) {
	if p, ok := m.products[productID]; ok {
		p.product.Quantity += quantity
	}
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}
