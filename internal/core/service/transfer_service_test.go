package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/import-export/internal/adapter/storage"
	"github.com/rl1809/import-export/internal/core/domain"
)

// Mock IdempotencyRepository
type mockIdempotency struct {
	mu      sync.Mutex
	claimed map[string]bool
	cleared []string
	err     error
}

func newMockIdempotency() *mockIdempotency {
	return &mockIdempotency{claimed: make(map[string]bool)}
}

func (m *mockIdempotency) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *mockIdempotency) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.claimed, key)
	m.cleared = append(m.cleared, key)
	return nil
}

// Mock EventPublisher
type mockEvents struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (m *mockEvents) Publish(ctx context.Context, eventType string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.types = append(m.types, eventType)
	return m.err
}

func (m *mockEvents) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.types...)
}

// flakyRepo fails every CommitTransfer with err.
type flakyRepo struct {
	*storage.MemoryAdapter
	err error
}

func (f *flakyRepo) CommitTransfer(ctx context.Context, t domain.Transfer) (domain.Transfer, int, error) {
	return domain.Transfer{}, 0, f.err
}

func productFields(quantity int) map[string]any {
	return map[string]any{
		"name":          "Green Coffee Beans",
		"image":         "https://img.example.com/coffee.png",
		"price":         12.5,
		"originCountry": "Vietnam",
		"rating":        4.6,
		"quantity":      quantity,
		"ownerId":       "exporter-1",
	}
}

type fixture struct {
	repo        *storage.MemoryAdapter
	catalog     *CatalogService
	transfers   *TransferService
	idempotency *mockIdempotency
	events      *mockEvents
}

func newFixture(t *testing.T, replenish bool) *fixture {
	t.Helper()
	repo := storage.NewMemoryAdapter()
	idem := newMockIdempotency()
	ev := &mockEvents{}
	return &fixture{
		repo:        repo,
		catalog:     NewCatalogService(repo, ev, nil),
		transfers:   NewTransferService(repo, idem, ev, nil, replenish),
		idempotency: idem,
		events:      ev,
	}
}

func (f *fixture) listProduct(t *testing.T, quantity int) *domain.Product {
	t.Helper()
	p, err := f.catalog.Create(context.Background(), productFields(quantity))
	require.NoError(t, err)
	return p
}

func ledgerTotal(t *testing.T, f *fixture, productID string) int {
	t.Helper()
	transfers, err := f.repo.ListTransfersByProduct(context.Background(), productID)
	require.NoError(t, err)
	total := 0
	for _, tr := range transfers {
		total += tr.Quantity
	}
	return total
}

func TestTransfer_Success(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.listProduct(t, 10)

	result, err := f.transfers.Transfer(ctx, "", "importer-1", p.ID, 3)
	require.NoError(t, err)

	assert.NotEmpty(t, result.TransferID)
	assert.Equal(t, 7, result.Quantity)
	assert.Equal(t, p.Name, result.Transfer.Name)
	assert.Equal(t, "importer-1", result.Transfer.UserID)

	current, err := f.catalog.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, current.Quantity)
	require.Len(t, current.Transfers, 1)
	assert.Equal(t, result.TransferID, current.Transfers[0].ID)

	assert.Contains(t, f.events.published(), "transfer.recorded")
}

func TestTransfer_InsufficientStock(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.listProduct(t, 2)

	_, err := f.transfers.Transfer(ctx, "", "importer-1", p.ID, 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	current, err := f.repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Quantity)
	assert.Zero(t, ledgerTotal(t, f, p.ID))
}

func TestTransfer_ExactRemainingStock(t *testing.T) {
	f := newFixture(t, false)
	p := f.listProduct(t, 4)

	result, err := f.transfers.Transfer(context.Background(), "", "importer-1", p.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Quantity)
}

func TestTransfer_InvalidQuantity(t *testing.T) {
	f := newFixture(t, false)
	p := f.listProduct(t, 10)

	for _, q := range []int{0, -1} {
		_, err := f.transfers.Transfer(context.Background(), "", "importer-1", p.ID, q)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "quantity %d", q)
	}
	assert.Zero(t, ledgerTotal(t, f, p.ID))
}

func TestTransfer_MissingUser(t *testing.T) {
	f := newFixture(t, false)
	p := f.listProduct(t, 10)

	_, err := f.transfers.Transfer(context.Background(), "", "", p.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTransfer_UnknownProduct(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.transfers.Transfer(context.Background(), "", "importer-1", "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransfer_ConcurrentNeverOversells(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.listProduct(t, 5)

	var wg sync.WaitGroup
	var successCount, rejectedCount atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(user int) {
			defer wg.Done()
			_, err := f.transfers.Transfer(ctx, "", fmt.Sprintf("importer-%d", user), p.ID, 3)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejectedCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
	assert.Equal(t, int32(1), rejectedCount.Load())

	current, err := f.repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Quantity)
	assert.Equal(t, 5, current.Quantity+ledgerTotal(t, f, p.ID))
}

func TestTransfer_ConcurrentUnitDraws(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	initial := 20
	p := f.listProduct(t, initial)

	var wg sync.WaitGroup
	var successCount atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(user int) {
			defer wg.Done()
			if _, err := f.transfers.Transfer(ctx, "", fmt.Sprintf("importer-%d", user), p.ID, 1); err == nil {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(initial), successCount.Load())
	current, err := f.repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, current.Quantity)
	assert.Equal(t, initial, ledgerTotal(t, f, p.ID))
}

func TestTransfer_DuplicateRequest(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.listProduct(t, 10)

	_, err := f.transfers.Transfer(ctx, "req-1", "importer-1", p.ID, 2)
	require.NoError(t, err)

	_, err = f.transfers.Transfer(ctx, "req-1", "importer-1", p.ID, 2)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	// the same request id from another user is a different request
	_, err = f.transfers.Transfer(ctx, "req-1", "importer-2", p.ID, 2)
	require.NoError(t, err)

	current, err := f.repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, current.Quantity)
}

func TestTransfer_FailedCommitReleasesClaim(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.listProduct(t, 1)

	_, err := f.transfers.Transfer(ctx, "req-1", "importer-1", p.ID, 5)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, []string{"import:importer-1:req-1"}, f.idempotency.cleared)

	// the retry is not treated as a duplicate
	_, err = f.transfers.Transfer(ctx, "req-1", "importer-1", p.ID, 1)
	require.NoError(t, err)
}

func TestTransfer_StoreFailureIsWrapped(t *testing.T) {
	repo := &flakyRepo{MemoryAdapter: storage.NewMemoryAdapter(), err: fmt.Errorf("commit: %w", domain.ErrStoreUnavailable)}
	idem := newMockIdempotency()
	svc := NewTransferService(repo, idem, nil, nil, false)

	_, err := svc.Transfer(context.Background(), "req-9", "importer-1", "p-1", 1)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Len(t, idem.cleared, 1)
}

func TestTransfer_IdempotencyBackendDown(t *testing.T) {
	f := newFixture(t, false)
	p := f.listProduct(t, 10)
	f.idempotency.err = errors.New("connection refused")

	_, err := f.transfers.Transfer(context.Background(), "req-1", "importer-1", p.ID, 1)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Zero(t, ledgerTotal(t, f, p.ID))
}

func TestTransfer_IdempotencyCancelledContext(t *testing.T) {
	f := newFixture(t, false)
	p := f.listProduct(t, 10)
	f.idempotency.err = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.transfers.Transfer(ctx, "req-1", "importer-1", p.ID, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestTransfer_UserIDTooLong(t *testing.T) {
	f := newFixture(t, false)
	p := f.listProduct(t, 10)

	_, err := f.transfers.Transfer(context.Background(), "", strings.Repeat("u", 129), p.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Zero(t, ledgerTotal(t, f, p.ID))
}

func TestTransfer_EventFailureDoesNotFailTransfer(t *testing.T) {
	f := newFixture(t, false)
	p := f.listProduct(t, 10)
	f.events.err = errors.New("nats: connection closed")

	_, err := f.transfers.Transfer(context.Background(), "", "importer-1", p.ID, 1)
	assert.NoError(t, err)
}

func TestListByUser(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	a := f.listProduct(t, 10)
	b := f.listProduct(t, 10)

	_, err := f.transfers.Transfer(ctx, "", "importer-1", a.ID, 1)
	require.NoError(t, err)
	_, err = f.transfers.Transfer(ctx, "", "importer-2", a.ID, 1)
	require.NoError(t, err)
	_, err = f.transfers.Transfer(ctx, "", "importer-1", b.ID, 2)
	require.NoError(t, err)

	mine, err := f.transfers.ListByUser(ctx, "importer-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, a.ID, mine[0].ProductID)
	assert.Equal(t, b.ID, mine[1].ProductID)

	none, err := f.transfers.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRemove_KeepsQuantityByDefault(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.listProduct(t, 10)

	result, err := f.transfers.Transfer(ctx, "", "importer-1", p.ID, 4)
	require.NoError(t, err)

	res, err := f.transfers.Remove(ctx, result.TransferID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DeletedCount)

	current, err := f.repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, current.Quantity)

	mine, err := f.transfers.ListByUser(ctx, "importer-1")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestRemove_Replenishes(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p := f.listProduct(t, 10)

	result, err := f.transfers.Transfer(ctx, "", "importer-1", p.ID, 4)
	require.NoError(t, err)

	_, err = f.transfers.Remove(ctx, result.TransferID)
	require.NoError(t, err)

	current, err := f.repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, current.Quantity)
}

func TestRemove_Unknown(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.transfers.Remove(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveForUser(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p := f.listProduct(t, 10)

	for _, user := range []string{"importer-1", "importer-1", "importer-2"} {
		_, err := f.transfers.Transfer(ctx, "", user, p.ID, 2)
		require.NoError(t, err)
	}

	res, err := f.transfers.RemoveForUser(ctx, p.ID, "importer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.DeletedCount)

	current, err := f.repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, current.Quantity)
	assert.Equal(t, 2, ledgerTotal(t, f, p.ID))

	res, err = f.transfers.RemoveForUser(ctx, p.ID, "importer-1")
	require.NoError(t, err)
	assert.Zero(t, res.DeletedCount)

	_, err = f.transfers.RemoveForUser(ctx, "missing", "importer-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
