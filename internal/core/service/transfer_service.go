package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/import-export/internal/core/domain"
	"github.com/rl1809/import-export/internal/metrics"
	"github.com/rl1809/import-export/internal/port"
)

type TransferService struct {
	repo              port.CatalogRepository
	idempotency       port.IdempotencyRepository
	events            port.EventPublisher
	logger            *zap.Logger
	replenishOnDelete bool
	now               func() time.Time
}

// NewTransferService wires the transfer ledger. idempotency and events may be
// nil; replenishOnDelete makes transfer removal restore the product's stock.
func NewTransferService(
	repo port.CatalogRepository,
	idempotency port.IdempotencyRepository,
	events port.EventPublisher,
	logger *zap.Logger,
	replenishOnDelete bool,
) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{
		repo:              repo,
		idempotency:       idempotency,
		events:            events,
		logger:            logger,
		replenishOnDelete: replenishOnDelete,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Transfer imports quantity units of a product on behalf of userID.
// requestID is optional; when set, a second call with the same id fails with
// domain.ErrDuplicateRequest instead of drawing stock twice.
func (s *TransferService) Transfer(ctx context.Context, requestID, userID, productID string, quantity int) (*domain.TransferResult, error) {
	if quantity <= 0 {
		metrics.IncTransfer("invalid")
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidArgument)
	}
	if userID == "" {
		metrics.IncTransfer("invalid")
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(userID) > maxUserIDLen {
		metrics.IncTransfer("invalid")
		return nil, fmt.Errorf("%w: user id must be at most %d characters", domain.ErrInvalidArgument, maxUserIDLen)
	}

	var idempotencyKey string
	if requestID != "" && s.idempotency != nil {
		idempotencyKey = fmt.Sprintf("import:%s:%s", userID, requestID)

		ok, err := s.idempotency.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			metrics.IncTransfer("error")
			if ctx.Err() != nil {
				return nil, fmt.Errorf("idempotency check: %w", err)
			}
			s.logger.Error("transfer.idempotency_unavailable", zap.String("key", idempotencyKey), zap.Error(err))
			return nil, fmt.Errorf("idempotency check: %w: %w", domain.ErrStoreUnavailable, err)
		}
		if !ok {
			metrics.IncTransfer("duplicate")
			return nil, domain.ErrDuplicateRequest
		}
	}

	pending := domain.Transfer{
		ID:        uuid.New().String(),
		ProductID: productID,
		UserID:    userID,
		Quantity:  quantity,
		Timestamp: s.now(),
	}

	committed, remaining, err := s.repo.CommitTransfer(ctx, pending)
	if err != nil {
		s.release(idempotencyKey)
		metrics.IncTransfer(transferResult(err))
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInsufficientStock) {
			return nil, err
		}
		s.logger.Error("transfer.commit_failed",
			zap.String("product_id", productID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("commit transfer: %w", err)
	}

	metrics.IncTransfer("ok")
	metrics.TransferredUnits.Add(float64(quantity))
	s.logger.Info("transfer.committed",
		zap.String("transfer_id", committed.ID),
		zap.String("product_id", productID),
		zap.String("user_id", userID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining),
	)
	publishEvent(ctx, s.events, s.logger, port.EventTransferRecorded, committed)

	return &domain.TransferResult{
		TransferID: committed.ID,
		Quantity:   remaining,
		Transfer:   committed,
	}, nil
}

func (s *TransferService) ListByUser(ctx context.Context, userID string) ([]domain.Transfer, error) {
	return s.repo.ListTransfersByUser(ctx, userID)
}

// Remove deletes one transfer record. Stock is only restored when the service
// was built with replenishOnDelete.
func (s *TransferService) Remove(ctx context.Context, transferID string) (domain.DeleteResult, error) {
	res, err := s.repo.DeleteTransfer(ctx, transferID, s.replenishOnDelete)
	if err != nil {
		return domain.DeleteResult{}, err
	}

	s.logger.Info("transfer.removed",
		zap.String("transfer_id", transferID),
		zap.Bool("replenished", s.replenishOnDelete),
	)
	publishEvent(ctx, s.events, s.logger, port.EventTransferRemoved, map[string]any{
		"transferId":  transferID,
		"replenished": s.replenishOnDelete,
	})
	return res, nil
}

// RemoveForUser deletes every transfer userID drew from productID.
func (s *TransferService) RemoveForUser(ctx context.Context, productID, userID string) (domain.DeleteResult, error) {
	res, err := s.repo.DeleteUserTransfers(ctx, productID, userID, s.replenishOnDelete)
	if err != nil {
		return domain.DeleteResult{}, err
	}

	s.logger.Info("transfer.removed_for_user",
		zap.String("product_id", productID),
		zap.String("user_id", userID),
		zap.Int64("deleted", res.DeletedCount),
	)
	if res.DeletedCount > 0 {
		publishEvent(ctx, s.events, s.logger, port.EventTransferRemoved, map[string]any{
			"productId":   productID,
			"userId":      userID,
			"replenished": s.replenishOnDelete,
		})
	}
	return res, nil
}

// release frees an idempotency claim after a failed transfer. It runs on a
// fresh context so a cancelled request still gets its key back.
func (s *TransferService) release(key string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.idempotency.ClearIdempotency(ctx, key); err != nil {
		s.logger.Warn("transfer.idempotency_release_failed", zap.String("key", key), zap.Error(err))
	}
}

func transferResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient"
	default:
		return "error"
	}
}

// publishEvent is best effort. A failed publish is logged and counted but
// never surfaces to the caller.
func publishEvent(ctx context.Context, events port.EventPublisher, logger *zap.Logger, eventType string, payload any) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, eventType, payload); err != nil {
		metrics.IncEventPublishError(eventType)
		logger.Warn("events.publish_failed", zap.String("type", eventType), zap.Error(err))
	}
}
