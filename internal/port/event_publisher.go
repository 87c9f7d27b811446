package port

import "context"

const (
	EventProductListed    = "product.listed"
	EventProductRemoved   = "product.removed"
	EventTransferRecorded = "transfer.recorded"
	EventTransferRemoved  = "transfer.removed"
)

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}
