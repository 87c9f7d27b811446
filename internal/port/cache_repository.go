package port

import "context"

type IdempotencyRepository interface {
	// SetIdempotency claims a key, returns false if already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency releases a claim so the request can be retried
	ClearIdempotency(ctx context.Context, key string) error
}
