package ports

import "context"

// Notifier delivers operator-facing alerts (circuit breaker trips, protection
// failures). Delivery transport is an infrastructure concern; failures to
// notify are logged, never fatal.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
