// Package notify provides operator alert delivery. The log notifier writes
// alerts through the application logger; it is the default when no external
// transport is configured.
package notify

import (
	"context"
	"fmt"

	"neuroTradeBot/internal/ports"
)

// LogNotifier implements ports.Notifier by logging at Warn level.
type LogNotifier struct {
	logger ports.Logger
}

// NewLogNotifier creates a notifier backed by the application logger.
func NewLogNotifier(logger ports.Logger) (*LogNotifier, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	return &LogNotifier{logger: logger}, nil
}

// Notify delivers an operator alert.
func (n *LogNotifier) Notify(ctx context.Context, message string) error {
	n.logger.Warn(ctx, "OPERATOR ALERT: "+message)
	return nil
}
