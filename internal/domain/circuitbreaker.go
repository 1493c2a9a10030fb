package domain

import "time"

// CircuitBreakerStatus is the persisted drawdown-guard state. It is read at
// the start of every live decision cycle and written after every balance
// check. Tripped is sticky: once set it suppresses all new position opens
// until a human resets it.
type CircuitBreakerStatus struct {
	PeakEquity    float64   `json:"peak_equity"`
	CurrentEquity float64   `json:"current_equity"`
	Drawdown      float64   `json:"drawdown"` // Fraction of peak equity lost
	Tripped       bool      `json:"tripped"`
	TripReason    string    `json:"trip_reason,omitempty"`
	TrippedAt     time.Time `json:"tripped_at,omitempty"`
	ResetAt       time.Time `json:"reset_at,omitempty"`
	LastUpdate    time.Time `json:"last_update,omitempty"`
}
