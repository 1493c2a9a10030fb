package ports

import (
	"context"
	"time"

	"neuroTradeBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64
	Symbol        string
	ClientOrderID string
	Price         float64 // Price of the order (0 for market orders initially)
	AvgPrice      float64 // Average filled price
	OrigQuantity  float64
	ExecutedQty   float64
	Status        string // e.g., NEW, FILLED, CANCELED
	Type          string // e.g., MARKET, STOP_MARKET, TRAILING_STOP_MARKET
	Side          string
	Timestamp     time.Time
}

// OpenPosition is the exchange's view of a currently held position, used by
// the live loop to reconcile local expectations against reality before sizing.
type OpenPosition struct {
	Symbol           string
	Side             domain.Side
	Quantity         float64 // Contracts held (always positive)
	EntryPrice       float64
	MarkPrice        float64
	UnrealizedProfit float64
	LiquidationPrice float64
	Leverage         int
}

// ExchangeGateway defines the operations the trading core needs from an
// exchange. Every call may fail; a failure while protecting a freshly opened
// position must be treated by the caller as requiring immediate defensive
// close.
type ExchangeGateway interface {
	// SetServerTime synchronizes the client's clock with the exchange.
	SetServerTime(ctx context.Context) error

	// GetBalance retrieves the available balance for an asset (e.g., "USDT").
	GetBalance(ctx context.Context, asset string) (float64, error)

	// SetLeverage sets the leverage for a symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// OpenMarketPosition enters a position at market.
	OpenMarketPosition(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// PlaceStopOrder places a reduce-only stop-market order protecting an open position.
	PlaceStopOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, triggerPrice string) (*OrderResponse, error)

	// PlaceTrailingStop places an exchange-side trailing stop with the given
	// activation price and callback rate (fraction, e.g. 0.01 for 1%).
	PlaceTrailingStop(ctx context.Context, symbol string, side domain.OrderSide, quantity, activationPrice string, callbackRate float64) (*OrderResponse, error)

	// CancelAllOrders cancels every open order for a symbol.
	CancelAllOrders(ctx context.Context, symbol string) error

	// GetOpenPositions returns the exchange-reported open positions for a
	// symbol. An empty slice means the symbol is flat.
	GetOpenPositions(ctx context.Context, symbol string) ([]*OpenPosition, error)

	// GetKlines retrieves the most recent klines for a symbol.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error)

	// GetKlinesRange fetches all klines between start and end, paging as needed.
	GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error)
}
