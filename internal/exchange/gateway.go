package exchange

import (
	"context"
	"errors"
	"time"
)

// ErrOrderNotFound is returned when the venue no longer knows the order.
var ErrOrderNotFound = errors.New("exchange: order not found")

// OrderType distinguishes immediate entries from resting protective orders.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT_MARKET"
)

// OrderSide is the venue-level direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderState is the venue's view of an order's lifecycle.
type OrderState string

const (
	OrderStateNew      OrderState = "NEW"
	OrderStateFilled   OrderState = "FILLED"
	OrderStateCanceled OrderState = "CANCELED"
	OrderStateRejected OrderState = "REJECTED"
	OrderStateExpired  OrderState = "EXPIRED"
)

// OrderRequest describes one order to place. ClientID carries the
// idempotency key the caller generated for this placement.
type OrderRequest struct {
	Side       OrderSide
	Type       OrderType
	Quantity   float64
	StopPrice  float64 // trigger price for STOP_MARKET / TAKE_PROFIT_MARKET
	ReduceOnly bool
	ClientID   string
}

// Order is the venue's record of an order.
type Order struct {
	ID        string
	ClientID  string
	Side      OrderSide
	Type      OrderType
	Quantity  float64
	StopPrice float64
	AvgPrice  float64 // fill price, 0 until filled
	State     OrderState
	Time      time.Time
}

// Balance is the account view the risk layer works from.
type Balance struct {
	Equity    float64 // margin balance including unrealized PnL
	Available float64 // free balance for new orders
}

// Kline is one closed candle.
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Gateway is the venue surface the engine depends on. Implementations
// are bound to a single instrument at construction. All calls honor the
// context deadline.
type Gateway interface {
	Balance(ctx context.Context) (Balance, error)
	// MarginRatio projects the account margin health if an additional
	// candidateSize (base units) were opened at the current price.
	// 1.0 means fully free, values near 0 mean liquidation territory.
	MarginRatio(ctx context.Context, candidateSize float64) (float64, error)
	Price(ctx context.Context) (float64, error)
	Klines(ctx context.Context, interval string, limit int) ([]Kline, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	OpenOrders(ctx context.Context) ([]Order, error)
	OrderStatus(ctx context.Context, orderID string) (Order, error)
}
