package exchange

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"
)

// PaperGateway simulates a futures venue in memory. Market orders fill
// at the current mark price; stop and take-profit orders rest until the
// price crosses their trigger. Used for dry runs and tests.
type PaperGateway struct {
	mu       sync.Mutex
	symbol   string
	leverage float64

	price  float64
	klines []Kline

	equity    float64
	available float64

	posSide   OrderSide // side of the opening orders, "" when flat
	posAmount float64
	posEntry  float64 // average entry

	orders map[string]*Order
	nextID int64

	feed Gateway // optional live market-data source
}

func NewPaperGateway(symbol string, startBalance float64, leverage int) *PaperGateway {
	if leverage < 1 {
		leverage = 1
	}
	log.Printf("🧪 Exchange: paper gateway for %s, starting balance %.2f", symbol, startBalance)
	return &PaperGateway{
		symbol:    symbol,
		leverage:  float64(leverage),
		equity:    startBalance,
		available: startBalance,
		orders:    make(map[string]*Order),
	}
}

// WithFeed sources prices and candles from another gateway while fills
// stay simulated. This is the dry-run mode against live market data.
func (g *PaperGateway) WithFeed(feed Gateway) *PaperGateway {
	g.feed = feed
	return g
}

// SetPrice moves the mark price and triggers any resting orders crossed
// by the move.
func (g *PaperGateway) SetPrice(p float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.price = p
	g.triggerRestingLocked()
}

// SetKlines seeds the candle history returned by Klines.
func (g *PaperGateway) SetKlines(ks []Kline) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.klines = ks
}

func (g *PaperGateway) Balance(context.Context) (Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Balance{Equity: g.equity, Available: g.available}, nil
}

func (g *PaperGateway) MarginRatio(_ context.Context, candidateSize float64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.equity <= 0 {
		return 0, nil
	}
	used := (g.posAmount + candidateSize) * g.price / g.leverage
	ratio := (g.equity - used) / g.equity
	if ratio < 0 {
		ratio = 0
	}
	return ratio, nil
}

func (g *PaperGateway) Price(ctx context.Context) (float64, error) {
	if g.feed != nil {
		p, err := g.feed.Price(ctx)
		if err != nil {
			return 0, err
		}
		g.SetPrice(p)
		return p, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.price <= 0 {
		return 0, fmt.Errorf("paper: no price set for %s", g.symbol)
	}
	return g.price, nil
}

func (g *PaperGateway) Klines(ctx context.Context, interval string, limit int) ([]Kline, error) {
	if g.feed != nil {
		return g.feed.Klines(ctx, interval, limit)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if limit > 0 && len(g.klines) > limit {
		return append([]Kline(nil), g.klines[len(g.klines)-limit:]...), nil
	}
	return append([]Kline(nil), g.klines...), nil
}

func (g *PaperGateway) PlaceOrder(_ context.Context, req OrderRequest) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if req.Quantity <= 0 {
		return Order{}, fmt.Errorf("paper: invalid quantity %.8f", req.Quantity)
	}
	g.nextID++
	o := &Order{
		ID:        strconv.FormatInt(g.nextID, 10),
		ClientID:  req.ClientID,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		StopPrice: req.StopPrice,
		State:     OrderStateNew,
		Time:      time.Now(),
	}
	g.orders[o.ID] = o

	if req.Type == OrderTypeMarket {
		g.fillLocked(o, g.price)
	}
	return *o, nil
}

func (g *PaperGateway) CancelOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok || o.State != OrderStateNew {
		return ErrOrderNotFound
	}
	o.State = OrderStateCanceled
	return nil
}

func (g *PaperGateway) OpenOrders(context.Context) ([]Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var open []Order
	for _, o := range g.orders {
		if o.State == OrderStateNew {
			open = append(open, *o)
		}
	}
	return open, nil
}

func (g *PaperGateway) OrderStatus(_ context.Context, orderID string) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return *o, nil
}

// fillLocked executes an order at the given price and updates the
// simulated position and balance. Callers hold the lock.
func (g *PaperGateway) fillLocked(o *Order, price float64) {
	o.State = OrderStateFilled
	o.AvgPrice = price

	reducing := g.posAmount > 0 && o.Side != g.posSide
	if reducing {
		amt := o.Quantity
		if amt > g.posAmount {
			amt = g.posAmount
		}
		pnl := (price - g.posEntry) * amt
		if g.posSide == OrderSideSell {
			pnl = -pnl
		}
		g.equity += pnl
		g.available += pnl + g.posEntry*amt/g.leverage
		g.posAmount -= amt
		if g.posAmount == 0 {
			g.posSide = ""
			g.posEntry = 0
		}
		return
	}

	cost := price * o.Quantity / g.leverage
	total := g.posAmount + o.Quantity
	g.posEntry = (g.posEntry*g.posAmount + price*o.Quantity) / total
	g.posAmount = total
	g.posSide = o.Side
	g.available -= cost
}

// triggerRestingLocked fills resting protective orders crossed by the
// current price. Callers hold the lock.
func (g *PaperGateway) triggerRestingLocked() {
	for _, o := range g.orders {
		if o.State != OrderStateNew || o.Type == OrderTypeMarket {
			continue
		}
		triggered := false
		switch o.Type {
		case OrderTypeStopMarket:
			// Protective stop: a sell stop triggers on a fall, a buy
			// stop on a rise.
			if o.Side == OrderSideSell {
				triggered = g.price <= o.StopPrice
			} else {
				triggered = g.price >= o.StopPrice
			}
		case OrderTypeTakeProfit:
			if o.Side == OrderSideSell {
				triggered = g.price >= o.StopPrice
			} else {
				triggered = g.price <= o.StopPrice
			}
		}
		if triggered {
			g.fillLocked(o, o.StopPrice)
		}
	}
}
