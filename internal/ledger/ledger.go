package ledger

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"riskbot/internal/models"
)

// PositionStore persists position snapshots. Satisfied by storage.Store.
type PositionStore interface {
	SavePosition(symbol string, p models.Position) error
}

// Ledger is the single owner of the position for one instrument. All
// mutations go through it; callers only ever see value snapshots. The
// weighted average entry price is carried in decimal form so repeated
// partial entries never drift.
type Ledger struct {
	mu    sync.Mutex
	store PositionStore
	pos   models.Position

	// decimal mirrors of the float fields, source of truth for the math
	cost   decimal.Decimal // sum of price*amount over all entries
	amount decimal.Decimal
}

func New(symbol string, store PositionStore) *Ledger {
	return &Ledger{
		store:  store,
		pos:    models.Position{Symbol: symbol, Side: models.SideNone},
		cost:   decimal.Zero,
		amount: decimal.Zero,
	}
}

// Restore seeds the ledger from a persisted snapshot, rebuilding the
// decimal accumulators from the recorded entries.
func (l *Ledger) Restore(p models.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pos = p
	l.cost = decimal.Zero
	l.amount = decimal.Zero
	for _, e := range p.Entries {
		price := decimal.NewFromFloat(e.Price)
		amt := decimal.NewFromFloat(e.Amount)
		l.cost = l.cost.Add(price.Mul(amt))
		l.amount = l.amount.Add(amt)
	}
	l.recompute()
	log.Printf("📒 Ledger: restored %s %s amount=%s avg=%.2f",
		p.Symbol, p.Side, l.amount.String(), l.pos.AvgEntryPrice)
}

// Position returns a snapshot of the current position.
func (l *Ledger) Position() models.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pos
}

// RecordEntry records one fill. Opening against an empty ledger sets the
// side; adding to an open position must match it.
func (l *Ledger) RecordEntry(side models.Side, price, amt float64, orderID string) (models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if price <= 0 || amt <= 0 {
		return l.pos, fmt.Errorf("ledger: invalid fill price=%.8f amount=%.8f", price, amt)
	}
	if l.pos.IsOpen() && l.pos.Side != side {
		return l.pos, fmt.Errorf("ledger: fill side %s conflicts with open %s position", side, l.pos.Side)
	}

	if !l.pos.IsOpen() {
		l.pos.Side = side
		l.pos.OpenTime = time.Now()
		l.pos.Entries = nil
		l.cost = decimal.Zero
		l.amount = decimal.Zero
	}

	l.pos.Entries = append(l.pos.Entries, models.PositionEntry{
		Price:     price,
		Amount:    amt,
		Timestamp: time.Now(),
		OrderID:   orderID,
	})

	p := decimal.NewFromFloat(price)
	a := decimal.NewFromFloat(amt)
	l.cost = l.cost.Add(p.Mul(a))
	l.amount = l.amount.Add(a)
	l.recompute()

	log.Printf("📒 Ledger: entry %s %.8f @ %.2f → total %.8f avg %.2f",
		side, amt, price, l.pos.TotalAmount, l.pos.AvgEntryPrice)
	return l.pos, l.persist()
}

// RecordExit closes the position in full and returns the closed trade.
func (l *Ledger) RecordExit(exitPrice float64, reason string) (models.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.pos.IsOpen() {
		return models.Trade{}, fmt.Errorf("ledger: no open position to exit")
	}
	if exitPrice <= 0 {
		return models.Trade{}, fmt.Errorf("ledger: invalid exit price %.8f", exitPrice)
	}

	exit := decimal.NewFromFloat(exitPrice)
	// long PnL: (exit - avg) * amount; short is the mirror
	avg := l.cost.Div(l.amount)
	pl := exit.Sub(avg).Mul(l.amount)
	if l.pos.Side == models.SideShort {
		pl = pl.Neg()
	}
	realized, _ := pl.Float64()

	notional, _ := l.cost.Float64()
	plPct := 0.0
	if notional > 0 {
		plPct = realized / notional * 100
	}

	now := time.Now()
	trade := models.Trade{
		Symbol:      l.pos.Symbol,
		Side:        l.pos.Side,
		EntryPrice:  l.pos.AvgEntryPrice,
		ExitPrice:   exitPrice,
		Amount:      l.pos.TotalAmount,
		RealizedPL:  realized,
		PLPercent:   plPct,
		OpenTime:    l.pos.OpenTime,
		CloseTime:   now,
		Duration:    now.Sub(l.pos.OpenTime),
		CloseReason: reason,
	}

	log.Printf("📒 Ledger: closed %s %s %.8f @ %.2f, P/L %.2f (%.2f%%), reason=%s",
		trade.Symbol, trade.Side, trade.Amount, trade.ExitPrice, trade.RealizedPL, trade.PLPercent, reason)

	symbol := l.pos.Symbol
	l.pos = models.Position{Symbol: symbol, Side: models.SideNone}
	l.cost = decimal.Zero
	l.amount = decimal.Zero
	return trade, l.persist()
}

// SetProtectiveOrders replaces the recorded stop and target order state.
// At most one stop and one target are ever recorded. An empty ID with a
// non-zero price marks a slot whose order is gone but whose level must
// not be forgotten.
func (l *Ledger) SetProtectiveOrders(stopID string, stopPrice float64, targetID string, targetPrice float64) (models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pos.ActiveStopOrderID = stopID
	l.pos.ActiveStopPrice = stopPrice
	l.pos.ActiveTargetOrderID = targetID
	l.pos.ActiveTargetPrice = targetPrice
	return l.pos, l.persist()
}

// SetEntryStrategy records the strategy credited with the position, so the
// outcome survives a restart.
func (l *Ledger) SetEntryStrategy(id string) (models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pos.EntryStrategy = id
	return l.pos, l.persist()
}

// SetTrailing marks the trailing state and the price of the last stop move.
func (l *Ledger) SetTrailing(active bool, lastTrailPrice float64) (models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pos.TrailingActive = active
	l.pos.LastTrailPrice = lastTrailPrice
	return l.pos, l.persist()
}

// ProtectiveOrderIDs returns the IDs the ledger currently knows about.
// Any venue order outside this set is an orphan.
func (l *Ledger) ProtectiveOrderIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ids []string
	if l.pos.ActiveStopOrderID != "" {
		ids = append(ids, l.pos.ActiveStopOrderID)
	}
	if l.pos.ActiveTargetOrderID != "" {
		ids = append(ids, l.pos.ActiveTargetOrderID)
	}
	return ids
}

// recompute refreshes the float mirrors from the decimal accumulators.
// Callers hold the lock.
func (l *Ledger) recompute() {
	l.pos.TotalAmount, _ = l.amount.Float64()
	if l.amount.IsPositive() {
		l.pos.AvgEntryPrice, _ = l.cost.Div(l.amount).Float64()
	} else {
		l.pos.AvgEntryPrice = 0
	}
}

func (l *Ledger) persist() error {
	if l.store == nil {
		return nil
	}
	if err := l.store.SavePosition(l.pos.Symbol, l.pos); err != nil {
		return fmt.Errorf("persist position: %w", err)
	}
	return nil
}
