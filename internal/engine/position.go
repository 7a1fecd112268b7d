package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"riskbot/internal/exchange"
	"riskbot/internal/metrics"
	"riskbot/internal/models"
	"riskbot/internal/notify"
)

func orderSideFor(side models.Side, closing bool) exchange.OrderSide {
	long := side == models.SideLong
	if closing {
		long = !long
	}
	if long {
		return exchange.OrderSideBuy
	}
	return exchange.OrderSideSell
}

// enter places the approved market order and records the fill. No retry
// on placement: if the call fails we do not know whether the venue took
// it, and the next cycle's reconciliation sorts out reality.
func (e *Engine) enter(ctx context.Context, side models.Side, dec models.RiskDecision,
	strategyID string, price, stopDist, targetDist float64) error {

	order, err := e.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Side:     orderSideFor(side, false),
		Type:     exchange.OrderTypeMarket,
		Quantity: dec.PositionSize,
		ClientID: "rb-" + uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("entry order: %w", err)
	}
	metrics.OrdersPlacedTotal.WithLabelValues(string(exchange.OrderTypeMarket)).Inc()

	fillPrice := order.AvgPrice
	if fillPrice <= 0 {
		fillPrice = price
	}

	pos, err := e.ledger.RecordEntry(side, fillPrice, order.Quantity, order.ID)
	if err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	if _, err := e.ledger.SetEntryStrategy(strategyID); err != nil {
		log.Printf("⚠️ Engine: %v", err)
	}

	log.Printf("✅ Engine: entered %s %.8f @ %.2f (avg %.2f, score %.0f)",
		side, order.Quantity, fillPrice, pos.AvgEntryPrice, dec.RiskScore)
	e.sink.Notify(notify.EntryEvent(e.cfg.Symbol, side, order.Quantity, fillPrice, dec.RiskScore))

	return e.placeProtectiveOrders(ctx, stopDist, targetDist)
}

// closePosition exits at market and books the trade.
func (e *Engine) closePosition(ctx context.Context, reason string) error {
	pos := e.ledger.Position()
	if !pos.IsOpen() {
		return nil
	}

	if err := e.cancelProtectiveOrders(ctx, pos); err != nil {
		return err
	}

	order, err := e.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Side:       orderSideFor(pos.Side, true),
		Type:       exchange.OrderTypeMarket,
		Quantity:   pos.TotalAmount,
		ReduceOnly: true,
		ClientID:   "rb-" + uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("close order: %w", err)
	}
	metrics.OrdersPlacedTotal.WithLabelValues(string(exchange.OrderTypeMarket)).Inc()

	exitPrice := order.AvgPrice
	if exitPrice <= 0 {
		exitPrice, err = e.gateway.Price(ctx)
		if err != nil {
			return fmt.Errorf("close fill price: %w", err)
		}
	}
	return e.recordClose(pos, exitPrice, reason)
}

// CloseAll is the manual kill switch: flatten and cancel everything.
func (e *Engine) CloseAll(ctx context.Context) error {
	if err := e.closePosition(ctx, "MANUAL"); err != nil {
		return err
	}
	return e.reconcileOrphans(ctx)
}

// recordClose books the exit in the ledger, feeds the Kelly history,
// and persists everything.
func (e *Engine) recordClose(pos models.Position, exitPrice float64, reason string) error {
	trade, err := e.ledger.RecordExit(exitPrice, reason)
	if err != nil {
		return fmt.Errorf("record exit: %w", err)
	}
	metrics.TradesClosedTotal.WithLabelValues(reason).Inc()

	if pos.EntryStrategy != "" {
		notional := trade.EntryPrice * trade.Amount
		ratio := 0.0
		if notional > 0 {
			ratio = trade.RealizedPL / notional
		}
		e.kelly.RecordOutcome(models.TradeOutcome{
			StrategyID: pos.EntryStrategy,
			Win:        trade.RealizedPL > 0,
			PnL:        trade.RealizedPL,
			PnLRatio:   ratio,
			ClosedAt:   trade.CloseTime,
		})
	}

	e.mu.Lock()
	e.trades = append(e.trades, trade)
	trades := append([]models.Trade(nil), e.trades...)
	e.mu.Unlock()

	if err := e.store.SaveTrades(e.cfg.Symbol, trades); err != nil {
		log.Printf("⚠️ Engine: persist trades: %v", err)
	}
	if err := e.persistRiskState(); err != nil {
		log.Printf("⚠️ Engine: %v", err)
	}

	e.sink.Notify(notify.ExitEvent(trade))
	return nil
}

// reconcileFills checks whether a resting protective order executed
// since the last cycle and books the exit if so.
func (e *Engine) reconcileFills(ctx context.Context) error {
	pos := e.ledger.Position()
	if !pos.IsOpen() {
		return nil
	}

	if pos.ActiveStopOrderID != "" {
		o, err := e.gateway.OrderStatus(ctx, pos.ActiveStopOrderID)
		switch {
		case errors.Is(err, exchange.ErrOrderNotFound):
			e.ledger.SetProtectiveOrders("", pos.ActiveStopPrice, pos.ActiveTargetOrderID, pos.ActiveTargetPrice)
		case err != nil:
			return fmt.Errorf("stop status: %w", err)
		case o.State == exchange.OrderStateFilled:
			reason := "SL"
			if pos.TrailingActive {
				reason = "TRAIL"
			}
			exitPrice := o.AvgPrice
			if exitPrice <= 0 {
				exitPrice = o.StopPrice
			}
			log.Printf("🛑 Engine: stop filled @ %.2f", exitPrice)
			e.cancelOrderQuiet(ctx, pos.ActiveTargetOrderID)
			return e.recordClose(pos, exitPrice, reason)
		case o.State == exchange.OrderStateCanceled || o.State == exchange.OrderStateExpired:
			// The venue dropped the order; the level stays recorded so
			// the re-placement cannot loosen.
			e.ledger.SetProtectiveOrders("", pos.ActiveStopPrice, pos.ActiveTargetOrderID, pos.ActiveTargetPrice)
		}
	}

	pos = e.ledger.Position()
	if pos.ActiveTargetOrderID != "" {
		o, err := e.gateway.OrderStatus(ctx, pos.ActiveTargetOrderID)
		switch {
		case errors.Is(err, exchange.ErrOrderNotFound):
			e.ledger.SetProtectiveOrders(pos.ActiveStopOrderID, pos.ActiveStopPrice, "", pos.ActiveTargetPrice)
		case err != nil:
			return fmt.Errorf("target status: %w", err)
		case o.State == exchange.OrderStateFilled:
			exitPrice := o.AvgPrice
			if exitPrice <= 0 {
				exitPrice = o.StopPrice
			}
			log.Printf("🎯 Engine: target filled @ %.2f", exitPrice)
			e.cancelOrderQuiet(ctx, pos.ActiveStopOrderID)
			return e.recordClose(pos, exitPrice, "TP")
		case o.State == exchange.OrderStateCanceled || o.State == exchange.OrderStateExpired:
			e.ledger.SetProtectiveOrders(pos.ActiveStopOrderID, pos.ActiveStopPrice, "", pos.ActiveTargetPrice)
		}
	}
	return nil
}

// reconcileOrphans cancels venue orders the ledger does not know about.
// Runs before any new protective order is placed, so a crash between
// placement and bookkeeping cannot leave stale stops behind.
func (e *Engine) reconcileOrphans(ctx context.Context) error {
	open, err := e.gateway.OpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("open orders: %w", err)
	}

	known := make(map[string]bool)
	for _, id := range e.ledger.ProtectiveOrderIDs() {
		known[id] = true
	}

	for _, o := range open {
		if known[o.ID] {
			continue
		}
		log.Printf("🧹 Engine: cancelling orphan order %s (%s %s)", o.ID, o.Type, o.Side)
		if err := e.gateway.CancelOrder(ctx, o.ID); err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
			return fmt.Errorf("cancel orphan %s: %w", o.ID, err)
		}
		metrics.OrdersCanceledTotal.Inc()
	}
	return nil
}

func (e *Engine) cancelProtectiveOrders(ctx context.Context, pos models.Position) error {
	for _, id := range []string{pos.ActiveStopOrderID, pos.ActiveTargetOrderID} {
		if id == "" {
			continue
		}
		if err := e.gateway.CancelOrder(ctx, id); err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
			return fmt.Errorf("cancel order %s: %w", id, err)
		}
		metrics.OrdersCanceledTotal.Inc()
	}
	if _, err := e.ledger.SetProtectiveOrders("", 0, "", 0); err != nil {
		return err
	}
	return nil
}

func (e *Engine) cancelOrderQuiet(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := e.gateway.CancelOrder(ctx, id); err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
		log.Printf("⚠️ Engine: cancel %s: %v", id, err)
	}
}
