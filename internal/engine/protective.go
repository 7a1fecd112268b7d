package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"riskbot/internal/exchange"
	"riskbot/internal/metrics"
	"riskbot/internal/models"
	"riskbot/internal/notify"
	"riskbot/internal/strategy"
)

// protectiveDistances returns the stop and target distances in quote
// units. The stop takes the tighter of the ratio-based and the
// volatility-based distance; the target takes the wider of the
// ratio-based and the risk-reward-implied distance.
func (e *Engine) protectiveDistances(price float64, klines []exchange.Kline) (stopDist, targetDist float64) {
	p := e.cfg.Risk.Protective

	stopDist = price * p.StopRatioPct / 100
	if atr := strategy.ATR(klines, p.VolLookback); atr > 0 {
		stopDist = math.Min(stopDist, atr*p.VolMultiplier)
	}

	targetDist = math.Max(price*p.TargetRatioPct/100, stopDist*p.RiskReward)
	return stopDist, targetDist
}

// ensureProtected re-places protective orders whenever an open position
// is missing its stop or its target, which happens after a restart, a
// failed placement, or a venue-side cancel.
func (e *Engine) ensureProtected(ctx context.Context, price float64, klines []exchange.Kline) error {
	pos := e.ledger.Position()
	if !pos.IsOpen() {
		return nil
	}
	if pos.ActiveStopOrderID != "" && pos.ActiveTargetOrderID != "" {
		return nil
	}
	stopDist, targetDist := e.protectiveDistances(price, klines)
	if pos.ActiveStopOrderID != "" {
		// Only the target is missing. A stop that has trailed to or past
		// the target level leaves nothing worth restoring.
		_, targetPrice := protectiveLevels(pos, stopDist, targetDist)
		if !targetBeyondStop(pos.Side, pos.ActiveStopPrice, targetPrice) {
			return nil
		}
		log.Printf("🔧 Engine: open %s position without a target, placing protection", pos.Side)
	} else {
		log.Printf("🔧 Engine: open %s position without a stop, placing protection", pos.Side)
	}
	return e.placeProtectiveOrders(ctx, stopDist, targetDist)
}

// protectiveLevels applies the never-loosen and never-degrade clamps to
// the levels recomputed from the weighted average entry.
func protectiveLevels(pos models.Position, stopDist, targetDist float64) (stopPrice, targetPrice float64) {
	if pos.Side == models.SideLong {
		stopPrice = pos.AvgEntryPrice - stopDist
		targetPrice = pos.AvgEntryPrice + targetDist
		if pos.ActiveStopPrice > 0 {
			stopPrice = math.Max(stopPrice, pos.ActiveStopPrice)
		}
		if pos.ActiveTargetPrice > 0 {
			targetPrice = math.Max(targetPrice, pos.ActiveTargetPrice)
		}
		return stopPrice, targetPrice
	}
	stopPrice = pos.AvgEntryPrice + stopDist
	targetPrice = pos.AvgEntryPrice - targetDist
	if pos.ActiveStopPrice > 0 {
		stopPrice = math.Min(stopPrice, pos.ActiveStopPrice)
	}
	if pos.ActiveTargetPrice > 0 {
		targetPrice = math.Min(targetPrice, pos.ActiveTargetPrice)
	}
	return stopPrice, targetPrice
}

// targetBeyondStop reports whether the target still exits at a better
// price than the stop.
func targetBeyondStop(side models.Side, stopPrice, targetPrice float64) bool {
	if side == models.SideLong {
		return targetPrice > stopPrice
	}
	return targetPrice < stopPrice
}

// placeProtectiveOrders consolidates protection for the whole position:
// exactly one stop and one target, computed from the weighted average
// entry. On re-entry the stop never loosens and the target never
// degrades relative to what an earlier entry already locked in.
func (e *Engine) placeProtectiveOrders(ctx context.Context, stopDist, targetDist float64) error {
	pos := e.ledger.Position()
	if !pos.IsOpen() {
		return nil
	}

	stopPrice, targetPrice := protectiveLevels(pos, stopDist, targetDist)

	// Old orders first, then reconcile, then place: any order left on the
	// venue at placement time that we did not just record is an orphan.
	if err := e.cancelReplacedOrders(ctx, pos); err != nil {
		return err
	}
	if err := e.reconcileOrphans(ctx); err != nil {
		return err
	}

	closeSide := orderSideFor(pos.Side, true)

	stopOrder, err := e.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Side:       closeSide,
		Type:       exchange.OrderTypeStopMarket,
		Quantity:   pos.TotalAmount,
		StopPrice:  stopPrice,
		ReduceOnly: true,
		ClientID:   "rb-" + uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("place stop: %w", err)
	}
	metrics.OrdersPlacedTotal.WithLabelValues(string(exchange.OrderTypeStopMarket)).Inc()

	if !targetBeyondStop(pos.Side, stopPrice, targetPrice) {
		// The stop alone already exits at a better price; a target here
		// would fire first at the worse one.
		_, err := e.ledger.SetProtectiveOrders(stopOrder.ID, stopPrice, "", 0)
		return err
	}

	targetOrder, err := e.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Side:       closeSide,
		Type:       exchange.OrderTypeTakeProfit,
		Quantity:   pos.TotalAmount,
		StopPrice:  targetPrice,
		ReduceOnly: true,
		ClientID:   "rb-" + uuid.NewString(),
	})
	if err != nil {
		// The stop is live and that is the one that matters; keep the
		// target level so next cycle's re-placement honors it.
		log.Printf("⚠️ Engine: place target: %v", err)
		_, lerr := e.ledger.SetProtectiveOrders(stopOrder.ID, stopPrice, "", targetPrice)
		if lerr != nil {
			return lerr
		}
		return nil
	}
	metrics.OrdersPlacedTotal.WithLabelValues(string(exchange.OrderTypeTakeProfit)).Inc()

	if _, err := e.ledger.SetProtectiveOrders(stopOrder.ID, stopPrice, targetOrder.ID, targetPrice); err != nil {
		return err
	}
	log.Printf("🛡️ Engine: protected %s %.8f, stop %.2f / target %.2f",
		pos.Side, pos.TotalAmount, stopPrice, targetPrice)
	return nil
}

// cancelReplacedOrders removes the previous protective pair before the
// consolidated replacement goes up.
func (e *Engine) cancelReplacedOrders(ctx context.Context, pos models.Position) error {
	for _, id := range []string{pos.ActiveStopOrderID, pos.ActiveTargetOrderID} {
		if id == "" {
			continue
		}
		if err := e.gateway.CancelOrder(ctx, id); err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
			return fmt.Errorf("cancel %s: %w", id, err)
		}
		metrics.OrdersCanceledTotal.Inc()
	}
	// Prices stay recorded so the replacement keeps the never-loosen
	// guarantee; only the IDs are gone.
	if _, err := e.ledger.SetProtectiveOrders("", pos.ActiveStopPrice, "", pos.ActiveTargetPrice); err != nil {
		return err
	}
	return nil
}

// manageTrailing moves the stop behind a profitable position. The stop
// only ever tightens, moves at most once per step, and never drops below
// the configured profit lock.
func (e *Engine) manageTrailing(ctx context.Context, price float64) error {
	pos := e.ledger.Position()
	if !pos.IsOpen() || pos.ActiveStopOrderID == "" || price <= 0 {
		return nil
	}
	t := e.cfg.Risk.Trailing
	long := pos.Side == models.SideLong

	profitPct := (price - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100
	if !long {
		profitPct = -profitPct
	}

	if !pos.TrailingActive {
		if profitPct < t.ActivatePct {
			return nil
		}
		if _, err := e.ledger.SetTrailing(true, pos.AvgEntryPrice); err != nil {
			return err
		}
		pos.TrailingActive = true
		pos.LastTrailPrice = pos.AvgEntryPrice
		log.Printf("📈 Engine: trailing activated at %.2f%% profit", profitPct)
		e.sink.Notify(notify.Event{
			Kind: notify.EventTrailing, Symbol: e.cfg.Symbol,
			Message: fmt.Sprintf("trailing armed at %.2f%% profit", profitPct),
			Time:    time.Now(),
		})
	}

	// Minimum favorable move since the last stop replacement.
	if pos.LastTrailPrice > 0 {
		movePct := (price - pos.LastTrailPrice) / pos.LastTrailPrice * 100
		if !long {
			movePct = -movePct
		}
		if movePct < t.StepPct {
			return nil
		}
	}

	var candidate float64
	if long {
		candidate = price * (1 - t.DistancePct/100)
		lock := pos.AvgEntryPrice * (1 + t.LockPct/100)
		candidate = math.Max(candidate, lock)
		if candidate <= pos.ActiveStopPrice {
			return nil
		}
	} else {
		candidate = price * (1 + t.DistancePct/100)
		lock := pos.AvgEntryPrice * (1 - t.LockPct/100)
		candidate = math.Min(candidate, lock)
		if candidate >= pos.ActiveStopPrice {
			return nil
		}
	}

	e.cancelOrderQuiet(ctx, pos.ActiveStopOrderID)

	stopOrder, err := e.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Side:       orderSideFor(pos.Side, true),
		Type:       exchange.OrderTypeStopMarket,
		Quantity:   pos.TotalAmount,
		StopPrice:  candidate,
		ReduceOnly: true,
		ClientID:   "rb-" + uuid.NewString(),
	})
	if err != nil {
		// The old stop is already cancelled; remember the trailed level
		// so next cycle's re-placement cannot loosen past it.
		e.ledger.SetProtectiveOrders("", candidate, pos.ActiveTargetOrderID, pos.ActiveTargetPrice)
		return fmt.Errorf("trail stop: %w", err)
	}
	metrics.OrdersPlacedTotal.WithLabelValues(string(exchange.OrderTypeStopMarket)).Inc()

	// A stop that has trailed past the target makes the target moot.
	targetID, targetPrice := pos.ActiveTargetOrderID, pos.ActiveTargetPrice
	passed := targetID != "" && ((long && candidate >= targetPrice) || (!long && candidate <= targetPrice))
	if passed {
		e.cancelOrderQuiet(ctx, targetID)
		metrics.OrdersCanceledTotal.Inc()
		targetID, targetPrice = "", 0
	}

	if _, err := e.ledger.SetProtectiveOrders(stopOrder.ID, candidate, targetID, targetPrice); err != nil {
		return err
	}
	if _, err := e.ledger.SetTrailing(true, price); err != nil {
		return err
	}
	log.Printf("📈 Engine: stop trailed to %.2f (price %.2f)", candidate, price)
	return nil
}
