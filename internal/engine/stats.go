package engine

import (
	"time"

	"riskbot/internal/models"
)

// Status is the live view served over HTTP.
type Status struct {
	Symbol       string                    `json:"symbol"`
	Price        float64                   `json:"price"`
	Position     models.Position           `json:"position"`
	Drawdown     float64                   `json:"drawdown"`
	Paused       bool                      `json:"paused"`
	LastSignal   models.AggregatedDecision `json:"last_signal"`
	LastDecision models.RiskDecision       `json:"last_decision"`
}

// Status returns the current engine view.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Symbol:       e.cfg.Symbol,
		Price:        e.lastPrice,
		Position:     e.ledger.Position(),
		Drawdown:     e.guard.Drawdown(),
		Paused:       e.guard.IsPaused(),
		LastSignal:   e.lastSignal,
		LastDecision: e.lastDecision,
	}
}

// Trades returns a copy of the closed-trade history.
func (e *Engine) Trades() []models.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.Trade(nil), e.trades...)
}

// Stats aggregates the closed-trade history plus the open position's
// mark-to-market at the last cycle price.
func (e *Engine) Stats() models.Stats {
	e.mu.RLock()
	trades := append([]models.Trade(nil), e.trades...)
	price := e.lastPrice
	e.mu.RUnlock()

	var st models.Stats
	if pos := e.ledger.Position(); pos.IsOpen() && price > 0 {
		upl := (price - pos.AvgEntryPrice) * pos.TotalAmount
		if pos.Side == models.SideShort {
			upl = -upl
		}
		st.UnrealizedPL = upl
	}

	st.TotalTrades = len(trades)
	if len(trades) == 0 {
		st.TotalPL = st.UnrealizedPL
		return st
	}

	var profitSum, lossSum float64
	var holdSum time.Duration
	for _, t := range trades {
		st.RealizedPL += t.RealizedPL
		holdSum += t.Duration
		if t.RealizedPL > 0 {
			st.ProfitableTrades++
			profitSum += t.RealizedPL
			if t.RealizedPL > st.MaxProfit {
				st.MaxProfit = t.RealizedPL
			}
		} else {
			st.LosingTrades++
			lossSum += t.RealizedPL
			if t.RealizedPL < st.MaxLoss {
				st.MaxLoss = t.RealizedPL
			}
		}
	}
	st.TotalPL = st.RealizedPL + st.UnrealizedPL
	st.WinRate = float64(st.ProfitableTrades) / float64(st.TotalTrades) * 100
	if st.ProfitableTrades > 0 {
		st.AvgProfit = profitSum / float64(st.ProfitableTrades)
	}
	if st.LosingTrades > 0 {
		st.AvgLoss = lossSum / float64(st.LosingTrades)
	}
	st.AvgHoldTime = holdSum / time.Duration(st.TotalTrades)
	return st
}
