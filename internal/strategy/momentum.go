package strategy

import (
	"fmt"
	"time"

	"riskbot/internal/exchange"
	"riskbot/internal/models"
)

// Momentum signals in the direction of an EMA crossover, filtered by
// RSI so it does not chase already-exhausted moves.
type Momentum struct {
	FastPeriod int
	SlowPeriod int
	RSIPeriod  int
}

func NewMomentum() *Momentum {
	return &Momentum{FastPeriod: 9, SlowPeriod: 21, RSIPeriod: 14}
}

func (m *Momentum) ID() string { return "momentum" }

func (m *Momentum) Evaluate(klines []exchange.Kline, price float64) models.StrategySignal {
	sig := models.StrategySignal{
		StrategyID:     m.ID(),
		Timestamp:      time.Now(),
		Action:         models.ActionHold,
		ReferencePrice: price,
	}
	if len(klines) < m.SlowPeriod+1 {
		sig.Reason = "insufficient history"
		return sig
	}

	closes := Closes(klines)
	fast := EMA(closes, m.FastPeriod)
	slow := EMA(closes, m.SlowPeriod)
	rsi := RSI(closes, m.RSIPeriod)
	if slow == 0 {
		sig.Reason = "insufficient history"
		return sig
	}

	// Spread of the EMAs relative to price measures trend strength.
	spread := (fast - slow) / slow
	strength := abs(spread) * 100
	if strength > 1 {
		strength = 1
	}
	sig.Strength = strength

	switch {
	case spread > 0 && rsi < 70:
		sig.Action = models.ActionBuy
		sig.Confidence = 0.5 + 0.5*strength
		sig.Reason = fmt.Sprintf("EMA%d above EMA%d, RSI %.1f", m.FastPeriod, m.SlowPeriod, rsi)
	case spread < 0 && rsi > 30:
		sig.Action = models.ActionSell
		sig.Confidence = 0.5 + 0.5*strength
		sig.Reason = fmt.Sprintf("EMA%d below EMA%d, RSI %.1f", m.FastPeriod, m.SlowPeriod, rsi)
	default:
		sig.Reason = fmt.Sprintf("trend exhausted, RSI %.1f", rsi)
	}
	return sig
}
