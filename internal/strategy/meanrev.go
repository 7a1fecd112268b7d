package strategy

import (
	"fmt"
	"time"

	"riskbot/internal/exchange"
	"riskbot/internal/models"
)

// MeanReversion fades RSI extremes: buys oversold, sells overbought.
type MeanReversion struct {
	RSIPeriod  int
	Oversold   float64
	Overbought float64
}

func NewMeanReversion() *MeanReversion {
	return &MeanReversion{RSIPeriod: 14, Oversold: 30, Overbought: 70}
}

func (m *MeanReversion) ID() string { return "meanrev" }

func (m *MeanReversion) Evaluate(klines []exchange.Kline, price float64) models.StrategySignal {
	sig := models.StrategySignal{
		StrategyID:     m.ID(),
		Timestamp:      time.Now(),
		Action:         models.ActionHold,
		ReferencePrice: price,
	}
	if len(klines) <= m.RSIPeriod {
		sig.Reason = "insufficient history"
		return sig
	}

	rsi := RSI(Closes(klines), m.RSIPeriod)
	switch {
	case rsi <= m.Oversold:
		depth := (m.Oversold - rsi) / m.Oversold // 0 at the threshold, 1 at RSI 0
		sig.Action = models.ActionBuy
		sig.Strength = depth
		sig.Confidence = 0.5 + 0.5*depth
		sig.Reason = fmt.Sprintf("oversold, RSI %.1f", rsi)
	case rsi >= m.Overbought:
		depth := (rsi - m.Overbought) / (100 - m.Overbought)
		sig.Action = models.ActionSell
		sig.Strength = depth
		sig.Confidence = 0.5 + 0.5*depth
		sig.Reason = fmt.Sprintf("overbought, RSI %.1f", rsi)
	default:
		sig.Reason = fmt.Sprintf("RSI %.1f in neutral band", rsi)
	}
	return sig
}
