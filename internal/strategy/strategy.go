package strategy

import (
	"riskbot/internal/exchange"
	"riskbot/internal/models"
)

// Strategy turns candle history into one signal per cycle. Producers
// never touch the venue; they only read market data.
type Strategy interface {
	ID() string
	Evaluate(klines []exchange.Kline, price float64) models.StrategySignal
}
