package strategy

import (
	"math"
	"testing"
	"time"

	"riskbot/internal/exchange"
	"riskbot/internal/models"
)

func flatKlines(n int, price, volume float64) []exchange.Kline {
	ks := make([]exchange.Kline, n)
	for i := range ks {
		ks[i] = exchange.Kline{
			OpenTime: time.Now().Add(time.Duration(i-n) * time.Minute),
			Open:     price, High: price, Low: price, Close: price,
			Volume: volume,
		}
	}
	return ks
}

func TestEMAFlatSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	if got := EMA(closes, 9); math.Abs(got-100) > 1e-9 {
		t.Fatalf("EMA = %.6f, want 100 on a flat series", got)
	}
}

func TestEMAInsufficientHistory(t *testing.T) {
	if got := EMA([]float64{1, 2, 3}, 9); got != 0 {
		t.Fatalf("EMA = %.6f, want 0 with short history", got)
	}
}

func TestRSIAllGainsSaturates(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	if got := RSI(closes, 14); got != 100 {
		t.Fatalf("RSI = %.2f, want 100 for monotone gains", got)
	}
}

func TestRSIAllLossesNearZero(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	if got := RSI(closes, 14); got > 1 {
		t.Fatalf("RSI = %.2f, want near 0 for monotone losses", got)
	}
}

func TestRSINeutralDefault(t *testing.T) {
	if got := RSI([]float64{1, 2}, 14); got != 50 {
		t.Fatalf("RSI = %.2f, want neutral 50 with short history", got)
	}
}

func TestATRConstantRange(t *testing.T) {
	ks := make([]exchange.Kline, 20)
	for i := range ks {
		ks[i] = exchange.Kline{Open: 100, High: 102, Low: 98, Close: 100}
	}
	if got := ATR(ks, 14); math.Abs(got-4) > 1e-9 {
		t.Fatalf("ATR = %.4f, want 4 for a constant 98..102 range", got)
	}
}

func TestAvgVolume(t *testing.T) {
	ks := flatKlines(10, 100, 5)
	if got := AvgVolume(ks, 4); math.Abs(got-5) > 1e-12 {
		t.Fatalf("AvgVolume = %.4f, want 5", got)
	}
	if got := AvgVolume(nil, 4); got != 0 {
		t.Fatalf("AvgVolume = %.4f on empty history, want 0", got)
	}
}

func TestMomentumHoldsOnFlatMarket(t *testing.T) {
	m := NewMomentum()
	sig := m.Evaluate(flatKlines(40, 100, 5), 100)
	if sig.Action != models.ActionHold {
		t.Fatalf("action = %s, want HOLD on a flat market", sig.Action)
	}
}

func TestMeanReversionBuysOversold(t *testing.T) {
	ks := make([]exchange.Kline, 30)
	price := 100.0
	for i := range ks {
		price -= 1
		ks[i] = exchange.Kline{Open: price + 1, High: price + 1, Low: price, Close: price}
	}
	sig := NewMeanReversion().Evaluate(ks, price)
	if sig.Action != models.ActionBuy {
		t.Fatalf("action = %s, want BUY after a straight decline", sig.Action)
	}
	if sig.Confidence <= 0.5 {
		t.Fatalf("confidence = %.2f, want > 0.5 at a deep extreme", sig.Confidence)
	}
}
