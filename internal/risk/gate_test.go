package risk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"riskbot/internal/models"
)

type stubMargin struct {
	ratio float64
	err   error
}

func (s stubMargin) MarginRatio(_ context.Context, _ float64) (float64, error) {
	return s.ratio, s.err
}

func gateForTest(margin MarginSource) (*Gate, *DrawdownGuard) {
	guard := NewDrawdownGuard(0.20, 0.10)
	guard.Update(10_000)
	detector := NewAnomalyDetector(AnomalyConfig{
		MaxPriceMovePct: 5.0,
		MoveWindow:      5 * time.Minute,
		VolumeSpikeMult: 3.0,
		MaxAPILatency:   2 * time.Second,
		MaxMemoryPct:    80,
	})
	sizer := sizerForTest(kellyForTest())
	g := NewGate(GateConfig{
		CriticalMarginRatio: 0.80,
		DenyScore:           80,
		WarnScore:           60,
		MaxDrawdown:         0.20,
	}, detector, guard, sizer, margin)
	return g, guard
}

func gateInput() GateInput {
	return GateInput{
		Decision:     models.AggregatedDecision{Action: models.ActionBuy, Confidence: 0.7},
		Position:     models.Position{Side: models.SideNone},
		StrategyID:   "momentum",
		Equity:       10_000,
		FreeBalance:  10_000,
		Price:        50_000,
		StopDistance: 1_000,
		Market:       MarketSnapshot{Price: 50_000, WindowOpen: 50_000, Volume: 100, AvgVolume: 100},
	}
}

func TestGateApprovesCleanEntry(t *testing.T) {
	g, _ := gateForTest(stubMargin{ratio: 0.95})

	dec := g.Evaluate(context.Background(), gateInput())
	if !dec.Approved {
		t.Fatalf("denied: %s", dec.DenyReason)
	}
	if dec.PositionSize <= 0 {
		t.Fatal("approved decision must carry a positive size")
	}
}

func TestGateDeniesBelowCriticalMargin(t *testing.T) {
	// Projected 75% against an 80% critical threshold.
	g, _ := gateForTest(stubMargin{ratio: 0.75})

	dec := g.Evaluate(context.Background(), gateInput())
	if dec.Approved {
		t.Fatal("expected denial below the critical margin ratio")
	}
	if dec.PositionSize != 0 {
		t.Fatalf("denied decision carries size %.6f, want 0", dec.PositionSize)
	}
	if !strings.Contains(dec.DenyReason, "margin ratio") {
		t.Fatalf("deny reason %q must mention the margin ratio", dec.DenyReason)
	}
}

func TestGateDeniesOnMarginLookupError(t *testing.T) {
	g, _ := gateForTest(stubMargin{err: errors.New("timeout")})

	dec := g.Evaluate(context.Background(), gateInput())
	if dec.Approved {
		t.Fatal("a margin lookup error must deny, never approve")
	}
	if dec.PositionSize != 0 {
		t.Fatal("denied decision must carry zero size")
	}
}

func TestGateDeniesWhilePaused(t *testing.T) {
	g, guard := gateForTest(stubMargin{ratio: 0.95})
	guard.Update(7_500) // 25% drawdown → paused

	dec := g.Evaluate(context.Background(), gateInput())
	if dec.Approved {
		t.Fatal("expected denial while the drawdown breaker is paused")
	}
	if !strings.Contains(dec.DenyReason, "paused") {
		t.Fatalf("deny reason %q must mention the pause", dec.DenyReason)
	}
}

func TestGateDeniesOnCriticalAnomaly(t *testing.T) {
	g, _ := gateForTest(stubMargin{ratio: 0.95})

	in := gateInput()
	in.Market.WindowOpen = 50_000
	in.Market.Price = 54_000 // 8% move over the window

	dec := g.Evaluate(context.Background(), in)
	if dec.Approved {
		t.Fatal("expected denial on a price shock")
	}
	if !strings.Contains(dec.DenyReason, "anomaly") {
		t.Fatalf("deny reason %q must mention the anomaly", dec.DenyReason)
	}
}

func TestGateWarningAnomalyRaisesScoreOnly(t *testing.T) {
	g, _ := gateForTest(stubMargin{ratio: 0.95})

	in := gateInput()
	in.Market.Volume = 500 // 5x average: a warning, not critical
	in.System.APILatency = 3 * time.Second

	dec := g.Evaluate(context.Background(), in)
	if !dec.Approved {
		t.Fatalf("warnings alone must not deny, got: %s", dec.DenyReason)
	}
	if dec.RiskScore <= 0 {
		t.Fatal("warning flags must raise the risk score")
	}
}

func TestGateDeniedImpliesZeroSize(t *testing.T) {
	cases := []stubMargin{
		{ratio: 0.10},
		{err: errors.New("boom")},
	}
	for _, m := range cases {
		g, _ := gateForTest(m)
		dec := g.Evaluate(context.Background(), gateInput())
		if !dec.Approved && dec.PositionSize != 0 {
			t.Fatalf("invariant violated: approved=false with size %.6f", dec.PositionSize)
		}
	}
}
