package risk

import (
	"context"
	"fmt"
	"log"
	"math"

	"riskbot/internal/models"
)

// MarginSource projects the post-entry margin ratio for a candidate size.
// Implemented by the exchange gateway; treated as fallible.
type MarginSource interface {
	MarginRatio(ctx context.Context, candidateSize float64) (float64, error)
}

// GateConfig holds the gate thresholds.
type GateConfig struct {
	CriticalMarginRatio float64
	DenyScore           float64
	WarnScore           float64
	MaxDrawdown         float64 // for the distance-to-limit score component
}

// Gate runs the sequential risk checks in front of every entry: anomaly,
// drawdown breaker, margin projection, and a bounded risk score. Checks
// short-circuit on the first denial, and any sub-check error is treated as
// worst case and denies — the gate never propagates an error to the caller.
type Gate struct {
	cfg     GateConfig
	anomaly *AnomalyDetector
	guard   *DrawdownGuard
	sizer   *PositionSizer
	margin  MarginSource
}

func NewGate(cfg GateConfig, anomaly *AnomalyDetector, guard *DrawdownGuard, sizer *PositionSizer, margin MarginSource) *Gate {
	return &Gate{cfg: cfg, anomaly: anomaly, guard: guard, sizer: sizer, margin: margin}
}

// GateInput is the full context for one evaluation.
type GateInput struct {
	Decision models.AggregatedDecision
	Position models.Position

	StrategyID   string // dominant strategy, for Kelly history lookup
	Equity       float64
	FreeBalance  float64
	Price        float64
	StopDistance float64

	Market MarketSnapshot
	System SystemMetrics
}

func deny(score float64, format string, args ...any) models.RiskDecision {
	return models.RiskDecision{
		Approved:     false,
		PositionSize: 0,
		RiskScore:    score,
		DenyReason:   fmt.Sprintf(format, args...),
	}
}

// Evaluate runs the checks in order and returns an approve/deny decision with
// a position size. Approved == false always carries PositionSize == 0 and a
// human-readable reason.
func (g *Gate) Evaluate(ctx context.Context, in GateInput) models.RiskDecision {
	// 1. Anomaly check: any critical flag denies outright.
	flags := g.anomaly.Check(in.Market, in.System)
	if WorstSeverity(flags) == SeverityCritical {
		for _, f := range flags {
			if f.Severity == SeverityCritical {
				return deny(100, "anomaly: %s", f.Detail)
			}
		}
	}

	// 2. Drawdown breaker.
	if g.guard.IsPaused() {
		return deny(100, "trading paused: drawdown %.2f%% breached the limit", g.guard.Drawdown()*100)
	}

	// 3. Candidate size. A zero size means at least one sizing input vetoed
	// the trade; there is nothing to gate further.
	size := g.sizer.Size(SizeInput{
		StrategyID:   in.StrategyID,
		Confidence:   in.Decision.Confidence,
		Equity:       in.Equity,
		FreeBalance:  in.FreeBalance,
		Price:        in.Price,
		StopDistance: in.StopDistance,
	})
	if size <= 0 {
		return deny(0, "position size computed as zero")
	}

	// 4. Margin-ratio projection. Runs even with no open position, and only
	// ever blocks this new entry. A lookup error assumes the worst case.
	ratio, err := g.margin.MarginRatio(ctx, size)
	if err != nil {
		return deny(100, "margin ratio lookup failed (%v); assuming worst case", err)
	}
	if ratio < g.cfg.CriticalMarginRatio {
		return deny(90, "projected margin ratio %.1f%% below critical threshold %.1f%%",
			ratio*100, g.cfg.CriticalMarginRatio*100)
	}

	// 5. Bounded risk score.
	score := g.riskScore(in, size, flags)
	if score >= g.cfg.DenyScore {
		return deny(score, "risk score %.0f at or above deny threshold %.0f", score, g.cfg.DenyScore)
	}
	if score >= g.cfg.WarnScore {
		log.Printf("⚠️ RiskGate: score %.0f in warning band (deny at %.0f), approving %s size %.6f",
			score, g.cfg.DenyScore, in.Decision.Action, size)
	}

	return models.RiskDecision{Approved: true, PositionSize: size, RiskScore: score}
}

// riskScore combines distance to the drawdown limit, position concentration,
// and anomaly severity into [0, 100].
func (g *Gate) riskScore(in GateInput, size float64, flags []AnomalyFlag) float64 {
	// Distance to the drawdown limit: 0 at no drawdown, 1 at the breaker.
	ddPart := 0.0
	if g.cfg.MaxDrawdown > 0 {
		ddPart = math.Min(1, g.guard.Drawdown()/g.cfg.MaxDrawdown)
	}

	// Concentration: existing plus candidate notional relative to equity.
	concPart := 0.0
	if in.Equity > 0 {
		notional := in.Position.TotalAmount*in.Price + size*in.Price
		concPart = math.Min(1, notional/in.Equity)
	}

	// Anomaly severity: warnings stack, a critical flag saturates.
	anomalyPart := 0.0
	for _, f := range flags {
		if f.Severity == SeverityCritical {
			anomalyPart = 1
			break
		}
		anomalyPart += 0.34
	}
	anomalyPart = math.Min(1, anomalyPart)

	return 40*ddPart + 30*concPart + 30*anomalyPart
}
