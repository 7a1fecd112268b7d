package risk

import "math"

// SizingConfig holds the three sizing inputs: confidence tiers, the
// configured risk per trade, and the venue minimum order size.
type SizingConfig struct {
	LowConfidence  float64 // tier boundary
	HighConfidence float64 // tier boundary
	LowTierPct     float64 // equity fraction for low confidence
	MidTierPct     float64
	HighTierPct    float64

	RiskPerTradePct float64 // fraction of equity risked between entry and stop
	MinOrderSize    float64 // venue minimum, base units
}

// SizeInput carries everything the sizer needs for one decision.
type SizeInput struct {
	StrategyID   string
	Confidence   float64
	Equity       float64
	FreeBalance  float64
	Price        float64
	StopDistance float64 // quote distance between entry and the planned stop
}

// PositionSizer blends confidence-tiered sizing, Kelly sizing, and
// configured-risk sizing, and always returns the most conservative of the
// three. One over-sizing signal must never be outvoted by the other two.
type PositionSizer struct {
	cfg   SizingConfig
	kelly *KellyEstimator
}

func NewPositionSizer(cfg SizingConfig, kelly *KellyEstimator) *PositionSizer {
	return &PositionSizer{cfg: cfg, kelly: kelly}
}

// Size returns the position size in base-asset units: min of the three
// candidates, floored up to the venue minimum only when all three candidates
// are non-zero and the free balance covers the minimum lot.
func (s *PositionSizer) Size(in SizeInput) float64 {
	if in.Equity <= 0 || in.Price <= 0 {
		return 0
	}

	tier := s.tierSize(in)
	kelly := s.kellySize(in)
	configured := s.configuredSize(in)

	size := math.Min(tier, math.Min(kelly, configured))
	if size <= 0 {
		return 0
	}

	// Minimum lot takes priority for small accounts, but only when all three
	// candidates agree a trade should happen at all.
	if size < s.cfg.MinOrderSize && tier > 0 && kelly > 0 && configured > 0 {
		if in.FreeBalance >= s.cfg.MinOrderSize*in.Price {
			return s.cfg.MinOrderSize
		}
		return 0
	}
	return size
}

func (s *PositionSizer) tierSize(in SizeInput) float64 {
	var pct float64
	switch {
	case in.Confidence < s.cfg.LowConfidence:
		pct = s.cfg.LowTierPct
	case in.Confidence < s.cfg.HighConfidence:
		pct = s.cfg.MidTierPct
	default:
		pct = s.cfg.HighTierPct
	}
	return in.Equity * pct / in.Price
}

func (s *PositionSizer) kellySize(in SizeInput) float64 {
	minFraction := s.cfg.MinOrderSize * in.Price / in.Equity
	f := s.kelly.Estimate(in.StrategyID, minFraction)
	return in.Equity * f / in.Price
}

func (s *PositionSizer) configuredSize(in SizeInput) float64 {
	riskAmount := in.Equity * s.cfg.RiskPerTradePct
	if in.StopDistance > 0 {
		// Size such that a stop-out loses exactly the configured risk.
		return riskAmount / in.StopDistance
	}
	return riskAmount / in.Price
}
