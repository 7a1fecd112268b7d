package signal

import (
	"fmt"

	"riskbot/internal/models"
)

// Aggregator merges per-strategy signals into one decision using weighted
// confidence voting. It is a pure function of its inputs: no I/O, no state.
type Aggregator struct {
	conflictMargin float64
}

func NewAggregator(conflictMargin float64) *Aggregator {
	return &Aggregator{conflictMargin: conflictMargin}
}

// Aggregate groups signals by action and resolves buy/sell conflicts.
// Strategies missing from the weight map count with weight 0.
func (a *Aggregator) Aggregate(signals []models.StrategySignal, weights map[string]float64) models.AggregatedDecision {
	buyConf := 0.0
	sellConf := 0.0
	closeConf := 0.0
	buyReason := ""
	sellReason := ""
	closeReason := ""

	for _, s := range signals {
		w := weights[s.StrategyID]
		wc := s.Confidence * w
		switch s.Action {
		case models.ActionBuy:
			buyConf += wc
			buyReason = pickReason(buyReason, s)
		case models.ActionSell:
			sellConf += wc
			sellReason = pickReason(sellReason, s)
		case models.ActionClose:
			closeConf += wc
			closeReason = pickReason(closeReason, s)
		}
	}

	// A close request is risk-reducing and takes precedence over new entries.
	if closeConf > 0 {
		if closeConf > 1 {
			closeConf = 1
		}
		return models.AggregatedDecision{Action: models.ActionClose, Confidence: closeConf, DominantReason: closeReason}
	}

	// Weighted confidences are sums, clipped to 1.0.
	if buyConf > 1 {
		buyConf = 1
	}
	if sellConf > 1 {
		sellConf = 1
	}

	switch {
	case buyConf == 0 && sellConf == 0:
		return models.AggregatedDecision{Action: models.ActionHold}

	case buyConf > 0 && sellConf > 0:
		// Both sides present: a conflict, always recorded for audit.
		diff := buyConf - sellConf
		if diff < 0 {
			diff = -diff
		}
		if diff < a.conflictMargin {
			return models.AggregatedDecision{
				Action:         models.ActionHold,
				Conflicting:    true,
				DominantReason: fmt.Sprintf("conflict: buy %.2f vs sell %.2f within margin %.2f", buyConf, sellConf, a.conflictMargin),
			}
		}
		if buyConf > sellConf {
			return models.AggregatedDecision{
				Action:         models.ActionBuy,
				Confidence:     buyConf,
				Conflicting:    true,
				DominantReason: buyReason,
			}
		}
		return models.AggregatedDecision{
			Action:         models.ActionSell,
			Confidence:     sellConf,
			Conflicting:    true,
			DominantReason: sellReason,
		}

	case buyConf > 0:
		return models.AggregatedDecision{Action: models.ActionBuy, Confidence: buyConf, DominantReason: buyReason}

	default:
		return models.AggregatedDecision{Action: models.ActionSell, Confidence: sellConf, DominantReason: sellReason}
	}
}

// pickReason keeps the first non-empty reason seen for a side.
func pickReason(current string, s models.StrategySignal) string {
	if current != "" {
		return current
	}
	if s.Reason != "" {
		return fmt.Sprintf("%s: %s", s.StrategyID, s.Reason)
	}
	return s.StrategyID
}
