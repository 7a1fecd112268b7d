package risk

import (
	"sync"

	"riskbot/internal/models"
)

// KellyConfig holds the estimator parameters. Cap bounds the raw Kelly
// fraction; SafetyMultiplier shrinks it further (fractional Kelly).
type KellyConfig struct {
	Cap              float64
	SafetyMultiplier float64
	MinHistory       int
	MaxHistory       int
}

// KellyEstimator keeps a rolling per-strategy trade-outcome history and
// derives an optimal capital fraction from observed win rate and win/loss
// ratio: f* = (b·p − (1−p)) / b.
type KellyEstimator struct {
	mu       sync.RWMutex
	cfg      KellyConfig
	outcomes map[string][]models.TradeOutcome
}

func NewKellyEstimator(cfg KellyConfig) *KellyEstimator {
	return &KellyEstimator{
		cfg:      cfg,
		outcomes: make(map[string][]models.TradeOutcome),
	}
}

// Estimate returns the fraction of equity to commit for the given strategy.
// With fewer than MinHistory recorded outcomes it returns minFraction (the
// venue minimum converted to a fraction by the caller), so the first trades
// establish history at minimal size. It never fails: malformed history
// degrades to the minimal branch.
func (k *KellyEstimator) Estimate(strategyID string, minFraction float64) float64 {
	k.mu.RLock()
	hist := k.outcomes[strategyID]
	k.mu.RUnlock()

	if len(hist) < k.cfg.MinHistory {
		return minFraction
	}

	wins := 0
	winSum := 0.0
	lossSum := 0.0
	for _, o := range hist {
		if o.Win {
			wins++
			winSum += o.PnLRatio
		} else {
			lossSum -= o.PnLRatio // loss ratios are negative
		}
	}

	losses := len(hist) - wins
	if wins == 0 || losses == 0 || winSum <= 0 || lossSum <= 0 {
		// Degenerate history (all wins, all losses, or zero-sized outcomes):
		// no meaningful win/loss ratio, fall back to the minimal fraction.
		return minFraction
	}

	p := float64(wins) / float64(len(hist))
	b := (winSum / float64(wins)) / (lossSum / float64(losses))

	f := (b*p - (1 - p)) / b
	if f < 0 {
		f = 0
	}
	if f > k.cfg.Cap {
		f = k.cfg.Cap
	}
	return f * k.cfg.SafetyMultiplier
}

// RecordOutcome appends a closed trade to the strategy's rolling history.
func (k *KellyEstimator) RecordOutcome(o models.TradeOutcome) {
	k.mu.Lock()
	defer k.mu.Unlock()

	hist := append(k.outcomes[o.StrategyID], o)
	if max := k.cfg.MaxHistory; max > 0 && len(hist) > max {
		hist = hist[len(hist)-max:]
	}
	k.outcomes[o.StrategyID] = hist
}

// HistoryLen returns the number of recorded outcomes for a strategy.
func (k *KellyEstimator) HistoryLen(strategyID string) int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.outcomes[strategyID])
}

// Snapshot copies the history into a RiskState for persistence.
func (k *KellyEstimator) Snapshot(st *models.RiskState) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	st.Outcomes = make(map[string][]models.TradeOutcome, len(k.outcomes))
	for id, hist := range k.outcomes {
		st.Outcomes[id] = append([]models.TradeOutcome(nil), hist...)
	}
}

// Restore loads persisted history so sizing survives restarts.
func (k *KellyEstimator) Restore(st models.RiskState) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.outcomes = make(map[string][]models.TradeOutcome, len(st.Outcomes))
	for id, hist := range st.Outcomes {
		k.outcomes[id] = append([]models.TradeOutcome(nil), hist...)
	}
}
