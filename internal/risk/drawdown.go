package risk

import (
	"log"
	"sync"

	"riskbot/internal/models"
)

// DrawdownGuard tracks peak-to-trough equity drawdown and flips a trading
// breaker with hysteresis: it pauses at maxDrawdown and only resumes once the
// drawdown falls back below resumeDrawdown, so it cannot flap between the two.
type DrawdownGuard struct {
	mu             sync.RWMutex
	maxDrawdown    float64
	resumeDrawdown float64

	peakEquity    float64
	currentEquity float64
	paused        bool
}

func NewDrawdownGuard(maxDrawdown, resumeDrawdown float64) *DrawdownGuard {
	return &DrawdownGuard{
		maxDrawdown:    maxDrawdown,
		resumeDrawdown: resumeDrawdown,
	}
}

// Update records the current equity and returns whether trading is paused.
// Transitions are logged with the old and new state.
func (g *DrawdownGuard) Update(currentEquity float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.currentEquity = currentEquity
	if currentEquity > g.peakEquity {
		g.peakEquity = currentEquity
	}

	dd := g.drawdownLocked()
	switch {
	case !g.paused && dd >= g.maxDrawdown:
		g.paused = true
		log.Printf("⚠️ DrawdownGuard: ACTIVE → PAUSED (drawdown %.2f%% ≥ %.2f%%)", dd*100, g.maxDrawdown*100)
	case g.paused && dd < g.resumeDrawdown:
		g.paused = false
		log.Printf("✅ DrawdownGuard: PAUSED → ACTIVE (drawdown %.2f%% < %.2f%%)", dd*100, g.resumeDrawdown*100)
	}
	return g.paused
}

// IsPaused reports the breaker state.
func (g *DrawdownGuard) IsPaused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// Drawdown returns the current peak-to-trough ratio in [0, 1].
func (g *DrawdownGuard) Drawdown() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.drawdownLocked()
}

func (g *DrawdownGuard) drawdownLocked() float64 {
	if g.peakEquity <= 0 {
		return 0
	}
	return (g.peakEquity - g.currentEquity) / g.peakEquity
}

// Snapshot copies the guard state into a RiskState for persistence.
func (g *DrawdownGuard) Snapshot(st *models.RiskState) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st.PeakEquity = g.peakEquity
	st.CurrentEquity = g.currentEquity
	st.DrawdownRatio = g.drawdownLocked()
	st.TradingPaused = g.paused
}

// Restore loads persisted state so a pause survives restarts.
func (g *DrawdownGuard) Restore(st models.RiskState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.peakEquity = st.PeakEquity
	g.currentEquity = st.CurrentEquity
	g.paused = st.TradingPaused
}
