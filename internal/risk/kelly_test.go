package risk

import (
	"math"
	"testing"
	"time"

	"riskbot/internal/models"
)

func kellyForTest() *KellyEstimator {
	return NewKellyEstimator(KellyConfig{
		Cap:              0.10,
		SafetyMultiplier: 0.5,
		MinHistory:       5,
		MaxHistory:       50,
	})
}

func outcome(id string, win bool, ratio float64) models.TradeOutcome {
	return models.TradeOutcome{StrategyID: id, Win: win, PnLRatio: ratio, ClosedAt: time.Now()}
}

func TestKellyEmptyHistoryReturnsMinFraction(t *testing.T) {
	k := kellyForTest()
	if got := k.Estimate("momentum", 0.002); got != 0.002 {
		t.Fatalf("Estimate = %.4f, want min fraction 0.002 with no history", got)
	}
}

func TestKellyBelowMinHistoryReturnsMinFraction(t *testing.T) {
	k := kellyForTest()
	for i := 0; i < 4; i++ {
		k.RecordOutcome(outcome("momentum", true, 0.02))
	}
	if got := k.Estimate("momentum", 0.002); got != 0.002 {
		t.Fatalf("Estimate = %.4f, want min fraction below min_history", got)
	}
}

func TestKellyFormulaWithHistory(t *testing.T) {
	k := kellyForTest()
	// 6 wins at +2%, 4 losses at -1%: p = 0.6, b = 2.
	for i := 0; i < 6; i++ {
		k.RecordOutcome(outcome("momentum", true, 0.02))
	}
	for i := 0; i < 4; i++ {
		k.RecordOutcome(outcome("momentum", false, -0.01))
	}

	// f* = (2*0.6 - 0.4)/2 = 0.4, clipped to cap 0.10, then * safety 0.5.
	want := 0.05
	if got := k.Estimate("momentum", 0.002); math.Abs(got-want) > 1e-9 {
		t.Fatalf("Estimate = %.4f, want %.4f", got, want)
	}
}

func TestKellyNegativeEdgeClipsToZero(t *testing.T) {
	k := kellyForTest()
	// 2 wins, 8 losses of equal size: p = 0.2, b = 1 → f* = -0.6 → 0.
	for i := 0; i < 2; i++ {
		k.RecordOutcome(outcome("momentum", true, 0.01))
	}
	for i := 0; i < 8; i++ {
		k.RecordOutcome(outcome("momentum", false, -0.01))
	}
	if got := k.Estimate("momentum", 0.002); got != 0 {
		t.Fatalf("Estimate = %.4f, want 0 for a losing strategy", got)
	}
}

func TestKellyAllWinsDegradesToMinFraction(t *testing.T) {
	k := kellyForTest()
	for i := 0; i < 10; i++ {
		k.RecordOutcome(outcome("momentum", true, 0.02))
	}
	// No losses means no win/loss ratio; degrade, never divide by zero.
	if got := k.Estimate("momentum", 0.002); got != 0.002 {
		t.Fatalf("Estimate = %.4f, want min fraction for degenerate history", got)
	}
}

func TestKellyHistoryIsPerStrategy(t *testing.T) {
	k := kellyForTest()
	for i := 0; i < 10; i++ {
		k.RecordOutcome(outcome("momentum", true, 0.02))
		k.RecordOutcome(outcome("momentum", false, -0.01))
	}
	if got := k.Estimate("meanrev", 0.002); got != 0.002 {
		t.Fatalf("Estimate = %.4f, other strategies' history must not leak", got)
	}
}

func TestKellyHistoryTrimmed(t *testing.T) {
	k := NewKellyEstimator(KellyConfig{Cap: 0.1, SafetyMultiplier: 0.5, MinHistory: 5, MaxHistory: 10})
	for i := 0; i < 25; i++ {
		k.RecordOutcome(outcome("momentum", true, 0.02))
	}
	if got := k.HistoryLen("momentum"); got != 10 {
		t.Fatalf("HistoryLen = %d, want rolling window of 10", got)
	}
}

func TestKellySnapshotRestore(t *testing.T) {
	k := kellyForTest()
	for i := 0; i < 6; i++ {
		k.RecordOutcome(outcome("momentum", true, 0.02))
	}
	for i := 0; i < 4; i++ {
		k.RecordOutcome(outcome("momentum", false, -0.01))
	}

	var st models.RiskState
	k.Snapshot(&st)

	fresh := kellyForTest()
	fresh.Restore(st)
	if fresh.Estimate("momentum", 0.002) != k.Estimate("momentum", 0.002) {
		t.Fatal("restored estimator must reproduce the original estimate")
	}
}
