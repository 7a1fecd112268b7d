package risk

import (
	"testing"

	"riskbot/internal/models"
)

func TestDrawdownPauseAndResume(t *testing.T) {
	g := NewDrawdownGuard(0.20, 0.10)

	g.Update(100_000)
	if g.IsPaused() {
		t.Fatal("fresh guard must not be paused")
	}

	// 21% drawdown breaches the 20% limit.
	if paused := g.Update(79_000); !paused {
		t.Fatal("expected pause at 21%% drawdown")
	}

	// Recovery to 8% drawdown is below the 10% resume threshold.
	if paused := g.Update(92_000); paused {
		t.Fatal("expected resume at 8%% drawdown")
	}
}

func TestDrawdownHysteresis(t *testing.T) {
	g := NewDrawdownGuard(0.20, 0.10)

	g.Update(100_000)
	g.Update(79_000) // paused at 21%

	// 15% drawdown sits between resume (10%) and max (20%): still paused.
	if paused := g.Update(85_000); !paused {
		t.Fatal("guard must stay paused between resume and max thresholds")
	}

	// Dip back down then recover: still one single PAUSED episode.
	g.Update(80_000)
	if !g.IsPaused() {
		t.Fatal("guard must stay paused at 20%% drawdown")
	}
	if paused := g.Update(95_000); paused {
		t.Fatal("expected resume at 5%% drawdown")
	}
}

func TestDrawdownPeakTracksNewHighs(t *testing.T) {
	g := NewDrawdownGuard(0.20, 0.10)

	g.Update(100_000)
	g.Update(110_000)
	// 21% below the NEW peak of 110k.
	if paused := g.Update(86_900); !paused {
		t.Fatalf("drawdown = %.4f, expected pause against the new peak", g.Drawdown())
	}
}

func TestDrawdownSnapshotRestore(t *testing.T) {
	g := NewDrawdownGuard(0.20, 0.10)
	g.Update(100_000)
	g.Update(79_000)

	var st models.RiskState
	g.Snapshot(&st)
	if !st.TradingPaused || st.PeakEquity != 100_000 {
		t.Fatalf("snapshot = %+v", st)
	}

	// A restarted guard must come back paused.
	fresh := NewDrawdownGuard(0.20, 0.10)
	fresh.Restore(st)
	if !fresh.IsPaused() {
		t.Fatal("restored guard must still be paused")
	}
	if fresh.Drawdown() < 0.20 {
		t.Fatalf("restored drawdown = %.4f, want ≥ 0.20", fresh.Drawdown())
	}
}
