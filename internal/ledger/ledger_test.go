package ledger

import (
	"math"
	"testing"

	"riskbot/internal/models"
)

func TestRecordEntryWeightedAverage(t *testing.T) {
	l := New("BTCUSDT", nil)

	if _, err := l.RecordEntry(models.SideLong, 10_000_000, 0.001, "o1"); err != nil {
		t.Fatal(err)
	}
	pos, err := l.RecordEntry(models.SideLong, 10_100_000, 0.001, "o2")
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(pos.AvgEntryPrice-10_050_000) > 1e-9 {
		t.Fatalf("avg = %.6f, want 10050000", pos.AvgEntryPrice)
	}
	if math.Abs(pos.TotalAmount-0.002) > 1e-12 {
		t.Fatalf("amount = %.8f, want 0.002", pos.TotalAmount)
	}
	if len(pos.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(pos.Entries))
	}
}

func TestRecordEntryNoDriftOverManyFills(t *testing.T) {
	l := New("BTCUSDT", nil)

	// 1000 identical fills must average to exactly the fill price.
	for i := 0; i < 1000; i++ {
		if _, err := l.RecordEntry(models.SideLong, 50_000.1, 0.001, "o"); err != nil {
			t.Fatal(err)
		}
	}
	pos := l.Position()
	if pos.AvgEntryPrice != 50_000.1 {
		t.Fatalf("avg = %.10f, want exactly 50000.1", pos.AvgEntryPrice)
	}
}

func TestRecordEntryRejectsSideConflict(t *testing.T) {
	l := New("BTCUSDT", nil)
	if _, err := l.RecordEntry(models.SideLong, 50_000, 0.001, "o1"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.RecordEntry(models.SideShort, 50_000, 0.001, "o2"); err == nil {
		t.Fatal("expected error adding a short fill to a long position")
	}
}

func TestRecordEntryRejectsInvalidFill(t *testing.T) {
	l := New("BTCUSDT", nil)
	if _, err := l.RecordEntry(models.SideLong, 0, 0.001, "o1"); err == nil {
		t.Fatal("expected error for zero price")
	}
	if _, err := l.RecordEntry(models.SideLong, 50_000, -1, "o1"); err == nil {
		t.Fatal("expected error for negative amount")
	}
	if l.Position().IsOpen() {
		t.Fatal("rejected fills must not open a position")
	}
}

func TestRecordExitLong(t *testing.T) {
	l := New("BTCUSDT", nil)
	l.RecordEntry(models.SideLong, 10_000_000, 0.001, "o1")
	l.RecordEntry(models.SideLong, 10_100_000, 0.001, "o2")

	trade, err := l.RecordExit(10_150_000, "TP")
	if err != nil {
		t.Fatal(err)
	}
	// (10150000 - 10050000) * 0.002 = 200
	if math.Abs(trade.RealizedPL-200) > 1e-6 {
		t.Fatalf("realized = %.6f, want 200", trade.RealizedPL)
	}
	if trade.CloseReason != "TP" {
		t.Fatalf("reason = %q", trade.CloseReason)
	}
	if l.Position().IsOpen() {
		t.Fatal("position must be flat after exit")
	}
}

func TestRecordExitShort(t *testing.T) {
	l := New("BTCUSDT", nil)
	l.RecordEntry(models.SideShort, 50_000, 0.01, "o1")

	trade, err := l.RecordExit(49_000, "SL")
	if err != nil {
		t.Fatal(err)
	}
	// Short gains when price falls: (50000 - 49000) * 0.01 = 10.
	if math.Abs(trade.RealizedPL-10) > 1e-9 {
		t.Fatalf("realized = %.6f, want 10", trade.RealizedPL)
	}
}

func TestRecordExitRequiresOpenPosition(t *testing.T) {
	l := New("BTCUSDT", nil)
	if _, err := l.RecordExit(50_000, "MANUAL"); err == nil {
		t.Fatal("expected error exiting a flat ledger")
	}
}

func TestProtectiveOrdersSingleSlotEach(t *testing.T) {
	l := New("BTCUSDT", nil)
	l.RecordEntry(models.SideLong, 50_000, 0.001, "o1")

	l.SetProtectiveOrders("stop-1", 49_000, "tp-1", 52_000)
	pos, _ := l.SetProtectiveOrders("stop-2", 49_500, "tp-2", 52_500)

	// Replacement, not accumulation.
	if pos.ActiveStopOrderID != "stop-2" || pos.ActiveTargetOrderID != "tp-2" {
		t.Fatalf("pos = %+v", pos)
	}
	if got := l.ProtectiveOrderIDs(); len(got) != 2 {
		t.Fatalf("ids = %v, want exactly one stop and one target", got)
	}
}

func TestProtectiveOrdersClearSlot(t *testing.T) {
	l := New("BTCUSDT", nil)
	l.RecordEntry(models.SideLong, 50_000, 0.001, "o1")
	l.SetProtectiveOrders("stop-1", 49_000, "tp-1", 52_000)

	pos, _ := l.SetProtectiveOrders("stop-1", 49_000, "", 0)
	if pos.ActiveTargetOrderID != "" || pos.ActiveTargetPrice != 0 {
		t.Fatalf("target slot not cleared: %+v", pos)
	}
	if got := l.ProtectiveOrderIDs(); len(got) != 1 || got[0] != "stop-1" {
		t.Fatalf("ids = %v", got)
	}
}

func TestRestoreRebuildsAverages(t *testing.T) {
	l := New("BTCUSDT", nil)
	l.RecordEntry(models.SideLong, 10_000_000, 0.001, "o1")
	l.RecordEntry(models.SideLong, 10_100_000, 0.001, "o2")
	snap := l.Position()

	fresh := New("BTCUSDT", nil)
	fresh.Restore(snap)

	got := fresh.Position()
	if math.Abs(got.AvgEntryPrice-10_050_000) > 1e-9 {
		t.Fatalf("restored avg = %.6f, want 10050000", got.AvgEntryPrice)
	}
	if _, err := fresh.RecordEntry(models.SideLong, 10_200_000, 0.001, "o3"); err != nil {
		t.Fatal(err)
	}
	// (10000 + 10100 + 10200) / 3 scaled up.
	if math.Abs(fresh.Position().AvgEntryPrice-10_100_000) > 1e-6 {
		t.Fatalf("avg after restore+entry = %.6f", fresh.Position().AvgEntryPrice)
	}
}
