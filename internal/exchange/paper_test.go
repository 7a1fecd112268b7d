package exchange

import (
	"context"
	"testing"
)

func TestPaperMarketOrderFillsAtMark(t *testing.T) {
	g := NewPaperGateway("BTCUSDT", 10_000, 1)
	g.SetPrice(50_000)

	o, err := g.PlaceOrder(context.Background(), OrderRequest{
		Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0.01, ClientID: "c1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.State != OrderStateFilled || o.AvgPrice != 50_000 {
		t.Fatalf("order = %+v, want filled at 50000", o)
	}

	bal, _ := g.Balance(context.Background())
	if bal.Available >= 10_000 {
		t.Fatalf("available = %.2f, opening must reserve margin", bal.Available)
	}
}

func TestPaperStopTriggersOnFall(t *testing.T) {
	g := NewPaperGateway("BTCUSDT", 10_000, 1)
	g.SetPrice(50_000)
	g.PlaceOrder(context.Background(), OrderRequest{Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0.01, ClientID: "c1"})

	stop, err := g.PlaceOrder(context.Background(), OrderRequest{
		Side: OrderSideSell, Type: OrderTypeStopMarket, Quantity: 0.01, StopPrice: 49_000, ReduceOnly: true, ClientID: "c2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if stop.State != OrderStateNew {
		t.Fatalf("stop must rest, got %s", stop.State)
	}

	g.SetPrice(49_500) // above trigger: still resting
	if got, _ := g.OrderStatus(context.Background(), stop.ID); got.State != OrderStateNew {
		t.Fatalf("stop fired early at 49500: %+v", got)
	}

	g.SetPrice(48_900)
	got, _ := g.OrderStatus(context.Background(), stop.ID)
	if got.State != OrderStateFilled || got.AvgPrice != 49_000 {
		t.Fatalf("stop = %+v, want filled at trigger", got)
	}

	// Loss realized: (49000 - 50000) * 0.01 = -10.
	bal, _ := g.Balance(context.Background())
	if bal.Equity != 9_990 {
		t.Fatalf("equity = %.2f, want 9990", bal.Equity)
	}
}

func TestPaperTakeProfitTriggersOnRise(t *testing.T) {
	g := NewPaperGateway("BTCUSDT", 10_000, 1)
	g.SetPrice(50_000)
	g.PlaceOrder(context.Background(), OrderRequest{Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0.01, ClientID: "c1"})

	tp, _ := g.PlaceOrder(context.Background(), OrderRequest{
		Side: OrderSideSell, Type: OrderTypeTakeProfit, Quantity: 0.01, StopPrice: 52_000, ReduceOnly: true, ClientID: "c2",
	})

	g.SetPrice(52_100)
	got, _ := g.OrderStatus(context.Background(), tp.ID)
	if got.State != OrderStateFilled {
		t.Fatalf("tp = %+v, want filled", got)
	}
	bal, _ := g.Balance(context.Background())
	if bal.Equity != 10_020 {
		t.Fatalf("equity = %.2f, want 10020", bal.Equity)
	}
}

func TestPaperCancelAndOpenOrders(t *testing.T) {
	g := NewPaperGateway("BTCUSDT", 10_000, 1)
	g.SetPrice(50_000)
	g.PlaceOrder(context.Background(), OrderRequest{Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0.01, ClientID: "c1"})
	stop, _ := g.PlaceOrder(context.Background(), OrderRequest{
		Side: OrderSideSell, Type: OrderTypeStopMarket, Quantity: 0.01, StopPrice: 49_000, ClientID: "c2",
	})

	open, _ := g.OpenOrders(context.Background())
	if len(open) != 1 {
		t.Fatalf("open = %v, want just the resting stop", open)
	}

	if err := g.CancelOrder(context.Background(), stop.ID); err != nil {
		t.Fatal(err)
	}
	open, _ = g.OpenOrders(context.Background())
	if len(open) != 0 {
		t.Fatalf("open = %v after cancel, want none", open)
	}

	if err := g.CancelOrder(context.Background(), stop.ID); err != ErrOrderNotFound {
		t.Fatalf("second cancel err = %v, want ErrOrderNotFound", err)
	}
}

func TestPaperShortPnL(t *testing.T) {
	g := NewPaperGateway("BTCUSDT", 10_000, 1)
	g.SetPrice(50_000)
	g.PlaceOrder(context.Background(), OrderRequest{Side: OrderSideSell, Type: OrderTypeMarket, Quantity: 0.01, ClientID: "c1"})

	g.SetPrice(48_000)
	g.PlaceOrder(context.Background(), OrderRequest{Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0.01, ReduceOnly: true, ClientID: "c2"})

	// Short from 50000 covered at 48000: +20.
	bal, _ := g.Balance(context.Background())
	if bal.Equity != 10_020 {
		t.Fatalf("equity = %.2f, want 10020", bal.Equity)
	}
}
