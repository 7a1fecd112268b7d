package exchange

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

// BinanceGateway talks to Binance USD-M futures for a single instrument.
type BinanceGateway struct {
	client   *futures.Client
	symbol   string
	leverage float64
	retries  int
}

func NewBinanceGateway(apiKey, secretKey, symbol string, leverage int, testnet bool, maxReadRetries int) *BinanceGateway {
	futures.UseTestnet = testnet
	if leverage < 1 {
		leverage = 1
	}
	if maxReadRetries < 1 {
		maxReadRetries = 1
	}
	g := &BinanceGateway{
		client:   futures.NewClient(apiKey, secretKey),
		symbol:   symbol,
		leverage: float64(leverage),
		retries:  maxReadRetries,
	}
	log.Printf("🌐 Exchange: Binance futures gateway for %s (testnet=%v, leverage=%dx)", symbol, testnet, leverage)
	return g
}

func (g *BinanceGateway) Balance(ctx context.Context) (Balance, error) {
	acct, err := retryRead(ctx, g.retries, "account", func() (*futures.Account, error) {
		return g.client.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return Balance{}, fmt.Errorf("fetch account: %w", err)
	}
	equity, err := strconv.ParseFloat(acct.TotalMarginBalance, 64)
	if err != nil {
		return Balance{}, fmt.Errorf("parse margin balance %q: %w", acct.TotalMarginBalance, err)
	}
	avail, err := strconv.ParseFloat(acct.AvailableBalance, 64)
	if err != nil {
		return Balance{}, fmt.Errorf("parse available balance %q: %w", acct.AvailableBalance, err)
	}
	return Balance{Equity: equity, Available: avail}, nil
}

// MarginRatio projects margin health after opening candidateSize more at
// the current price. Computed as the share of margin balance left free
// once maintenance margin and the candidate's initial margin are set
// aside.
func (g *BinanceGateway) MarginRatio(ctx context.Context, candidateSize float64) (float64, error) {
	acct, err := retryRead(ctx, g.retries, "account", func() (*futures.Account, error) {
		return g.client.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch account: %w", err)
	}
	marginBalance, err := strconv.ParseFloat(acct.TotalMarginBalance, 64)
	if err != nil {
		return 0, fmt.Errorf("parse margin balance %q: %w", acct.TotalMarginBalance, err)
	}
	if marginBalance <= 0 {
		return 0, nil
	}
	maintMargin, err := strconv.ParseFloat(acct.TotalMaintMargin, 64)
	if err != nil {
		return 0, fmt.Errorf("parse maintenance margin %q: %w", acct.TotalMaintMargin, err)
	}

	var candidateMargin float64
	if candidateSize > 0 {
		price, err := g.Price(ctx)
		if err != nil {
			return 0, err
		}
		candidateMargin = candidateSize * price / g.leverage
	}

	ratio := (marginBalance - maintMargin - candidateMargin) / marginBalance
	if ratio < 0 {
		ratio = 0
	}
	return ratio, nil
}

func (g *BinanceGateway) Price(ctx context.Context) (float64, error) {
	prices, err := retryRead(ctx, g.retries, "price", func() ([]*futures.SymbolPrice, error) {
		return g.client.NewListPricesService().Symbol(g.symbol).Do(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch price: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price returned for %s", g.symbol)
	}
	p, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", prices[0].Price, err)
	}
	return p, nil
}

func (g *BinanceGateway) Klines(ctx context.Context, interval string, limit int) ([]Kline, error) {
	raw, err := retryRead(ctx, g.retries, "klines", func() ([]*futures.Kline, error) {
		return g.client.NewKlinesService().Symbol(g.symbol).Interval(interval).Limit(limit).Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, k := range raw {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closeP, err4 := strconv.ParseFloat(k.Close, 64)
		vol, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, fmt.Errorf("parse kline at %d", k.OpenTime)
		}
		klines = append(klines, Kline{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
			Volume:   vol,
		})
	}
	return klines, nil
}

// PlaceOrder submits exactly one order. No retries here: a timed-out
// placement may have reached the venue, so the caller reconciles via
// OrderStatus with the same client ID instead of resubmitting.
func (g *BinanceGateway) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	svc := g.client.NewCreateOrderService().
		Symbol(g.symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type)).
		Quantity(formatQty(req.Quantity)).
		NewClientOrderID(req.ClientID).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)

	if req.Type == OrderTypeStopMarket || req.Type == OrderTypeTakeProfit {
		svc = svc.StopPrice(formatQty(req.StopPrice))
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("place %s %s: %w", req.Type, req.Side, err)
	}

	order := Order{
		ID:       strconv.FormatInt(res.OrderID, 10),
		ClientID: res.ClientOrderID,
		Side:     req.Side,
		Type:     req.Type,
		Quantity: req.Quantity,
		State:    OrderState(res.Status),
		Time:     time.UnixMilli(res.UpdateTime),
	}
	if res.AvgPrice != "" {
		order.AvgPrice, _ = strconv.ParseFloat(res.AvgPrice, 64)
	}
	if res.StopPrice != "" {
		order.StopPrice, _ = strconv.ParseFloat(res.StopPrice, 64)
	}
	return order, nil
}

func (g *BinanceGateway) CancelOrder(ctx context.Context, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad order id %q: %w", orderID, err)
	}
	_, err = g.client.NewCancelOrderService().Symbol(g.symbol).OrderID(id).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		// -2011: unknown order. Already gone is fine for a cancel.
		if errors.As(err, &apiErr) && apiErr.Code == -2011 {
			return ErrOrderNotFound
		}
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

func (g *BinanceGateway) OpenOrders(ctx context.Context) ([]Order, error) {
	raw, err := retryRead(ctx, g.retries, "open orders", func() ([]*futures.Order, error) {
		return g.client.NewListOpenOrdersService().Symbol(g.symbol).Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, fromFuturesOrder(o))
	}
	return orders, nil
}

func (g *BinanceGateway) OrderStatus(ctx context.Context, orderID string) (Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return Order{}, fmt.Errorf("bad order id %q: %w", orderID, err)
	}
	o, err := retryRead(ctx, g.retries, "order status", func() (*futures.Order, error) {
		return g.client.NewGetOrderService().Symbol(g.symbol).OrderID(id).Do(ctx)
	})
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == -2013 {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("order status %s: %w", orderID, err)
	}
	return fromFuturesOrder(o), nil
}

func fromFuturesOrder(o *futures.Order) Order {
	out := Order{
		ID:       strconv.FormatInt(o.OrderID, 10),
		ClientID: o.ClientOrderID,
		Side:     OrderSide(o.Side),
		Type:     OrderType(o.Type),
		State:    OrderState(o.Status),
		Time:     time.UnixMilli(o.Time),
	}
	out.Quantity, _ = strconv.ParseFloat(o.OrigQuantity, 64)
	out.AvgPrice, _ = strconv.ParseFloat(o.AvgPrice, 64)
	out.StopPrice, _ = strconv.ParseFloat(o.StopPrice, 64)
	return out
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
