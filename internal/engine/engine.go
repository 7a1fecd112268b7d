package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"time"

	"riskbot/config"
	"riskbot/internal/exchange"
	"riskbot/internal/ledger"
	"riskbot/internal/metrics"
	"riskbot/internal/models"
	"riskbot/internal/notify"
	"riskbot/internal/risk"
	"riskbot/internal/signal"
	"riskbot/internal/storage"
	"riskbot/internal/strategy"
)

// Deps are the collaborators the engine drives each cycle.
type Deps struct {
	Gateway    exchange.Gateway
	Ledger     *ledger.Ledger
	Store      *storage.Store
	Aggregator *signal.Aggregator
	Gate       *risk.Gate
	Guard      *risk.DrawdownGuard
	Kelly      *risk.KellyEstimator
	Strategies []strategy.Strategy
	Sink       notify.Sink
}

// Engine runs the trading loop: gather market data, aggregate signals,
// pass entries through the risk gate, and keep the open position
// protected. One instrument per engine.
type Engine struct {
	cfg *config.Config

	gateway    exchange.Gateway
	ledger     *ledger.Ledger
	store      *storage.Store
	aggregator *signal.Aggregator
	gate       *risk.Gate
	guard      *risk.DrawdownGuard
	kelly      *risk.KellyEstimator
	strategies []strategy.Strategy
	sink       notify.Sink

	mu           sync.RWMutex
	trades       []models.Trade
	lastPrice    float64
	lastDecision models.RiskDecision
	lastSignal   models.AggregatedDecision

	stopChan chan struct{}
	doneChan chan struct{}
}

func New(cfg *config.Config, d Deps) *Engine {
	return &Engine{
		cfg:        cfg,
		gateway:    d.Gateway,
		ledger:     d.Ledger,
		store:      d.Store,
		aggregator: d.Aggregator,
		gate:       d.Gate,
		guard:      d.Guard,
		kelly:      d.Kelly,
		strategies: d.Strategies,
		sink:       d.Sink,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// RestoreState reloads the persisted position, risk state, and trade
// history. Missing files mean a fresh start.
func (e *Engine) RestoreState() error {
	if pos, err := e.store.LoadPosition(e.cfg.Symbol); err == nil {
		e.ledger.Restore(pos)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("restore position: %w", err)
	}

	if st, err := e.store.LoadRiskState(e.cfg.Symbol); err == nil {
		e.guard.Restore(st)
		e.kelly.Restore(st)
		log.Printf("♻️ Engine: restored risk state, peak=%.2f paused=%v", st.PeakEquity, st.TradingPaused)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("restore risk state: %w", err)
	}

	if trades, err := e.store.LoadTrades(e.cfg.Symbol); err == nil {
		e.mu.Lock()
		e.trades = trades
		e.mu.Unlock()
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("restore trades: %w", err)
	}
	return nil
}

// Start launches the cycle loop in its own goroutine.
func (e *Engine) Start() {
	log.Printf("🚀 Engine: started for %s, cycle every %s", e.cfg.Symbol, e.cfg.Risk.Engine.Interval.D())
	go e.run()
}

// Stop halts the loop and waits for the current cycle to finish.
func (e *Engine) Stop() {
	close(e.stopChan)
	<-e.doneChan
	log.Println("🛑 Engine: stopped")
}

func (e *Engine) run() {
	defer close(e.doneChan)

	ticker := time.NewTicker(e.cfg.Risk.Engine.Interval.D())
	defer ticker.Stop()

	e.cycle()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.cycle()
		}
	}
}

func (e *Engine) cycle() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Risk.Engine.Interval.D())
	defer cancel()

	if err := e.RunCycle(ctx); err != nil {
		metrics.CycleErrorsTotal.Inc()
		log.Printf("❌ Engine: cycle failed: %v", err)
		e.sink.Notify(notify.Event{
			Kind: notify.EventError, Symbol: e.cfg.Symbol,
			Message: err.Error(), Time: time.Now(),
		})
		return
	}
	metrics.CyclesTotal.Inc()
}

// RunCycle executes one full trading cycle.
func (e *Engine) RunCycle(ctx context.Context) error {
	start := time.Now()
	price, err := e.gateway.Price(ctx)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	latency := time.Since(start)

	klines, err := e.gateway.Klines(ctx, e.cfg.Risk.Engine.KlineInterval, e.cfg.Risk.Engine.KlineLimit)
	if err != nil {
		return fmt.Errorf("klines: %w", err)
	}
	bal, err := e.gateway.Balance(ctx)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}

	e.mu.Lock()
	e.lastPrice = price
	e.mu.Unlock()
	metrics.Equity.Set(bal.Equity)

	// Drawdown breaker first; a pause must take effect this cycle.
	wasPaused := e.guard.IsPaused()
	paused := e.guard.Update(bal.Equity)
	if paused != wasPaused {
		e.sink.Notify(notify.PauseEvent(e.cfg.Symbol, paused, e.guard.Drawdown()))
	}
	metrics.Drawdown.Set(e.guard.Drawdown())
	if paused {
		metrics.TradingPaused.Set(1)
	} else {
		metrics.TradingPaused.Set(0)
	}
	if err := e.persistRiskState(); err != nil {
		log.Printf("⚠️ Engine: %v", err)
	}

	// Bookkeeping before any new decision: protective fills, then orphans.
	if err := e.reconcileFills(ctx); err != nil {
		return err
	}
	if err := e.reconcileOrphans(ctx); err != nil {
		log.Printf("⚠️ Engine: orphan reconciliation: %v", err)
	}

	signals := make([]models.StrategySignal, 0, len(e.strategies))
	for _, s := range e.strategies {
		signals = append(signals, s.Evaluate(klines, price))
	}
	decision := e.aggregator.Aggregate(signals, e.cfg.Risk.Aggregator.Weights)
	e.mu.Lock()
	e.lastSignal = decision
	e.mu.Unlock()

	pos := e.ledger.Position()

	switch decision.Action {
	case models.ActionClose:
		if pos.IsOpen() {
			if err := e.closePosition(ctx, "SIGNAL"); err != nil {
				return err
			}
		}

	case models.ActionBuy, models.ActionSell:
		side := models.SideForAction(decision.Action)
		if pos.IsOpen() && pos.Side != side {
			// An opposite signal on an open position reduces risk by
			// closing; any re-entry waits for the next cycle's gate.
			log.Printf("↩️ Engine: %s signal against open %s position, closing", decision.Action, pos.Side)
			if err := e.closePosition(ctx, "SIGNAL"); err != nil {
				return err
			}
			break
		}
		if err := e.tryEnter(ctx, side, decision, signals, price, klines, bal, latency); err != nil {
			return err
		}
	}

	// A position can exist here whether we just entered, added, or held.
	if err := e.ensureProtected(ctx, price, klines); err != nil {
		log.Printf("⚠️ Engine: protective orders: %v", err)
	}
	if err := e.manageTrailing(ctx, price); err != nil {
		log.Printf("⚠️ Engine: trailing: %v", err)
	}

	metrics.PositionSize.Set(e.ledger.Position().TotalAmount)
	return nil
}

func (e *Engine) tryEnter(ctx context.Context, side models.Side, decision models.AggregatedDecision,
	signals []models.StrategySignal, price float64, klines []exchange.Kline, bal exchange.Balance,
	latency time.Duration) error {

	stopDist, targetDist := e.protectiveDistances(price, klines)
	strategyID := dominantStrategy(signals, decision)

	riskDec := e.gate.Evaluate(ctx, risk.GateInput{
		Decision:     decision,
		Position:     e.ledger.Position(),
		StrategyID:   strategyID,
		Equity:       bal.Equity,
		FreeBalance:  bal.Available,
		Price:        price,
		StopDistance: stopDist,
		Market:       e.marketSnapshot(price, klines),
		System:       systemMetrics(latency),
	})
	e.mu.Lock()
	e.lastDecision = riskDec
	e.mu.Unlock()
	metrics.RiskScore.Set(riskDec.RiskScore)

	if !riskDec.Approved {
		metrics.GateDenialsTotal.WithLabelValues(denialClass(riskDec.DenyReason)).Inc()
		log.Printf("🚫 Engine: entry denied: %s", riskDec.DenyReason)
		e.sink.Notify(notify.DeniedEvent(e.cfg.Symbol, riskDec.DenyReason))
		return nil
	}

	return e.enter(ctx, side, riskDec, strategyID, price, stopDist, targetDist)
}

// marketSnapshot builds the anomaly detector's view from current data.
func (e *Engine) marketSnapshot(price float64, klines []exchange.Kline) risk.MarketSnapshot {
	snap := risk.MarketSnapshot{Price: price}
	if len(klines) == 0 {
		return snap
	}

	last := klines[len(klines)-1]
	snap.Volume = last.Volume
	snap.AvgVolume = strategy.AvgVolume(klines, e.cfg.Risk.Protective.VolLookback)
	snap.DataTime = last.OpenTime

	cutoff := time.Now().Add(-e.cfg.Risk.Anomaly.MoveWindow.D())
	snap.WindowOpen = klines[0].Open
	for _, k := range klines {
		if !k.OpenTime.Before(cutoff) {
			snap.WindowOpen = k.Open
			break
		}
	}
	return snap
}

func systemMetrics(latency time.Duration) risk.SystemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	pct := 0.0
	if ms.HeapSys > 0 {
		pct = float64(ms.HeapAlloc) / float64(ms.HeapSys) * 100
	}
	return risk.SystemMetrics{APILatency: latency, MemoryPct: pct}
}

// dominantStrategy picks the signal that argued loudest for the chosen
// action, for Kelly history attribution.
func dominantStrategy(signals []models.StrategySignal, decision models.AggregatedDecision) string {
	best := ""
	bestConf := -1.0
	for _, s := range signals {
		if s.Action == decision.Action && s.Confidence > bestConf {
			best = s.StrategyID
			bestConf = s.Confidence
		}
	}
	return best
}

func denialClass(reason string) string {
	switch {
	case strings.Contains(reason, "anomaly"):
		return "anomaly"
	case strings.Contains(reason, "paused"):
		return "drawdown"
	case strings.Contains(reason, "margin"):
		return "margin"
	case strings.Contains(reason, "size"):
		return "size"
	default:
		return "score"
	}
}

func (e *Engine) persistRiskState() error {
	var st models.RiskState
	e.guard.Snapshot(&st)
	e.kelly.Snapshot(&st)
	if err := e.store.SaveRiskState(e.cfg.Symbol, st); err != nil {
		return fmt.Errorf("persist risk state: %w", err)
	}
	return nil
}
