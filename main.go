package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"riskbot/config"
	"riskbot/internal/engine"
	"riskbot/internal/exchange"
	"riskbot/internal/ledger"
	"riskbot/internal/notify"
	"riskbot/internal/risk"
	sigagg "riskbot/internal/signal"
	"riskbot/internal/storage"
	"riskbot/internal/strategy"
	"riskbot/internal/web"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("🤖 Starting risk-gated trading bot...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}

	store, err := storage.NewStore(cfg.StateDir)
	if err != nil {
		log.Fatalf("❌ Storage: %v", err)
	}
	led := ledger.New(cfg.Symbol, store)

	var gateway exchange.Gateway
	if cfg.DryRun {
		feed := exchange.NewBinanceGateway("", "", cfg.Symbol, cfg.Leverage, cfg.Testnet, cfg.Risk.Engine.MaxReadRetries)
		gateway = exchange.NewPaperGateway(cfg.Symbol, cfg.PaperBalance, cfg.Leverage).WithFeed(feed)
	} else {
		gateway = exchange.NewBinanceGateway(cfg.BinanceAPIKey, cfg.BinanceSecretKey,
			cfg.Symbol, cfg.Leverage, cfg.Testnet, cfg.Risk.Engine.MaxReadRetries)
	}

	guard := risk.NewDrawdownGuard(cfg.Risk.Drawdown.MaxDrawdown, cfg.Risk.Drawdown.ResumeDrawdown)
	kelly := risk.NewKellyEstimator(risk.KellyConfig{
		Cap:              cfg.Risk.Kelly.Cap,
		SafetyMultiplier: cfg.Risk.Kelly.SafetyMultiplier,
		MinHistory:       cfg.Risk.Kelly.MinHistory,
		MaxHistory:       cfg.Risk.Kelly.MaxHistory,
	})
	sizer := risk.NewPositionSizer(risk.SizingConfig{
		LowConfidence:   cfg.Risk.Sizing.LowConfidence,
		HighConfidence:  cfg.Risk.Sizing.HighConfidence,
		LowTierPct:      cfg.Risk.Sizing.LowTierPct,
		MidTierPct:      cfg.Risk.Sizing.MidTierPct,
		HighTierPct:     cfg.Risk.Sizing.HighTierPct,
		RiskPerTradePct: cfg.Risk.Sizing.RiskPerTradePct,
		MinOrderSize:    cfg.Risk.Sizing.MinOrderSize,
	}, kelly)
	detector := risk.NewAnomalyDetector(risk.AnomalyConfig{
		MaxPriceMovePct: cfg.Risk.Anomaly.MaxPriceMovePct,
		MoveWindow:      cfg.Risk.Anomaly.MoveWindow.D(),
		VolumeSpikeMult: cfg.Risk.Anomaly.VolumeSpikeMult,
		MaxAPILatency:   cfg.Risk.Anomaly.MaxAPILatency.D(),
		MaxMemoryPct:    cfg.Risk.Anomaly.MaxMemoryPct,
		StaleDataAfter:  cfg.Risk.Anomaly.StaleDataAfter.D(),
	})
	gate := risk.NewGate(risk.GateConfig{
		CriticalMarginRatio: cfg.Risk.Margin.CriticalRatio,
		DenyScore:           cfg.Risk.Score.DenyAt,
		WarnScore:           cfg.Risk.Score.WarnAt,
		MaxDrawdown:         cfg.Risk.Drawdown.MaxDrawdown,
	}, detector, guard, sizer, gateway)

	sinks := notify.MultiSink{notify.LogSink{}}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("⚠️ Telegram disabled: %v", err)
		} else {
			sinks = append(sinks, tg)
		}
	}

	eng := engine.New(cfg, engine.Deps{
		Gateway:    gateway,
		Ledger:     led,
		Store:      store,
		Aggregator: sigagg.NewAggregator(cfg.Risk.Aggregator.ConflictMargin),
		Gate:       gate,
		Guard:      guard,
		Kelly:      kelly,
		Strategies: []strategy.Strategy{strategy.NewMomentum(), strategy.NewMeanReversion()},
		Sink:       sinks,
	})
	if err := eng.RestoreState(); err != nil {
		log.Fatalf("❌ Restore: %v", err)
	}

	srv := web.NewServer(cfg.Port, eng)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("❌ Web: %v", err)
		}
	}()

	eng.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("⏳ Shutting down...")
	eng.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Risk.Engine.CallTimeout.D())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Web shutdown: %v", err)
	}
	log.Println("👋 Bot stopped")
}
