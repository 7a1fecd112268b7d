package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration: credentials and endpoints from the
// environment, all risk parameters from the YAML file. The engine never
// hard-codes a threshold; everything it gates on lives in Risk.
type Config struct {
	TelegramToken  string
	TelegramChatID int64

	BinanceAPIKey    string
	BinanceSecretKey string
	Testnet          bool

	Symbol       string
	Port         string
	DryRun       bool
	StateDir     string
	Leverage     int
	PaperBalance float64

	Risk RiskParams
}

// Duration wraps time.Duration so YAML values can be written as "2m" or
// "10s".
type Duration time.Duration

// D returns the wrapped time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// RiskParams holds every named risk parameter, loaded from YAML.
type RiskParams struct {
	Aggregator struct {
		ConflictMargin float64            `yaml:"conflict_margin"`
		Weights        map[string]float64 `yaml:"weights"`
	} `yaml:"aggregator"`

	Drawdown struct {
		MaxDrawdown    float64 `yaml:"max_drawdown"`
		ResumeDrawdown float64 `yaml:"resume_drawdown"`
	} `yaml:"drawdown"`

	Kelly struct {
		Cap              float64 `yaml:"cap"`
		SafetyMultiplier float64 `yaml:"safety_multiplier"`
		MinHistory       int     `yaml:"min_history"`
		MaxHistory       int     `yaml:"max_history"`
	} `yaml:"kelly"`

	Sizing struct {
		LowConfidence   float64 `yaml:"low_confidence"`   // tier boundaries
		HighConfidence  float64 `yaml:"high_confidence"`
		LowTierPct      float64 `yaml:"low_tier_pct"`     // equity fractions per tier
		MidTierPct      float64 `yaml:"mid_tier_pct"`
		HighTierPct     float64 `yaml:"high_tier_pct"`
		RiskPerTradePct float64 `yaml:"risk_per_trade_pct"`
		MinOrderSize    float64 `yaml:"min_order_size"` // venue minimum, base units
	} `yaml:"sizing"`

	Margin struct {
		CriticalRatio float64 `yaml:"critical_ratio"`
	} `yaml:"margin"`

	Score struct {
		DenyAt float64 `yaml:"deny_at"`
		WarnAt float64 `yaml:"warn_at"`
	} `yaml:"score"`

	Protective struct {
		StopRatioPct   float64 `yaml:"stop_ratio_pct"`   // ratio-based stop distance, % of entry
		TargetRatioPct float64 `yaml:"target_ratio_pct"` // ratio-based target distance, % of entry
		RiskReward     float64 `yaml:"risk_reward"`
		VolLookback    int     `yaml:"vol_lookback"` // candles for the volatility distance
		VolMultiplier  float64 `yaml:"vol_multiplier"`
	} `yaml:"protective"`

	Trailing struct {
		ActivatePct float64 `yaml:"activate_pct"` // unrealized profit needed to start trailing
		DistancePct float64 `yaml:"distance_pct"` // stop distance behind price
		StepPct     float64 `yaml:"step_pct"`     // minimum move before replacing the stop
		LockPct     float64 `yaml:"lock_pct"`     // minimum profit locked by any trailing stop
	} `yaml:"trailing"`

	Anomaly struct {
		MaxPriceMovePct float64  `yaml:"max_price_move_pct"` // over the move window
		MoveWindow      Duration `yaml:"move_window"`
		VolumeSpikeMult float64  `yaml:"volume_spike_mult"`
		MaxAPILatency   Duration `yaml:"max_api_latency"`
		MaxMemoryPct    float64  `yaml:"max_memory_pct"`
		StaleDataAfter  Duration `yaml:"stale_data_after"`
	} `yaml:"anomaly"`

	Engine struct {
		Interval       Duration `yaml:"interval"`
		CallTimeout    Duration `yaml:"call_timeout"`
		MaxReadRetries int      `yaml:"max_read_retries"`
		KlineInterval  string   `yaml:"kline_interval"`
		KlineLimit     int      `yaml:"kline_limit"`
	} `yaml:"engine"`
}

// Load reads .env (if present), environment variables, and the risk YAML.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		Symbol:           envOr("SYMBOL", "BTCUSDT"),
		Port:             envOr("PORT", "8080"),
		StateDir:         envOr("STATE_DIR", "state"),
		Testnet:          envBool("BINANCE_TESTNET", true),
		DryRun:           envBool("DRY_RUN", true),
		Leverage:         envInt("LEVERAGE", 1),
		PaperBalance:     envFloat("PAPER_BALANCE", 10_000),
	}

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	riskPath := envOr("RISK_CONFIG", "config/risk.yaml")
	risk, err := LoadRiskParams(riskPath)
	if err != nil {
		return nil, err
	}
	cfg.Risk = *risk

	return cfg, nil
}

// LoadRiskParams reads the YAML parameter file and fills defaults for any
// value left unset.
func LoadRiskParams(path string) (*RiskParams, error) {
	p := DefaultRiskParams()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Warning: risk config %s not found, using defaults", path)
			return p, nil
		}
		return nil, fmt.Errorf("read risk config: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse risk config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DefaultRiskParams returns the documented defaults; the YAML file overrides them.
func DefaultRiskParams() *RiskParams {
	p := &RiskParams{}
	p.Aggregator.ConflictMargin = 0.1
	p.Aggregator.Weights = map[string]float64{}

	p.Drawdown.MaxDrawdown = 0.20
	p.Drawdown.ResumeDrawdown = 0.10

	p.Kelly.Cap = 0.10
	p.Kelly.SafetyMultiplier = 0.5
	p.Kelly.MinHistory = 5
	p.Kelly.MaxHistory = 50

	p.Sizing.LowConfidence = 0.5
	p.Sizing.HighConfidence = 0.75
	p.Sizing.LowTierPct = 0.02
	p.Sizing.MidTierPct = 0.04
	p.Sizing.HighTierPct = 0.08
	p.Sizing.RiskPerTradePct = 0.01
	p.Sizing.MinOrderSize = 0.001

	p.Margin.CriticalRatio = 0.80

	p.Score.DenyAt = 80
	p.Score.WarnAt = 60

	p.Protective.StopRatioPct = 2.0
	p.Protective.TargetRatioPct = 3.0
	p.Protective.RiskReward = 2.0
	p.Protective.VolLookback = 20
	p.Protective.VolMultiplier = 2.0

	p.Trailing.ActivatePct = 2.0
	p.Trailing.DistancePct = 1.0
	p.Trailing.StepPct = 0.2
	p.Trailing.LockPct = 0.5

	p.Anomaly.MaxPriceMovePct = 5.0
	p.Anomaly.MoveWindow = Duration(5 * time.Minute)
	p.Anomaly.VolumeSpikeMult = 3.0
	p.Anomaly.MaxAPILatency = Duration(2 * time.Second)
	p.Anomaly.MaxMemoryPct = 80
	p.Anomaly.StaleDataAfter = Duration(3 * time.Minute)

	p.Engine.Interval = Duration(2 * time.Minute)
	p.Engine.CallTimeout = Duration(10 * time.Second)
	p.Engine.MaxReadRetries = 3
	p.Engine.KlineInterval = "1m"
	p.Engine.KlineLimit = 100

	return p
}

// Validate rejects parameter combinations that would make the gates meaningless.
func (p *RiskParams) Validate() error {
	if p.Drawdown.ResumeDrawdown >= p.Drawdown.MaxDrawdown {
		return fmt.Errorf("drawdown.resume_drawdown (%.2f) must be below drawdown.max_drawdown (%.2f)",
			p.Drawdown.ResumeDrawdown, p.Drawdown.MaxDrawdown)
	}
	if p.Kelly.Cap <= 0 || p.Kelly.Cap > 1 {
		return fmt.Errorf("kelly.cap must be in (0, 1], got %.2f", p.Kelly.Cap)
	}
	if p.Kelly.SafetyMultiplier <= 0 || p.Kelly.SafetyMultiplier > 1 {
		return fmt.Errorf("kelly.safety_multiplier must be in (0, 1], got %.2f", p.Kelly.SafetyMultiplier)
	}
	if p.Margin.CriticalRatio <= 0 || p.Margin.CriticalRatio > 1 {
		return fmt.Errorf("margin.critical_ratio must be in (0, 1], got %.2f", p.Margin.CriticalRatio)
	}
	if p.Trailing.DistancePct <= 0 {
		return fmt.Errorf("trailing.distance_pct must be positive")
	}
	if p.Engine.Interval <= 0 {
		return fmt.Errorf("engine.interval must be positive")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
