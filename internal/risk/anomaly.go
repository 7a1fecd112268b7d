package risk

import (
	"fmt"
	"time"
)

// Severity of an anomaly flag. Critical flags force a denial in the gate;
// warnings only raise the risk score.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// AnomalyFlag describes one abnormal condition observed this cycle.
type AnomalyFlag struct {
	Kind     string   `json:"kind"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// MarketSnapshot is the market view the detector compares against thresholds.
type MarketSnapshot struct {
	Price       float64   // current price
	WindowOpen  float64   // price at the start of the move window
	Volume      float64   // last candle volume
	AvgVolume   float64   // rolling average volume
	DataTime    time.Time // timestamp of the most recent candle
}

// SystemMetrics carries process health the detector checks.
type SystemMetrics struct {
	APILatency time.Duration
	MemoryPct  float64
}

// AnomalyConfig holds the detector thresholds. All values are externally
// configured; zero values disable the corresponding check.
type AnomalyConfig struct {
	MaxPriceMovePct float64
	MoveWindow      time.Duration
	VolumeSpikeMult float64
	MaxAPILatency   time.Duration
	MaxMemoryPct    float64
	StaleDataAfter  time.Duration
}

// AnomalyDetector flags abnormal market or system conditions. Stateless per
// call and side-effect free; the gate decides what to do with the flags.
type AnomalyDetector struct {
	cfg AnomalyConfig
	now func() time.Time
}

func NewAnomalyDetector(cfg AnomalyConfig) *AnomalyDetector {
	return &AnomalyDetector{cfg: cfg, now: time.Now}
}

// Check compares the snapshot and metrics against the configured thresholds.
func (d *AnomalyDetector) Check(m MarketSnapshot, s SystemMetrics) []AnomalyFlag {
	var flags []AnomalyFlag

	if d.cfg.MaxPriceMovePct > 0 && m.WindowOpen > 0 {
		movePct := (m.Price - m.WindowOpen) / m.WindowOpen * 100
		if movePct < 0 {
			movePct = -movePct
		}
		if movePct > d.cfg.MaxPriceMovePct {
			flags = append(flags, AnomalyFlag{
				Kind:     "price_shock",
				Severity: SeverityCritical,
				Detail:   fmt.Sprintf("price moved %.2f%% in %s (limit %.2f%%)", movePct, d.cfg.MoveWindow, d.cfg.MaxPriceMovePct),
			})
		}
	}

	if d.cfg.VolumeSpikeMult > 0 && m.AvgVolume > 0 && m.Volume > m.AvgVolume*d.cfg.VolumeSpikeMult {
		flags = append(flags, AnomalyFlag{
			Kind:     "volume_spike",
			Severity: SeverityWarning,
			Detail:   fmt.Sprintf("volume %.2fx rolling average (limit %.1fx)", m.Volume/m.AvgVolume, d.cfg.VolumeSpikeMult),
		})
	}

	if d.cfg.StaleDataAfter > 0 && !m.DataTime.IsZero() {
		age := d.now().Sub(m.DataTime)
		if age > d.cfg.StaleDataAfter {
			flags = append(flags, AnomalyFlag{
				Kind:     "stale_data",
				Severity: SeverityCritical,
				Detail:   fmt.Sprintf("market data is %s old (limit %s)", age.Round(time.Second), d.cfg.StaleDataAfter),
			})
		}
	}

	if d.cfg.MaxAPILatency > 0 && s.APILatency > d.cfg.MaxAPILatency {
		flags = append(flags, AnomalyFlag{
			Kind:     "api_latency",
			Severity: SeverityWarning,
			Detail:   fmt.Sprintf("API latency %s (limit %s)", s.APILatency.Round(time.Millisecond), d.cfg.MaxAPILatency),
		})
	}

	if d.cfg.MaxMemoryPct > 0 && s.MemoryPct > d.cfg.MaxMemoryPct {
		flags = append(flags, AnomalyFlag{
			Kind:     "memory",
			Severity: SeverityWarning,
			Detail:   fmt.Sprintf("memory at %.1f%% (limit %.1f%%)", s.MemoryPct, d.cfg.MaxMemoryPct),
		})
	}

	return flags
}

// WorstSeverity returns the most severe flag present, or "" for none.
func WorstSeverity(flags []AnomalyFlag) Severity {
	worst := Severity("")
	for _, f := range flags {
		if f.Severity == SeverityCritical {
			return SeverityCritical
		}
		worst = f.Severity
	}
	return worst
}
