package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRiskParamsParsesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.yaml")
	yaml := `
anomaly:
  move_window: 5m
  max_api_latency: 2s
engine:
  interval: 90s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadRiskParams(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Anomaly.MoveWindow.D() != 5*time.Minute {
		t.Fatalf("move_window = %s, want 5m", p.Anomaly.MoveWindow.D())
	}
	if p.Engine.Interval.D() != 90*time.Second {
		t.Fatalf("interval = %s, want 90s", p.Engine.Interval.D())
	}
	// Untouched sections keep their defaults.
	if p.Drawdown.MaxDrawdown != 0.20 {
		t.Fatalf("max_drawdown = %.2f, want default 0.20", p.Drawdown.MaxDrawdown)
	}
}

func TestLoadRiskParamsMissingFileUsesDefaults(t *testing.T) {
	p, err := LoadRiskParams(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Kelly.Cap != 0.10 || p.Margin.CriticalRatio != 0.80 {
		t.Fatalf("defaults not applied: %+v", p)
	}
}

func TestValidateRejectsInvertedDrawdownThresholds(t *testing.T) {
	p := DefaultRiskParams()
	p.Drawdown.ResumeDrawdown = 0.25
	if err := p.Validate(); err == nil {
		t.Fatal("expected error when resume threshold is above the limit")
	}
}

func TestValidateRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  interval: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRiskParams(path); err == nil {
		t.Fatal("expected parse error for a malformed duration")
	}
}
