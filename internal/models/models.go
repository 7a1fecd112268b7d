package models

import "time"

// Action is the direction requested by a strategy or decision.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionHold  Action = "HOLD"
	ActionClose Action = "CLOSE"
)

// Side of an open position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideNone  Side = "NONE"
)

// SideForAction maps an entry action to the resulting position side.
func SideForAction(a Action) Side {
	switch a {
	case ActionBuy:
		return SideLong
	case ActionSell:
		return SideShort
	}
	return SideNone
}

// StrategySignal is the immutable output of one strategy for one cycle.
// SuggestedStop/SuggestedTarget are 0 when the strategy has no opinion.
type StrategySignal struct {
	StrategyID      string    `json:"strategy_id"`
	Timestamp       time.Time `json:"timestamp"`
	Action          Action    `json:"action"`
	Confidence      float64   `json:"confidence"` // 0..1
	Strength        float64   `json:"strength"`   // 0..1
	ReferencePrice  float64   `json:"reference_price"`
	SuggestedStop   float64   `json:"suggested_stop,omitempty"`
	SuggestedTarget float64   `json:"suggested_target,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// AggregatedDecision is the merged view over all strategy signals for a cycle.
type AggregatedDecision struct {
	Action         Action  `json:"action"`
	Confidence     float64 `json:"confidence"`
	DominantReason string  `json:"dominant_reason,omitempty"`
	Conflicting    bool    `json:"conflicting"`
}

// RiskDecision is the output of the risk gate.
// Approved == false implies PositionSize == 0.
type RiskDecision struct {
	Approved     bool    `json:"approved"`
	PositionSize float64 `json:"position_size"` // base-asset units
	RiskScore    float64 `json:"risk_score"`    // 0..100
	DenyReason   string  `json:"deny_reason,omitempty"`
}

// PositionEntry is one recorded fill. Immutable once recorded.
type PositionEntry struct {
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	OrderID   string    `json:"order_id"`
}

// Position is the logical position aggregated over all entries.
// Owned exclusively by the ledger; everyone else works on snapshots.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Entries       []PositionEntry `json:"entries,omitempty"`
	AvgEntryPrice float64         `json:"avg_entry_price"`
	TotalAmount   float64         `json:"total_amount"`

	ActiveStopOrderID   string  `json:"active_stop_order_id,omitempty"`
	ActiveStopPrice     float64 `json:"active_stop_price,omitempty"`
	ActiveTargetOrderID string  `json:"active_target_order_id,omitempty"`
	ActiveTargetPrice   float64 `json:"active_target_price,omitempty"`

	TrailingActive bool    `json:"trailing_active"`
	LastTrailPrice float64 `json:"last_trail_price,omitempty"` // price at the last stop replacement

	EntryStrategy string    `json:"entry_strategy,omitempty"` // strategy credited on close
	OpenTime      time.Time `json:"open_time,omitempty"`
}

// IsOpen reports whether the position has any recorded size.
func (p Position) IsOpen() bool {
	return p.Side != SideNone && p.TotalAmount > 0
}

// TradeOutcome is one closed trade used by the Kelly estimator.
type TradeOutcome struct {
	StrategyID string    `json:"strategy_id"`
	Win        bool      `json:"win"`
	PnL        float64   `json:"pnl"`       // quote currency
	PnLRatio   float64   `json:"pnl_ratio"` // pnl relative to entry notional
	ClosedAt   time.Time `json:"closed_at"`
}

// RiskState is the persisted process-wide risk state for one instrument.
type RiskState struct {
	PeakEquity        float64                   `json:"peak_equity"`
	CurrentEquity     float64                   `json:"current_equity"`
	DrawdownRatio     float64                   `json:"drawdown_ratio"`
	TradingPaused     bool                      `json:"trading_paused"`
	ConsecutiveLosses int                       `json:"consecutive_losses"`
	Outcomes          map[string][]TradeOutcome `json:"outcomes,omitempty"` // keyed by strategy id
}

// Trade is a fully closed position, for statistics and notifications.
type Trade struct {
	Symbol      string        `json:"symbol"`
	Side        Side          `json:"side"`
	EntryPrice  float64       `json:"entry_price"`
	ExitPrice   float64       `json:"exit_price"`
	Amount      float64       `json:"amount"`
	RealizedPL  float64       `json:"realized_pl"`
	PLPercent   float64       `json:"pl_percent"`
	OpenTime    time.Time     `json:"open_time"`
	CloseTime   time.Time     `json:"close_time"`
	Duration    time.Duration `json:"duration"`
	CloseReason string        `json:"close_reason"` // "TP", "SL", "TRAIL", "MANUAL"
}

// Stats summarizes trading performance.
type Stats struct {
	TotalTrades      int           `json:"total_trades"`
	ProfitableTrades int           `json:"profitable_trades"`
	LosingTrades     int           `json:"losing_trades"`
	TotalPL          float64       `json:"total_pl"`
	RealizedPL       float64       `json:"realized_pl"`
	UnrealizedPL     float64       `json:"unrealized_pl"`
	WinRate          float64       `json:"win_rate"`
	AvgProfit        float64       `json:"avg_profit"`
	AvgLoss          float64       `json:"avg_loss"`
	MaxProfit        float64       `json:"max_profit"`
	MaxLoss          float64       `json:"max_loss"`
	AvgHoldTime      time.Duration `json:"avg_hold_time"`
}
