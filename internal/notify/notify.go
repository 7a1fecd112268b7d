package notify

import (
	"fmt"
	"log"
	"time"

	"riskbot/internal/models"
)

// EventKind classifies a notification.
type EventKind string

const (
	EventEntry    EventKind = "ENTRY"
	EventExit     EventKind = "EXIT"
	EventDenied   EventKind = "DENIED"
	EventPaused   EventKind = "PAUSED"
	EventResumed  EventKind = "RESUMED"
	EventTrailing EventKind = "TRAILING"
	EventError    EventKind = "ERROR"
)

// Event is one notable bot occurrence, formatted once and fanned out to
// every sink.
type Event struct {
	Kind    EventKind
	Symbol  string
	Message string
	Time    time.Time
}

// Sink delivers events somewhere. Delivery is best effort; a failing
// sink must never affect the trading cycle.
type Sink interface {
	Notify(ev Event)
}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Notify(ev Event) {
	log.Printf("🔔 %s %s: %s", ev.Kind, ev.Symbol, ev.Message)
}

// MultiSink fans out to several sinks.
type MultiSink []Sink

func (m MultiSink) Notify(ev Event) {
	for _, s := range m {
		s.Notify(ev)
	}
}

// EntryEvent formats a filled entry.
func EntryEvent(symbol string, side models.Side, amount, price float64, score float64) Event {
	return Event{
		Kind:    EventEntry,
		Symbol:  symbol,
		Message: fmt.Sprintf("%s %.8f @ %.2f (risk score %.0f)", side, amount, price, score),
		Time:    time.Now(),
	}
}

// ExitEvent formats a closed trade.
func ExitEvent(t models.Trade) Event {
	emoji := "✅"
	if t.RealizedPL < 0 {
		emoji = "🔻"
	}
	return Event{
		Kind:   EventExit,
		Symbol: t.Symbol,
		Message: fmt.Sprintf("%s %s closed @ %.2f, P/L %.2f (%.2f%%), %s, held %s",
			emoji, t.Side, t.ExitPrice, t.RealizedPL, t.PLPercent, t.CloseReason, t.Duration.Round(time.Second)),
		Time: time.Now(),
	}
}

// DeniedEvent formats a gate denial.
func DeniedEvent(symbol, reason string) Event {
	return Event{Kind: EventDenied, Symbol: symbol, Message: reason, Time: time.Now()}
}

// PauseEvent formats a drawdown breaker transition.
func PauseEvent(symbol string, paused bool, drawdown float64) Event {
	kind := EventResumed
	msg := fmt.Sprintf("trading resumed, drawdown %.1f%%", drawdown*100)
	if paused {
		kind = EventPaused
		msg = fmt.Sprintf("trading paused, drawdown %.1f%%", drawdown*100)
	}
	return Event{Kind: kind, Symbol: symbol, Message: msg, Time: time.Now()}
}
