package signal

import (
	"testing"

	"riskbot/internal/models"
)

func sig(id string, action models.Action, conf float64) models.StrategySignal {
	return models.StrategySignal{StrategyID: id, Action: action, Confidence: conf}
}

func TestAggregateConflictResolvedByConfidence(t *testing.T) {
	agg := NewAggregator(0.1)
	weights := map[string]float64{"a": 1.0, "b": 1.0, "c": 1.0}

	// buy 0.7 vs sell 0.3: gap 0.4 >= margin, buy wins but conflict is recorded.
	dec := agg.Aggregate([]models.StrategySignal{
		sig("a", models.ActionBuy, 0.7),
		sig("b", models.ActionSell, 0.3),
		sig("c", models.ActionHold, 0.5),
	}, weights)

	if dec.Action != models.ActionBuy {
		t.Fatalf("action = %s, want BUY", dec.Action)
	}
	if !dec.Conflicting {
		t.Error("expected conflicting=true when both sides are present")
	}
	if dec.Confidence != 0.7 {
		t.Errorf("confidence = %.2f, want 0.70", dec.Confidence)
	}
}

func TestAggregateConflictWithinMarginHolds(t *testing.T) {
	agg := NewAggregator(0.1)
	weights := map[string]float64{"a": 1.0, "b": 1.0}

	dec := agg.Aggregate([]models.StrategySignal{
		sig("a", models.ActionBuy, 0.55),
		sig("b", models.ActionSell, 0.50),
	}, weights)

	if dec.Action != models.ActionHold {
		t.Fatalf("action = %s, want HOLD within conflict margin", dec.Action)
	}
	if !dec.Conflicting {
		t.Error("expected conflicting=true")
	}
}

func TestAggregateSingleSideDominates(t *testing.T) {
	agg := NewAggregator(0.1)
	weights := map[string]float64{"a": 1.0, "b": 0.5}

	dec := agg.Aggregate([]models.StrategySignal{
		sig("a", models.ActionSell, 0.6),
		sig("b", models.ActionSell, 0.4),
		sig("b", models.ActionHold, 0.9),
	}, weights)

	if dec.Action != models.ActionSell {
		t.Fatalf("action = %s, want SELL", dec.Action)
	}
	if dec.Conflicting {
		t.Error("single-side decision must not be conflicting")
	}
	// 0.6*1.0 + 0.4*0.5 = 0.8
	if dec.Confidence < 0.79 || dec.Confidence > 0.81 {
		t.Errorf("confidence = %.2f, want 0.80", dec.Confidence)
	}
}

func TestAggregateAllHold(t *testing.T) {
	agg := NewAggregator(0.1)
	dec := agg.Aggregate([]models.StrategySignal{
		sig("a", models.ActionHold, 0.9),
	}, map[string]float64{"a": 1.0})

	if dec.Action != models.ActionHold || dec.Conflicting {
		t.Fatalf("got %+v, want plain HOLD", dec)
	}
}

func TestAggregateWeightedConfidenceClipped(t *testing.T) {
	agg := NewAggregator(0.1)
	weights := map[string]float64{"a": 1.0, "b": 1.0}

	dec := agg.Aggregate([]models.StrategySignal{
		sig("a", models.ActionBuy, 0.9),
		sig("b", models.ActionBuy, 0.8),
	}, weights)

	if dec.Confidence != 1.0 {
		t.Errorf("confidence = %.2f, want clip to 1.0", dec.Confidence)
	}
}

func TestAggregateCloseWinsOverEntries(t *testing.T) {
	agg := NewAggregator(0.1)
	weights := map[string]float64{"a": 1.0, "b": 1.0}

	dec := agg.Aggregate([]models.StrategySignal{
		sig("a", models.ActionBuy, 0.9),
		sig("b", models.ActionClose, 0.4),
	}, weights)

	if dec.Action != models.ActionClose {
		t.Fatalf("action = %s, want CLOSE to take precedence", dec.Action)
	}
}

func TestAggregateUnknownStrategyHasNoWeight(t *testing.T) {
	agg := NewAggregator(0.1)

	dec := agg.Aggregate([]models.StrategySignal{
		sig("unknown", models.ActionBuy, 0.9),
	}, map[string]float64{"a": 1.0})

	if dec.Action != models.ActionHold {
		t.Fatalf("action = %s, want HOLD when no weighted signals remain", dec.Action)
	}
}
