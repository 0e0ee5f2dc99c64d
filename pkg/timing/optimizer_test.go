package timing

import (
	"math"
	"testing"

	"github.com/mirakessler/nudge/pkg"
)

func TestEvaluate_LazyCreatesUniformPrior(t *testing.T) {
	o := New(nil)
	opts := o.Evaluate("gym", "TRAVELING_MORNING_weekday_COMMUTE")
	if len(opts) != len(pkg.LeadTimeCandidates) {
		t.Fatalf("expected %d options, got %d", len(pkg.LeadTimeCandidates), len(opts))
	}
	for i, op := range opts {
		if op.LeadTimeMinutes != pkg.LeadTimeCandidates[i] {
			t.Fatalf("option order mismatch at %d: got %d", i, op.LeadTimeMinutes)
		}
		if math.Abs(op.Confidence-0.5) > 1e-9 {
			t.Fatalf("expected uniform prior confidence 0.5, got %f", op.Confidence)
		}
	}
}

func TestApply_AcceptIncreasesConfidence(t *testing.T) {
	o := New(nil)
	before := o.Evaluate("gym", "ctx")[0].Confidence
	o.Apply("gym", "ctx", 10, pkg.OutcomeAccept)
	after := o.Evaluate("gym", "ctx")[0].Confidence
	if after <= before {
		t.Fatalf("expected confidence to rise after ACCEPT: %f -> %f", before, after)
	}
}

func TestApply_RejectDecreasesConfidence(t *testing.T) {
	o := New(nil)
	before := o.Evaluate("gym", "ctx")[0].Confidence
	o.Apply("gym", "ctx", 10, pkg.OutcomeReject)
	after := o.Evaluate("gym", "ctx")[0].Confidence
	if after >= before {
		t.Fatalf("expected confidence to fall after REJECT: %f -> %f", before, after)
	}
}

func TestRollback_RestoresPriorState(t *testing.T) {
	o := New(nil)
	prevA, prevB := o.Apply("gym", "ctx", 10, pkg.OutcomeAccept)
	o.Rollback("gym", "ctx", 10, prevA, prevB)
	opts := o.Evaluate("gym", "ctx")
	if opts[0].Confidence != 0.5 {
		t.Fatalf("expected rollback to restore uniform prior, got %f", opts[0].Confidence)
	}
}

func TestArgmaxUCB_TiesBreakByLowerLeadTime(t *testing.T) {
	opts := []pkg.TimingOption{
		{LeadTimeMinutes: 30, UCB: 0.8},
		{LeadTimeMinutes: 10, UCB: 0.8},
		{LeadTimeMinutes: 60, UCB: 0.5},
	}
	best := ArgmaxUCB(opts)
	if best.LeadTimeMinutes != 10 {
		t.Fatalf("expected tie-break to prefer lead time 10, got %d", best.LeadTimeMinutes)
	}
}

func TestTrend_InsufficientDataReportsUnknown(t *testing.T) {
	o := New(nil)
	o.Apply("gym", "ctx", 10, pkg.OutcomeAccept)
	_, direction, ok := o.Trend("gym", "ctx", 10)
	if ok {
		t.Fatal("expected insufficient data with only one trial")
	}
	if direction != "insufficient_data" {
		t.Fatalf("expected insufficient_data, got %s", direction)
	}
}

func TestTrend_ImprovingAcceptanceDetected(t *testing.T) {
	o := New(nil)
	outcomes := []pkg.Outcome{pkg.OutcomeReject, pkg.OutcomeReject, pkg.OutcomeReject, pkg.OutcomeAccept, pkg.OutcomeAccept, pkg.OutcomeAccept}
	for _, out := range outcomes {
		o.Apply("gym", "ctx", 10, out)
	}
	slope, direction, ok := o.Trend("gym", "ctx", 10)
	if !ok {
		t.Fatal("expected enough data for a trend")
	}
	if direction != "improving" {
		t.Fatalf("expected improving trend (slope=%f), got %s", slope, direction)
	}
}
