package rules

import (
	"testing"
	"time"

	"github.com/mirakessler/nudge/pkg"
)

func baseContext(ts time.Time) pkg.ExtractedContext {
	return pkg.ExtractedContext{
		ActivityState:    pkg.ActivityStateStationary,
		RawActivity:      pkg.ActivityStill,
		LocationCategory: pkg.LocationHome,
		TimeOfDay:        pkg.TimeMorning,
		DayOfWeek:        1,
		IsWeekday:        true,
		SpeedKMH:         0,
		Timestamp:        ts,
	}
}

func TestMatch_AllConditionsSatisfiedScoresOne(t *testing.T) {
	ec := baseContext(time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC))
	r := &pkg.Rule{TriggerCondition: map[string]any{
		"activity":          "STATIONARY",
		"location_category": "HOME",
		"is_weekday":        true,
	}}

	res := Match(r, ec, nil)
	if res.BaseScore != 1.0 {
		t.Fatalf("expected base score 1.0, got %v (%s)", res.BaseScore, res.Reasoning)
	}
	if len(res.MatchedConditions) != 3 {
		t.Fatalf("expected 3 matched conditions, got %d", len(res.MatchedConditions))
	}
}

func TestMatch_PartialMatchDividesByRecognizedCount(t *testing.T) {
	ec := baseContext(time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC))
	r := &pkg.Rule{TriggerCondition: map[string]any{
		"activity":          "STATIONARY", // matches
		"location_category": "WORK",       // does not match
	}}

	res := Match(r, ec, nil)
	if res.BaseScore != 0.5 {
		t.Fatalf("expected base score 0.5, got %v", res.BaseScore)
	}
}

func TestMatch_UnrecognizedKeysAreIgnoredEntirely(t *testing.T) {
	ec := baseContext(time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC))
	r := &pkg.Rule{TriggerCondition: map[string]any{
		"some_made_up_key": "whatever",
	}}

	res := Match(r, ec, nil)
	if res.BaseScore != 0 {
		t.Fatalf("expected base score 0 for an all-unrecognized condition set, got %v", res.BaseScore)
	}
}

func TestMatch_ExtrasKeyMatchesAgainstRawExtras(t *testing.T) {
	ec := baseContext(time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC))
	r := &pkg.Rule{TriggerCondition: map[string]any{
		"extras.calendar_event_id": "evt-42",
	}}

	matched := Match(r, ec, map[string]any{"calendar_event_id": "evt-42"})
	if matched.BaseScore != 1.0 {
		t.Fatalf("expected extras key to match, got score %v", matched.BaseScore)
	}

	unmatched := Match(r, ec, map[string]any{"calendar_event_id": "evt-different"})
	if unmatched.BaseScore != 0 {
		t.Fatalf("expected extras key mismatch to score 0, got %v", unmatched.BaseScore)
	}

	nilExtras := Match(r, ec, nil)
	if nilExtras.BaseScore != 0 {
		t.Fatalf("expected nil extras map to never match an extras.* key, got %v", nilExtras.BaseScore)
	}
}

func TestMatch_TimeRangeWrapsAcrossMidnight(t *testing.T) {
	r := &pkg.Rule{TriggerCondition: map[string]any{"time_range": "22:00-02:00"}}

	late := baseContext(time.Date(2026, 7, 31, 23, 30, 0, 0, time.UTC))
	if Match(r, late, nil).BaseScore != 1.0 {
		t.Fatal("expected 23:30 to fall within the wraparound time_range")
	}

	early := baseContext(time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC))
	if Match(r, early, nil).BaseScore != 1.0 {
		t.Fatal("expected 01:00 to fall within the wraparound time_range")
	}

	midday := baseContext(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))
	if Match(r, midday, nil).BaseScore != 0 {
		t.Fatal("expected 12:00 to fall outside the wraparound time_range")
	}
}

func TestMatch_MinMaxSpeedBounds(t *testing.T) {
	ec := baseContext(time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC))
	ec.SpeedKMH = 45

	r := &pkg.Rule{TriggerCondition: map[string]any{"min_speed": 30.0, "max_speed": 60.0}}
	if Match(r, ec, nil).BaseScore != 1.0 {
		t.Fatal("expected speed within [min_speed, max_speed] to match both")
	}

	outOfRange := &pkg.Rule{TriggerCondition: map[string]any{"min_speed": 50.0}}
	if Match(outOfRange, ec, nil).BaseScore != 0 {
		t.Fatal("expected speed below min_speed to not match")
	}
}

func TestDeriveTaskType_LowercasesFirstWordAndStripsPunctuation(t *testing.T) {
	cases := map[string]string{
		"Gym Bag Reminder": "gym",
		"  Trash, day!  ":  "trash",
		"":                 "task",
		"***":               "task",
	}
	for in, want := range cases {
		if got := DeriveTaskType(in); got != want {
			t.Errorf("DeriveTaskType(%q) = %q, want %q", in, got, want)
		}
	}
}
