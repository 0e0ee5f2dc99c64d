package inference

import (
	"context"
	"testing"
	"time"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/rules"
	"github.com/mirakessler/nudge/pkg/timing"
)

func strp(s string) *string { return &s }

func TestInfer_SurfacesMatchingRuleAboveThreshold(t *testing.T) {
	cat := rules.NewCatalog()
	cat.Create(pkg.Rule{
		Name:             "Gym bag reminder",
		TriggerCondition: map[string]any{"activity": "STATIONARY", "wifi_ssid": "HomeWiFi"},
		Weight:           0.9,
	})
	opt := timing.New(nil)
	eng := New(cat, opt, nil, nil, nil, 0)

	raw := pkg.Context{Timestamp: time.Now(), Activity: pkg.ActivityStill, SpeedKMH: 0, WifiSSID: strp("HomeWiFi")}
	resp, err := eng.Infer(context.Background(), raw, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.SuggestedTasks) != 1 {
		t.Fatalf("expected exactly one suggested task, got %d", len(resp.SuggestedTasks))
	}
	if resp.SuggestedTasks[0].ChosenLeadTime == 0 {
		t.Fatal("expected a chosen lead time in greedy (non-search) mode")
	}
	if resp.ContextSummary.OptimizationMode != "greedy" {
		t.Fatalf("expected greedy mode, got %s", resp.ContextSummary.OptimizationMode)
	}
}

func TestInfer_FiltersBelowThreshold(t *testing.T) {
	cat := rules.NewCatalog()
	cat.Create(pkg.Rule{
		Name:             "Irrelevant rule",
		TriggerCondition: map[string]any{"activity": "TRAVELING"},
		Weight:           0.5,
	})
	opt := timing.New(nil)
	eng := New(cat, opt, nil, nil, nil, 0)

	raw := pkg.Context{Timestamp: time.Now(), Activity: pkg.ActivityStill, SpeedKMH: 0}
	resp, err := eng.Infer(context.Background(), raw, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.SuggestedTasks) != 0 {
		t.Fatalf("expected no suggestions below threshold, got %d", len(resp.SuggestedTasks))
	}
	if resp.TotalRulesEvaluated != 1 {
		t.Fatalf("expected 1 rule evaluated, got %d", resp.TotalRulesEvaluated)
	}
}

func TestInfer_SearchModeAttachesMetadata(t *testing.T) {
	cat := rules.NewCatalog()
	cat.Create(pkg.Rule{
		Name:             "Gym bag reminder",
		TriggerCondition: map[string]any{"activity": "STATIONARY"},
		Weight:           0.9,
	})
	opt := timing.New(nil)
	eng := New(cat, opt, nil, nil, nil, 0)

	raw := pkg.Context{Timestamp: time.Now(), Activity: pkg.ActivityStill, SpeedKMH: 0}
	resp, err := eng.Infer(context.Background(), raw, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SearchMetadata == nil {
		t.Fatal("expected search metadata when enable_search=true")
	}
	if resp.ContextSummary.OptimizationMode != "A* search" {
		t.Fatalf("expected A* search mode, got %s", resp.ContextSummary.OptimizationMode)
	}
}

func TestInfer_RejectsInvalidContext(t *testing.T) {
	cat := rules.NewCatalog()
	opt := timing.New(nil)
	eng := New(cat, opt, nil, nil, nil, 0)
	_, err := eng.Infer(context.Background(), pkg.Context{}, false)
	if err == nil {
		t.Fatal("expected validation error for zero-value context")
	}
}
