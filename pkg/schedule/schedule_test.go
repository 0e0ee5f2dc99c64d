package schedule

import "testing"

func TestOptimize_PicksBestJointAssignment(t *testing.T) {
	items := []Item{
		{CandidateIndex: 0, Options: []Option{{LeadTimeMinutes: 10, Reward: 0.9}, {LeadTimeMinutes: 60, Reward: 0.3}}},
		{CandidateIndex: 1, Options: []Option{{LeadTimeMinutes: 15, Reward: 0.5}, {LeadTimeMinutes: 30, Reward: 0.7}}},
	}
	res := Optimize(items, 0)
	if !res.SearchCompleted || res.OptimizationQuality != "optimal" {
		t.Fatalf("expected a completed optimal search, got %+v", res)
	}
	if res.TotalExpectedReward != 0.9+0.7 {
		t.Fatalf("expected total reward 1.6, got %f", res.TotalExpectedReward)
	}
}

func TestOptimize_SkipsZeroRewardCandidate(t *testing.T) {
	items := []Item{
		{CandidateIndex: 0, Options: []Option{{LeadTimeMinutes: 10, Reward: 0.0}}},
	}
	res := Optimize(items, 0)
	if len(res.Assignments) != 1 || !res.Assignments[0].Skipped {
		t.Fatalf("expected the zero-reward candidate to be skipped, got %+v", res.Assignments)
	}
}

func TestOptimize_FallsBackToGreedyUnderTinyBudget(t *testing.T) {
	items := []Item{
		{CandidateIndex: 0, Options: []Option{{LeadTimeMinutes: 10, Reward: 0.9}}},
		{CandidateIndex: 1, Options: []Option{{LeadTimeMinutes: 15, Reward: 0.5}}},
		{CandidateIndex: 2, Options: []Option{{LeadTimeMinutes: 30, Reward: 0.7}}},
	}
	res := Optimize(items, 1)
	if res.SearchCompleted {
		t.Fatal("expected the tiny node budget to be exhausted")
	}
	if res.OptimizationQuality != "greedy_fallback" {
		t.Fatalf("expected greedy_fallback, got %s", res.OptimizationQuality)
	}
	if res.NodesExplored != 1 {
		t.Fatalf("expected exactly 1 node explored, got %d", res.NodesExplored)
	}
}

func TestGreedy_PicksPerCandidateArgmax(t *testing.T) {
	items := []Item{
		{CandidateIndex: 0, Options: []Option{{LeadTimeMinutes: 10, Reward: 0.2}, {LeadTimeMinutes: 60, Reward: 0.8}}},
	}
	res := Greedy(items)
	if res.Assignments[0].LeadTimeMinutes != 60 || res.Assignments[0].Skipped {
		t.Fatalf("expected greedy to choose lead time 60, got %+v", res.Assignments[0])
	}
}

func TestOptimize_EmptyItemsReturnsZeroReward(t *testing.T) {
	res := Optimize(nil, 0)
	if res.TotalExpectedReward != 0 || !res.SearchCompleted {
		t.Fatalf("expected trivial completed result for no candidates, got %+v", res)
	}
}
