// Package inference ties context extraction, the rule catalog, the
// rule matcher, and the timing optimizer into a single infer()
// operation, optionally delegating joint lead-time selection to a
// bounded search over the candidate set. Rule matching runs
// concurrently across active rules via golang.org/x/sync/errgroup.
package inference

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/audit"
	contextpkg "github.com/mirakessler/nudge/pkg/context"
	"github.com/mirakessler/nudge/pkg/logx"
	"github.com/mirakessler/nudge/pkg/rules"
	"github.com/mirakessler/nudge/pkg/schedule"
	"github.com/mirakessler/nudge/pkg/timing"
)

// Engine ties together the catalog, matcher, and timing optimizer behind
// a single infer() operation.
type Engine struct {
	catalog      *rules.Catalog
	optimizer    *timing.Optimizer
	locationHint contextpkg.LocationHint
	auditLog     *audit.Log
	logger       *logx.Logger
	perf         *logx.PerformanceLogger
	nodeBudget   int
}

// New creates an Engine. locationHint and auditLog may be nil if no
// clustering component or diagnostics trail is wired up; nodeBudget <= 0
// uses schedule.DefaultNodeBudget.
func New(catalog *rules.Catalog, optimizer *timing.Optimizer, locationHint contextpkg.LocationHint, auditLog *audit.Log, logger *logx.Logger, nodeBudget int) *Engine {
	return &Engine{
		catalog:      catalog,
		optimizer:    optimizer,
		locationHint: locationHint,
		auditLog:     auditLog,
		logger:       logger,
		perf:         logx.NewPerformanceLogger(logger),
		nodeBudget:   nodeBudget,
	}
}

type scored struct {
	rule   *pkg.Rule
	result rules.MatchResult
	score  float64
}

// Infer runs one end-to-end inference call: extract context, match
// every active rule, build candidates above the suggestion threshold,
// and either greedily pick a lead time for each or delegate joint
// selection to the scheduling search.
func (e *Engine) Infer(ctx context.Context, raw pkg.Context, enableSearch bool) (resp pkg.InferenceResponse, err error) {
	op := e.perf.StartOperation(ctx, "inference.infer")
	defer func() { op.Complete(err) }()

	if err = contextpkg.Validate(raw); err != nil {
		return pkg.InferenceResponse{}, err
	}
	ec := contextpkg.Extract(raw, e.locationHint)
	contextKey := ec.ContextKey()

	active := e.catalog.ListActive()

	results := make([]scored, len(active))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range active {
		i, r := i, r
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			m := rules.Match(r, ec, raw.Extras)
			results[i] = scored{rule: r, result: m, score: m.BaseScore * r.Weight}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return pkg.InferenceResponse{}, fmt.Errorf("rule matching cancelled: %w", err)
	}

	var candidates []pkg.Candidate
	for _, s := range results {
		surfaced := s.score >= pkg.SuggestionThreshold
		if e.auditLog != nil {
			e.auditLog.Record(audit.Entry{
				Timestamp:       ec.Timestamp,
				RuleID:          s.rule.ID,
				RuleName:        s.rule.Name,
				ContextKey:      contextKey,
				BaseScore:       s.result.BaseScore,
				Weight:          s.rule.Weight,
				SuggestionScore: s.score,
				Surfaced:        surfaced,
				Reasoning:       s.result.Reasoning,
			})
		}
		if !surfaced {
			continue
		}
		options := e.optimizer.Evaluate(s.rule.TaskType, contextKey)
		candidates = append(candidates, pkg.Candidate{
			RuleID:            s.rule.ID,
			RuleName:          s.rule.Name,
			SuggestionScore:   s.score,
			TimingOptions:     options,
			Reasoning:         s.result.Reasoning,
			MatchedConditions: s.result.MatchedConditions,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].SuggestionScore > candidates[j].SuggestionScore })

	mode := "greedy"
	var searchMeta *pkg.ScheduleResult
	if len(candidates) > 0 {
		if enableSearch {
			mode = "A* search"
			// items must stay in the same (post-sort) order as
			// candidates, since schedule.Result.Assignments are indexed
			// by CandidateIndex into this slice.
			orderedItems := reorderItems(candidates, results)
			res := schedule.Optimize(orderedItems, e.nodeBudget)
			applySchedule(candidates, res)
			meta := schedule.ToScheduleResult(res)
			searchMeta = &meta
		} else {
			for i := range candidates {
				best := timing.ArgmaxUCB(candidates[i].TimingOptions)
				candidates[i].ChosenLeadTime = best.LeadTimeMinutes
			}
		}
	}

	summary := pkg.ContextSummary{
		Activity:         ec.ActivityState,
		LocationCategory: ec.LocationCategory,
		TimeOfDay:        ec.TimeOfDay,
		CarConnected:     ec.CarConnected,
		WifiSSID:         ec.WifiSSID,
		OptimizationMode: mode,
	}

	return pkg.InferenceResponse{
		SuggestedTasks:      candidates,
		ContextSummary:      summary,
		TotalRulesEvaluated: len(active),
		SearchMetadata:      searchMeta,
	}, nil
}

// reorderItems rebuilds the schedule.Item slice to match candidates'
// final (sorted) order, so CandidateIndex in the search result lines up
// with positions in the candidates slice.
func reorderItems(candidates []pkg.Candidate, _ []scored) []schedule.Item {
	items := make([]schedule.Item, len(candidates))
	for i, c := range candidates {
		opts := make([]schedule.Option, len(c.TimingOptions))
		for j, to := range c.TimingOptions {
			opts[j] = schedule.Option{LeadTimeMinutes: to.LeadTimeMinutes, Reward: c.SuggestionScore * to.Confidence}
		}
		items[i] = schedule.Item{CandidateIndex: i, Options: opts}
	}
	return items
}

// applySchedule folds the scheduling search's chosen assignment back
// onto each candidate.
func applySchedule(candidates []pkg.Candidate, res schedule.Result) {
	byIndex := make(map[int]schedule.Assignment, len(res.Assignments))
	for _, a := range res.Assignments {
		byIndex[a.CandidateIndex] = a
	}
	for i := range candidates {
		a, ok := byIndex[i]
		if !ok {
			continue
		}
		candidates[i].Skipped = a.Skipped
		candidates[i].ChosenLeadTime = a.LeadTimeMinutes
	}
}
