// Package schedule implements a bounded A* branch-and-bound search
// over joint lead-time assignment across every candidate surfaced by
// one inference call. The frontier is a container/heap priority queue
// over a typed wrapper struct carrying a monotonic sequence number for
// stable ordering, ranked by the search's own (g+h) cost.
package schedule

import (
	"container/heap"
	"time"

	"github.com/mirakessler/nudge/pkg"
)

const DefaultNodeBudget = 10000

// Option is one candidate's (lead_time, expected_reward) choice, plus
// the implicit "skip" option every candidate also has.
type Option struct {
	LeadTimeMinutes int
	Reward          float64
}

// Item is one candidate under consideration, with its precomputed
// option rewards in lead-time order.
type Item struct {
	CandidateIndex int
	Options        []Option // expected reward per lead-time, same order as pkg.LeadTimeCandidates
}

// Assignment records what was chosen for one candidate.
type Assignment struct {
	CandidateIndex int
	LeadTimeMinutes int
	Skipped         bool
	Reward          float64
}

// Result is the outcome of one scheduling search.
type Result struct {
	Assignments         []Assignment
	TotalExpectedReward float64
	NodesExplored       int
	SearchTimeMS        float64
	SearchCompleted     bool
	OptimizationQuality string // "optimal" | "greedy_fallback"
}

// state is one node in the search tree: a partial assignment for the
// first `depth` candidates.
type state struct {
	depth       int
	g           float64
	assignments []Assignment
	priority    float64 // g + h, higher explored first
	index       int     // heap bookkeeping
}

type stateHeap []*state

func (h stateHeap) Len() int { return len(h) }
func (h stateHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority // max-heap on g+h
	}
	// Tie-break: prefer smaller depth (more exploration), then the
	// earlier push sequence number, for a deterministic ordering.
	if h[i].depth != h[j].depth {
		return h[i].depth < h[j].depth
	}
	return h[i].index < h[j].index
}
func (h stateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *stateHeap) Push(x any)        { *h = append(*h, x.(*state)) }
func (h *stateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Optimize runs the A* branch-and-bound search over items (one per
// inference candidate) and returns the chosen schedule. nodeBudget <= 0
// uses DefaultNodeBudget.
func Optimize(items []Item, nodeBudget int) Result {
	start := time.Now()
	if nodeBudget <= 0 {
		nodeBudget = DefaultNodeBudget
	}
	if len(items) == 0 {
		return Result{SearchCompleted: true, OptimizationQuality: "optimal"}
	}

	maxRemaining := make([]float64, len(items)+1)
	for i := len(items) - 1; i >= 0; i-- {
		best := 0.0 // skip is always available with reward 0
		for _, o := range items[i].Options {
			if o.Reward > best {
				best = o.Reward
			}
		}
		maxRemaining[i] = maxRemaining[i+1] + best
	}

	h := &stateHeap{}
	heap.Init(h)
	seq := 0
	push := func(s *state) {
		s.index = seq
		seq++
		heap.Push(h, s)
	}
	push(&state{depth: 0, g: 0, priority: maxRemaining[0]})

	var best *state
	nodes := 0

	for h.Len() > 0 {
		if nodes >= nodeBudget {
			break
		}
		cur := heap.Pop(h).(*state)
		nodes++

		if cur.depth == len(items) {
			if best == nil || cur.g > best.g {
				best = cur
			}
			continue
		}

		if best != nil && cur.priority <= best.g {
			continue
		}

		i := cur.depth
		// "skip" successor, reward 0.
		tryPush := func(assign Assignment, reward float64) {
			gNew := cur.g + reward
			hNew := maxRemaining[i+1]
			if best != nil && gNew+hNew <= best.g {
				return
			}
			assigns := make([]Assignment, len(cur.assignments)+1)
			copy(assigns, cur.assignments)
			assigns[len(cur.assignments)] = assign
			push(&state{depth: i + 1, g: gNew, assignments: assigns, priority: gNew + hNew})
		}

		tryPush(Assignment{CandidateIndex: items[i].CandidateIndex, Skipped: true}, 0)
		for _, o := range items[i].Options {
			tryPush(Assignment{CandidateIndex: items[i].CandidateIndex, LeadTimeMinutes: o.LeadTimeMinutes, Reward: o.Reward}, o.Reward)
		}
	}

	elapsed := time.Since(start).Seconds() * 1000

	if best != nil {
		return Result{
			Assignments:         best.assignments,
			TotalExpectedReward: best.g,
			NodesExplored:       nodes,
			SearchTimeMS:        elapsed,
			SearchCompleted:     true,
			OptimizationQuality: "optimal",
		}
	}

	// Node budget exhausted without reaching a complete solution: fall
	// back to per-candidate greedy argmax (plus skip if that's higher).
	g := Greedy(items)
	g.NodesExplored = nodes
	g.SearchTimeMS = elapsed
	g.SearchCompleted = false
	g.OptimizationQuality = "greedy_fallback"
	return g
}

// Greedy picks, independently for every candidate, its best single
// option or "skip" if no option has positive reward. This is the
// search's own degraded-mode fallback when the node budget is
// exhausted before the search completes; the non-search inference path
// (enable_search=false) instead delegates lead-time choice directly to
// the timing optimizer's own argmax and never calls this function.
func Greedy(items []Item) Result {
	assignments := make([]Assignment, 0, len(items))
	var total float64
	for _, it := range items {
		bestReward := 0.0
		bestLeadTime := 0
		skipped := true
		for _, o := range it.Options {
			if o.Reward > bestReward {
				bestReward = o.Reward
				bestLeadTime = o.LeadTimeMinutes
				skipped = false
			}
		}
		assignments = append(assignments, Assignment{
			CandidateIndex:  it.CandidateIndex,
			LeadTimeMinutes: bestLeadTime,
			Skipped:         skipped,
			Reward:          bestReward,
		})
		total += bestReward
	}
	return Result{Assignments: assignments, TotalExpectedReward: total}
}

// ToScheduleResult converts a Result into the persistence/wire shape
// pkg.ScheduleResult, dropping the per-candidate assignment detail that
// callers fold back into pkg.Candidate.ChosenLeadTime/Skipped themselves.
func ToScheduleResult(r Result) pkg.ScheduleResult {
	return pkg.ScheduleResult{
		TotalExpectedReward: r.TotalExpectedReward,
		NodesExplored:       r.NodesExplored,
		SearchTimeMS:        r.SearchTimeMS,
		SearchCompleted:     r.SearchCompleted,
		OptimizationQuality: r.OptimizationQuality,
	}
}
