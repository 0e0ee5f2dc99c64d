// Package timing implements a per-(task_type, context_key, lead_time)
// Beta-Bernoulli bandit that learns which lead-time users tend to
// accept for a given recurring situation. Slots are a mutex-guarded
// store keyed by composite identity, lazily created on first access;
// gonum's distuv.Beta supplies the posterior mean, the upper confidence
// bound adds 0.5/sqrt(alpha+beta) to it, and sajari/regression surfaces
// an acceptance-rate trend for diagnostics.
package timing

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sajari/regression"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/logx"
)

type slotKey struct {
	taskType   string
	contextKey string
	leadTime   int
}

// trial is one accept/reject outcome recorded for a slot, kept only for
// the trend diagnostic — the bandit state itself lives entirely in
// TimingSlot.Alpha/Beta.
type trial struct {
	sequence int
	accepted float64 // 1.0 accept, 0.0 reject
}

// Optimizer is the keyed store of TimingSlots, one Beta-Bernoulli
// bandit per (task_type, context_key, lead_time_minutes).
type Optimizer struct {
	mu      sync.RWMutex
	slots   map[slotKey]*pkg.TimingSlot
	history map[slotKey][]trial
	logger  *logx.Logger
}

// New creates an empty Optimizer.
func New(logger *logx.Logger) *Optimizer {
	return &Optimizer{
		slots:   make(map[slotKey]*pkg.TimingSlot),
		history: make(map[slotKey][]trial),
		logger:  logger,
	}
}

// Load seeds the store from persisted rows, e.g. at daemon startup.
func (o *Optimizer) Load(slots []pkg.TimingSlot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range slots {
		cp := s
		o.slots[slotKey{s.TaskType, s.ContextKey, s.LeadTimeMinutes}] = &cp
	}
}

// Snapshot returns every TimingSlot currently held, for persistence.
func (o *Optimizer) Snapshot() []pkg.TimingSlot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]pkg.TimingSlot, 0, len(o.slots))
	for _, s := range o.slots {
		out = append(out, *s)
	}
	return out
}

func (o *Optimizer) getOrCreateLocked(k slotKey) *pkg.TimingSlot {
	s, ok := o.slots[k]
	if !ok {
		s = &pkg.TimingSlot{TaskType: k.taskType, ContextKey: k.contextKey, LeadTimeMinutes: k.leadTime, Alpha: 1, Beta: 1}
		o.slots[k] = s
	}
	return s
}

// Evaluate loads or lazily creates the slot for every candidate
// lead-time, and returns each option's confidence and UCB score. The
// list is always returned in the fixed pkg.LeadTimeCandidates order,
// regardless of map iteration order.
func (o *Optimizer) Evaluate(taskType, contextKey string) []pkg.TimingOption {
	o.mu.Lock()
	defer o.mu.Unlock()

	opts := make([]pkg.TimingOption, 0, len(pkg.LeadTimeCandidates))
	for _, w := range pkg.LeadTimeCandidates {
		k := slotKey{taskType, contextKey, w}
		s := o.getOrCreateLocked(k)
		conf := betaMean(s.Alpha, s.Beta)
		unc := 1.0 / math.Sqrt(s.Alpha+s.Beta)
		ucb := conf + 0.5*unc
		opts = append(opts, pkg.TimingOption{LeadTimeMinutes: w, Confidence: conf, UCB: ucb})
	}
	return opts
}

// betaMean is the Beta(alpha, beta) posterior mean, computed via
// gonum's distuv.Beta rather than the equivalent hand-rolled division.
func betaMean(alpha, beta float64) float64 {
	d := distuv.Beta{Alpha: alpha, Beta: beta}
	return d.Mean()
}

// ArgmaxUCB picks the lead-time with the highest UCB score, breaking
// ties by the lower lead-time.
func ArgmaxUCB(opts []pkg.TimingOption) pkg.TimingOption {
	best := opts[0]
	for _, o := range opts[1:] {
		if o.UCB > best.UCB || (o.UCB == best.UCB && o.LeadTimeMinutes < best.LeadTimeMinutes) {
			best = o
		}
	}
	return best
}

// Apply handles the timing half of feedback application: locate or
// create the slot, bump alpha on ACCEPT or beta on REJECT, and
// increment total_triggers. It returns the prior (alpha, beta) so the
// caller can roll back on a downstream persistence failure.
func (o *Optimizer) Apply(taskType, contextKey string, leadTime int, outcome pkg.Outcome) (prevAlpha, prevBeta float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	k := slotKey{taskType, contextKey, leadTime}
	s := o.getOrCreateLocked(k)
	prevAlpha, prevBeta = s.Alpha, s.Beta

	switch outcome {
	case pkg.OutcomeAccept:
		s.Alpha++
	case pkg.OutcomeReject:
		s.Beta++
	}
	s.TotalTriggers++

	h := o.history[k]
	acc := 0.0
	if outcome == pkg.OutcomeAccept {
		acc = 1.0
	}
	h = append(h, trial{sequence: len(h), accepted: acc})
	o.history[k] = h

	return prevAlpha, prevBeta
}

// Rollback restores a slot to a prior (alpha, beta) pair, undoing an
// Apply whose downstream persistence failed.
func (o *Optimizer) Rollback(taskType, contextKey string, leadTime int, alpha, beta float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := slotKey{taskType, contextKey, leadTime}
	s := o.getOrCreateLocked(k)
	s.Alpha = alpha
	s.Beta = beta
	if s.TotalTriggers > 0 {
		s.TotalTriggers--
	}
	if h := o.history[k]; len(h) > 0 {
		o.history[k] = h[:len(h)-1]
	}
}

// Trend reports whether a slot's acceptance rate is improving,
// degrading, or stable, by fitting a simple linear regression of
// accept/reject outcome against trial sequence number. This is a
// diagnostic only — it plays no part in confidence/UCB scoring, which
// is pure Beta-posterior arithmetic.
func (o *Optimizer) Trend(taskType, contextKey string, leadTime int) (slope float64, direction string, ok bool) {
	o.mu.RLock()
	h := append([]trial(nil), o.history[slotKey{taskType, contextKey, leadTime}]...)
	o.mu.RUnlock()

	if len(h) < 5 {
		return 0, "insufficient_data", false
	}

	r := new(regression.Regression)
	r.SetObserved("acceptance")
	r.SetVar(0, "sequence")
	for _, t := range h {
		r.Train(regression.DataPoint(t.accepted, []float64{float64(t.sequence)}))
	}
	if err := r.Run(); err != nil {
		return 0, "insufficient_data", false
	}

	slope = r.Coeff(1)
	switch {
	case slope > 0.01:
		direction = "improving"
	case slope < -0.01:
		direction = "degrading"
	default:
		direction = "stable"
	}
	return slope, direction, true
}

// Describe is a diagnostics helper summarizing every slot for a
// task_type/context_key pair, sorted by lead-time for stable output.
func (o *Optimizer) Describe(taskType, contextKey string) []string {
	opts := o.Evaluate(taskType, contextKey)
	sort.Slice(opts, func(i, j int) bool { return opts[i].LeadTimeMinutes < opts[j].LeadTimeMinutes })
	lines := make([]string, 0, len(opts))
	for _, op := range opts {
		lines = append(lines, fmt.Sprintf("%dm: confidence=%.3f ucb=%.3f", op.LeadTimeMinutes, op.Confidence, op.UCB))
	}
	return lines
}
