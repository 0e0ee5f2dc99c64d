// Package feedback implements the learning service: applying a user's
// ACCEPT/REJECT outcome to a rule's weight and the corresponding
// TimingSlot's Beta parameters, atomically with respect to persistence,
// and logging every transition.
package feedback

import (
	"fmt"
	"sync"

	contextpkg "github.com/mirakessler/nudge/pkg/context"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/logx"
	"github.com/mirakessler/nudge/pkg/rules"
	"github.com/mirakessler/nudge/pkg/timing"
)

// Persister is the subset of persistence pkg/persistence exposes that
// apply_feedback needs: durably writing the updated rule weight and
// TimingSlot, and appending the raw feedback record to the audit log.
// Any failure here triggers an in-memory rollback of the mutation.
type Persister interface {
	SaveRuleWeight(ruleID int64, weight float64) error
	SaveTimingSlot(slot pkg.TimingSlot) error
	AppendFeedback(rec pkg.FeedbackRecord) error
}

// Service applies feedback against a rule catalog and timing optimizer.
type Service struct {
	mu        sync.Mutex // serializes Apply calls end to end
	catalog   *rules.Catalog
	optimizer *timing.Optimizer
	persister Persister
	logger    *logx.Logger
}

// New creates a feedback Service. persister may be nil, in which case
// mutations are applied in-memory only (useful for tests).
func New(catalog *rules.Catalog, optimizer *timing.Optimizer, persister Persister, logger *logx.Logger) *Service {
	return &Service{catalog: catalog, optimizer: optimizer, persister: persister, logger: logger}
}

// Apply records an ACCEPT/REJECT outcome against the rule and timing
// slot it came from. It is safe to call concurrently with Infer, and
// with itself — concurrent Apply calls are serialized by the Service's
// own mutex, and each catalog/optimizer mutation by their internal locks.
func (s *Service) Apply(ruleID int64, outcome pkg.Outcome, snapshot pkg.Context, chosenLeadTime int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ec := contextpkg.Extract(snapshot, nil)
	contextKey := ec.ContextKey()

	rule, err := s.catalog.Get(ruleID)
	if err != nil {
		return err
	}
	if !rule.IsActive {
		return fmt.Errorf("%w: rule %d is inactive", pkg.ErrRuleNotFound, ruleID)
	}

	var delta float64
	switch outcome {
	case pkg.OutcomeAccept:
		delta = 0.05
	case pkg.OutcomeReject:
		// Asymmetric: a false-positive notification costs more than a
		// missed reminder, so rejection moves the weight twice as fast.
		delta = -0.10
	default:
		return fmt.Errorf("%w: unrecognized outcome %q", pkg.ErrInvalidContext, outcome)
	}

	priorWeight := rule.Weight
	newWeight, err := s.catalog.UpdateWeight(ruleID, delta)
	if err != nil {
		return err
	}

	prevAlpha, prevBeta := s.optimizer.Apply(rule.TaskType, contextKey, chosenLeadTime, outcome)

	rec := pkg.FeedbackRecord{
		RuleID:          ruleID,
		Outcome:         outcome,
		ContextSnapshot: snapshot,
		ChosenLeadTime:  chosenLeadTime,
		Timestamp:       ec.Timestamp,
	}

	if s.persister != nil {
		persistErr := s.persist(ruleID, newWeight, rule, contextKey, chosenLeadTime, rec)
		if persistErr != nil {
			if s.logger != nil {
				s.logger.Warn("feedback persistence failed, retrying once", "rule_id", ruleID, "error", persistErr.Error())
			}
			persistErr = s.persist(ruleID, newWeight, rule, contextKey, chosenLeadTime, rec)
		}
		if persistErr != nil {
			// Roll back both mutations to their pre-call values so a
			// persistence failure never leaves in-memory state ahead of
			// what was durably written. Restoring the catalog weight by
			// absolute value (not by reapplying -delta) matters when the
			// forward UpdateWeight call was clamped at MinRuleWeight/
			// MaxRuleWeight: negating the delta would not land back on
			// priorWeight.
			s.catalog.SetWeight(ruleID, priorWeight)
			s.optimizer.Rollback(rule.TaskType, contextKey, chosenLeadTime, prevAlpha, prevBeta)
			if s.logger != nil {
				s.logger.Error("feedback persistence failed after retry, rolled back in-memory state", "rule_id", ruleID, "error", persistErr.Error())
			}
			return fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, persistErr)
		}
	}

	if s.logger != nil {
		s.logger.Info("feedback applied", "rule_id", ruleID, "outcome", string(outcome), "new_weight", newWeight, "context_key", contextKey, "lead_time", chosenLeadTime)
	}
	return nil
}

func (s *Service) persist(ruleID int64, newWeight float64, rule *pkg.Rule, contextKey string, leadTime int, rec pkg.FeedbackRecord) error {
	if err := s.persister.SaveRuleWeight(ruleID, newWeight); err != nil {
		return err
	}
	// Read the authoritative post-mutation slot state back from the
	// optimizer rather than reconstructing it, so persistence always
	// writes exactly what Apply just computed.
	var slot pkg.TimingSlot
	for _, sObj := range s.optimizer.Snapshot() {
		if sObj.TaskType == rule.TaskType && sObj.ContextKey == contextKey && sObj.LeadTimeMinutes == leadTime {
			slot = sObj
			break
		}
	}
	if err := s.persister.SaveTimingSlot(slot); err != nil {
		return err
	}
	return s.persister.AppendFeedback(rec)
}
