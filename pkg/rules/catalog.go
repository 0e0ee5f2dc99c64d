// Package rules holds the rule catalog and the rule matcher. The
// catalog is a typed, mutex-guarded store with no business logic of
// its own — a map keyed by rule ID behind a single sync.RWMutex,
// exposing exactly the CRUD operations a rule's lifecycle needs.
package rules

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mirakessler/nudge/pkg"
)

// Catalog is the single-writer/many-reader store of rules, active and
// deactivated.
type Catalog struct {
	mu     sync.RWMutex
	rules  map[int64]*pkg.Rule
	nextID int64
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{rules: make(map[int64]*pkg.Rule)}
}

// ListActive returns every rule with IsActive == true, sorted by ID for
// deterministic output.
func (c *Catalog) ListActive() []*pkg.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*pkg.Rule, 0, len(c.rules))
	for _, r := range c.rules {
		if r.IsActive {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortRulesByID(out)
	return out
}

// List returns every rule regardless of IsActive, sorted by ID.
func (c *Catalog) List() []*pkg.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*pkg.Rule, 0, len(c.rules))
	for _, r := range c.rules {
		cp := *r
		out = append(out, &cp)
	}
	sortRulesByID(out)
	return out
}

func sortRulesByID(rs []*pkg.Rule) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j-1].ID > rs[j].ID; j-- {
			rs[j-1], rs[j] = rs[j], rs[j-1]
		}
	}
}

// Get returns the rule with the given ID.
func (c *Catalog) Get(id int64) (*pkg.Rule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: rule %d", pkg.ErrRuleNotFound, id)
	}
	cp := *r
	return &cp, nil
}

// Create adds a new rule, always assigning the next catalog ID (any ID
// on r is ignored), defaulting a zero Weight and clamping it,
// deriving TaskType from Name, and stamping CreatedAt/UpdatedAt.
func (c *Catalog) Create(r pkg.Rule) *pkg.Rule {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	r.ID = c.nextID
	if r.Weight == 0 {
		r.Weight = pkg.DefaultRuleWeight
	}
	r.Weight = pkg.ClampWeight(r.Weight)
	r.IsActive = true
	if r.Source == "" {
		r.Source = pkg.RuleSourceUser
	}
	r.TaskType = DeriveTaskType(r.Name)
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	cp := r
	c.rules[r.ID] = &cp
	out := cp
	return &out
}

// UpdateWeight applies a delta to a rule's weight, clamping to
// [pkg.MinRuleWeight, pkg.MaxRuleWeight], and returns the new value.
func (c *Catalog) UpdateWeight(id int64, delta float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rules[id]
	if !ok {
		return 0, fmt.Errorf("%w: rule %d", pkg.ErrRuleNotFound, id)
	}
	r.Weight = pkg.ClampWeight(r.Weight + delta)
	r.UpdatedAt = time.Now()
	return r.Weight, nil
}

// SetWeight overwrites a rule's weight with an absolute value, clamped
// to [pkg.MinRuleWeight, pkg.MaxRuleWeight]. Used to restore a rule to
// a known-prior weight (e.g. rolling back a failed persistence write),
// where reapplying a negated delta would not reverse a clamp.
func (c *Catalog) SetWeight(id int64, weight float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rules[id]
	if !ok {
		return fmt.Errorf("%w: rule %d", pkg.ErrRuleNotFound, id)
	}
	r.Weight = pkg.ClampWeight(weight)
	r.UpdatedAt = time.Now()
	return nil
}

// Deactivate sets IsActive=false; it does not delete the rule, so a
// retired rule is still visible to List but never to ListActive.
func (c *Catalog) Deactivate(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rules[id]
	if !ok {
		return fmt.Errorf("%w: rule %d", pkg.ErrRuleNotFound, id)
	}
	r.IsActive = false
	r.UpdatedAt = time.Now()
	return nil
}

// FindByCalendarEventID locates a calendar-sourced rule previously
// created for the given external event ID, if any. Used by
// pkg/calendar to decide create vs update.
func (c *Catalog) FindByCalendarEventID(eventID string) (*pkg.Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rules {
		if r.Source != pkg.RuleSourceCalendar {
			continue
		}
		if id, ok := r.TriggerCondition["extras.calendar_event_id"]; ok && id == eventID {
			cp := *r
			return &cp, true
		}
	}
	return nil, false
}

// Replace overwrites an existing rule's mutable fields in place
// (used by calendar ingestion to update a previously generated rule).
func (c *Catalog) Replace(id int64, name, description string, trigger map[string]any, weight float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rules[id]
	if !ok {
		return fmt.Errorf("%w: rule %d", pkg.ErrRuleNotFound, id)
	}
	r.Name = name
	r.Description = description
	r.TriggerCondition = trigger
	r.Weight = pkg.ClampWeight(weight)
	r.UpdatedAt = time.Now()
	return nil
}

// LoadRule inserts a rule that already has a persisted ID, used to
// rehydrate the catalog from storage at startup. It advances nextID so
// later Create calls never collide with a loaded ID.
func (c *Catalog) LoadRule(r pkg.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := r
	c.rules[r.ID] = &cp
	if r.ID > c.nextID {
		c.nextID = r.ID
	}
}

// NewRuleID generates a collision-resistant external identifier for a
// rule's metadata (e.g. to correlate with an audit trail entry) when the
// caller needs one before the catalog assigns the int64 primary key.
func NewRuleID() string {
	return uuid.NewString()
}
