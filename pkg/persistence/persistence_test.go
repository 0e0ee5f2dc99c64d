package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mirakessler/nudge/pkg"
)

func TestSaveAndLoadTimingSlot(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "nudge.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	slot := pkg.TimingSlot{TaskType: "gym", ContextKey: "ctx", LeadTimeMinutes: 10, Alpha: 2, Beta: 1, TotalTriggers: 1}
	if err := s.SaveTimingSlot(slot); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := s.LoadTimingSlots()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Alpha != 2 {
		t.Fatalf("expected 1 persisted slot with alpha=2, got %+v", loaded)
	}
}

func TestSaveRuleWeight_MissingRuleFails(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "nudge.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.SaveRuleWeight(999, 0.5); err == nil {
		t.Fatal("expected an error updating a nonexistent rule's weight")
	}
}

func TestSaveAndLoadRule(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "nudge.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	now := time.Now()
	r := pkg.Rule{ID: 1, Name: "Gym bag", Weight: 0.75, IsActive: true, Source: pkg.RuleSourceUser, TaskType: "gym", CreatedAt: now, UpdatedAt: now}
	if err := s.SaveRule(r, `{"activity":"STATIONARY"}`); err != nil {
		t.Fatalf("save: %v", err)
	}
	rows, err := s.LoadActiveRules()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Gym bag" {
		t.Fatalf("expected 1 active rule row, got %+v", rows)
	}
}

func TestBoltStore_AppendAndListFeedback(t *testing.T) {
	dir := t.TempDir()
	bs, err := OpenBolt(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer bs.Close()

	rec := pkg.FeedbackRecord{RuleID: 1, Outcome: pkg.OutcomeAccept, ChosenLeadTime: 10, Timestamp: time.Now()}
	if err := bs.AppendFeedback(rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	recs, err := bs.ListFeedback()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 || recs[0].RuleID != 1 {
		t.Fatalf("expected 1 feedback record, got %+v", recs)
	}
}

func TestBoltStore_PreservesInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	bs, err := OpenBolt(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer bs.Close()

	for i := int64(1); i <= 3; i++ {
		bs.AppendFeedback(pkg.FeedbackRecord{RuleID: i, Outcome: pkg.OutcomeAccept, Timestamp: time.Now()})
	}
	recs, err := bs.ListFeedback()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, r := range recs {
		if r.RuleID != int64(i+1) {
			t.Fatalf("expected insertion order preserved, got %+v", recs)
		}
	}
}
