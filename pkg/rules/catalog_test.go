package rules

import (
	"errors"
	"testing"

	"github.com/mirakessler/nudge/pkg"
)

func TestCreate_ClampsWeightAndDerivesTaskType(t *testing.T) {
	cat := NewCatalog()
	r := cat.Create(pkg.Rule{Name: "Gym Bag Reminder", Weight: 5})

	if r.Weight != pkg.MaxRuleWeight {
		t.Fatalf("expected weight clamped to %v, got %v", pkg.MaxRuleWeight, r.Weight)
	}
	if r.TaskType != "gym" {
		t.Fatalf("expected task type 'gym', got %q", r.TaskType)
	}
	if !r.IsActive {
		t.Fatal("expected a newly created rule to be active")
	}
}

func TestUpdateWeight_ClampsAtBounds(t *testing.T) {
	cat := NewCatalog()
	r := cat.Create(pkg.Rule{Name: "Trash day", Weight: 0.92})

	w, err := cat.UpdateWeight(r.ID, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != pkg.MaxRuleWeight {
		t.Fatalf("expected weight clamped to max %v, got %v", pkg.MaxRuleWeight, w)
	}

	w, err = cat.UpdateWeight(r.ID, -10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != pkg.MinRuleWeight {
		t.Fatalf("expected weight clamped to min %v, got %v", pkg.MinRuleWeight, w)
	}
}

func TestDeactivate_HidesFromListActiveButKeepsInList(t *testing.T) {
	cat := NewCatalog()
	r := cat.Create(pkg.Rule{Name: "Water plants", Weight: 0.5})

	if err := cat.Deactivate(r.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cat.ListActive()) != 0 {
		t.Fatalf("expected no active rules after deactivation")
	}
	if len(cat.List()) != 1 {
		t.Fatalf("expected the deactivated rule to still appear in List()")
	}
}

func TestFindByCalendarEventID_LocatesPreviouslyGeneratedRule(t *testing.T) {
	cat := NewCatalog()
	r := cat.Create(pkg.Rule{
		Name:             "Dentist appointment",
		TriggerCondition: map[string]any{"extras.calendar_event_id": "evt-123"},
		Source:           pkg.RuleSourceCalendar,
		Weight:           0.8,
	})

	found, ok := cat.FindByCalendarEventID("evt-123")
	if !ok || found.ID != r.ID {
		t.Fatalf("expected to find rule %d by calendar event id, got %+v, ok=%v", r.ID, found, ok)
	}

	if _, ok := cat.FindByCalendarEventID("nonexistent"); ok {
		t.Fatal("expected no match for an unknown calendar event id")
	}
}

func TestLoadRule_PreservesIDAndAdvancesNextID(t *testing.T) {
	cat := NewCatalog()
	cat.LoadRule(pkg.Rule{ID: 42, Name: "Loaded rule", Weight: 0.7, IsActive: true})

	got, err := cat.Get(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Loaded rule" {
		t.Fatalf("expected loaded rule, got %+v", got)
	}

	created := cat.Create(pkg.Rule{Name: "New rule", Weight: 0.5})
	if created.ID <= 42 {
		t.Fatalf("expected a newly created rule's ID to exceed the loaded ID, got %d", created.ID)
	}
}

func TestGet_UnknownIDReturnsRuleNotFound(t *testing.T) {
	cat := NewCatalog()
	if _, err := cat.Get(999); !errors.Is(err, pkg.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound for an unknown rule id, got %v", err)
	}
}
