// Package calendar converts externally-parsed calendar events into
// Rules. It never parses event text itself — it trusts the ParsedEvent
// fields the caller supplies.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/logx"
	"github.com/mirakessler/nudge/pkg/rules"
)

// priorityWeight maps a ParsedEvent's priority to a Rule's initial weight.
func priorityWeight(p pkg.EventPriority) float64 {
	switch p {
	case pkg.PriorityHigh:
		return 0.85
	case pkg.PriorityMedium:
		return 0.75
	case pkg.PriorityLow:
		return 0.65
	default:
		return pkg.DefaultRuleWeight
	}
}

// TravelEstimator optionally backfills a ParsedEvent's missing
// travel_time_minutes from its location, e.g. via a live maps API. It
// is best-effort: ingestion never fails because an estimate could not
// be obtained.
type TravelEstimator interface {
	EstimateTravelMinutes(ctx context.Context, origin, destination string) (int, error)
}

// Ingester implements ingest_calendar_events against a rule catalog.
type Ingester struct {
	catalog  *rules.Catalog
	travel   TravelEstimator
	homeAddr string // origin used for travel-time backfill, if configured
	logger   *logx.Logger
}

// New creates an Ingester. travel and homeAddr may be left zero-valued
// to skip travel-time enrichment entirely.
func New(catalog *rules.Catalog, travel TravelEstimator, homeAddr string, logger *logx.Logger) *Ingester {
	return &Ingester{catalog: catalog, travel: travel, homeAddr: homeAddr, logger: logger}
}

// Ingest converts parsed calendar events into rules, creating a new
// rule for each previously-unseen event and updating the rule already
// generated from an event whose details changed.
func (in *Ingester) Ingest(ctx context.Context, events []pkg.ParsedEvent) pkg.IngestResult {
	var result pkg.IngestResult
	for _, ev := range events {
		ev := in.backfillTravel(ctx, ev)
		trigger := triggerCondition(ev)
		weight := priorityWeight(ev.Priority)
		name := ev.Title
		if name == "" {
			name = "Calendar event"
		}
		description := fmt.Sprintf("Generated from calendar event %s", ev.EventID)

		if existing, ok := in.catalog.FindByCalendarEventID(ev.EventID); ok {
			if err := in.catalog.Replace(existing.ID, name, description, trigger, weight); err != nil {
				if in.logger != nil {
					in.logger.Warn("failed to update calendar-sourced rule", "event_id", ev.EventID, "error", err.Error())
				}
				continue
			}
			result.Updated++
			continue
		}

		in.catalog.Create(pkg.Rule{
			Name:             name,
			Description:      description,
			TriggerCondition: trigger,
			Weight:           weight,
			Source:           pkg.RuleSourceCalendar,
		})
		result.Created++
		result.RulesGenerated++
	}
	return result
}

// backfillTravel fills TravelTimeMinutes from the configured
// TravelEstimator when the event carries a location but no travel time
// was supplied. Any failure is logged and the event is left unchanged.
func (in *Ingester) backfillTravel(ctx context.Context, ev pkg.ParsedEvent) pkg.ParsedEvent {
	if in.travel == nil || in.homeAddr == "" || ev.Location == "" || ev.TravelTimeMinutes > 0 {
		return ev
	}
	minutes, err := in.travel.EstimateTravelMinutes(ctx, in.homeAddr, ev.Location)
	if err != nil {
		if in.logger != nil {
			in.logger.Debug("travel-time backfill failed, leaving travel_time_minutes at 0", "event_id", ev.EventID, "error", err.Error())
		}
		return ev
	}
	ev.TravelTimeMinutes = minutes
	return ev
}

// triggerCondition builds the trigger_condition map encoding a start-
// time match. day_of_week always constrains the event to its original
// weekday, and location_vector is added whenever the event carries a
// location. An all-day event has no meaningful clock time, so it stops
// there; a timed event also gets a time_range bracketing
// [start - prep - travel, start]. extras.calendar_event_id always
// carries the external event ID for FindByCalendarEventID lookups.
func triggerCondition(ev pkg.ParsedEvent) map[string]any {
	cond := map[string]any{
		"extras.calendar_event_id": ev.EventID,
		"day_of_week":              int(isoWeekday(ev.StartTime)),
	}
	if ev.Location != "" {
		cond["location_vector"] = ev.Location
	}
	if ev.IsAllDay {
		return cond
	}
	lead := time.Duration(ev.PreparationTimeMinutes+ev.TravelTimeMinutes) * time.Minute
	windowStart := ev.StartTime.Add(-lead)
	cond["time_range"] = fmt.Sprintf("%02d:%02d-%02d:%02d", windowStart.Hour(), windowStart.Minute(), ev.StartTime.Hour(), ev.StartTime.Minute())
	return cond
}

func isoWeekday(t time.Time) int {
	d := int(t.Weekday())
	if d == 0 {
		return 7
	}
	return d
}
