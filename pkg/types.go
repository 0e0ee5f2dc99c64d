// Package pkg holds the data types shared across every nudge component:
// the raw Context a caller submits, the normalized ExtractedContext the
// context extractor produces, the persistent Rule/TimingSlot records,
// and the response shapes the inference and scheduling engines return.
package pkg

import "time"

// Activity is the raw activity-recognition label a caller reports.
type Activity string

const (
	ActivityStill     Activity = "STILL"
	ActivityWalking   Activity = "WALKING"
	ActivityRunning   Activity = "RUNNING"
	ActivityBicycle   Activity = "ON_BICYCLE"
	ActivityInVehicle Activity = "IN_VEHICLE"
	ActivityOnFoot    Activity = "ON_FOOT"
	ActivityUnknown   Activity = "UNKNOWN"
)

// ValidActivities enumerates the recognized vocabulary for Context.Activity.
var ValidActivities = map[Activity]bool{
	ActivityStill: true, ActivityWalking: true, ActivityRunning: true,
	ActivityBicycle: true, ActivityInVehicle: true, ActivityOnFoot: true,
	ActivityUnknown: true,
}

// TimeOfDay buckets the hour of day a context was observed.
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "MORNING"
	TimeAfternoon TimeOfDay = "AFTERNOON"
	TimeEvening   TimeOfDay = "EVENING"
	TimeNight     TimeOfDay = "NIGHT"
)

// LocationCategory is the normalized place classification the context
// extractor produces.
type LocationCategory string

const (
	LocationHome            LocationCategory = "HOME"
	LocationWork            LocationCategory = "WORK"
	LocationCampus          LocationCategory = "CAMPUS"
	LocationCommute         LocationCategory = "COMMUTE"
	LocationNearHome        LocationCategory = "NEAR_HOME"
	LocationInParkedVehicle LocationCategory = "IN_PARKED_VEHICLE"
	LocationUnknown         LocationCategory = "UNKNOWN"
)

// ActivityState is the coarse movement bucket derived from Activity.
type ActivityState string

const (
	ActivityStateStationary ActivityState = "STATIONARY"
	ActivityStateTraveling  ActivityState = "TRAVELING"
	ActivityStateWalking    ActivityState = "WALKING"
	ActivityStateUnknown    ActivityState = "UNKNOWN"
)

// Outcome is the user's response to a delivered suggestion.
type Outcome string

const (
	OutcomeAccept Outcome = "ACCEPT"
	OutcomeReject Outcome = "REJECT"
)

// RuleSource records where a Rule originated. The engine treats all
// sources identically for matching and learning; beyond diagnostics,
// calendar ingestion uses it to find the rules it generated.
type RuleSource string

const (
	RuleSourceUser     RuleSource = "user"
	RuleSourceChat     RuleSource = "chat"
	RuleSourceCalendar RuleSource = "calendar"
)

// LeadTimeCandidates is the fixed set of minutes-before-notification
// options the timing optimizer and schedule optimizer choose among.
var LeadTimeCandidates = []int{10, 15, 30, 60}

const (
	// MinRuleWeight and MaxRuleWeight bound Rule.Weight at every mutation.
	MinRuleWeight = 0.10
	MaxRuleWeight = 0.95
	// DefaultRuleWeight is assigned to newly created rules.
	DefaultRuleWeight = 0.75
	// SuggestionThreshold is the minimum suggestion_score a candidate
	// must clear to be surfaced.
	SuggestionThreshold = 0.60
)

// Context is the raw snapshot of a user's situation supplied to infer().
type Context struct {
	Timestamp             time.Time         `json:"timestamp"`
	Activity              Activity          `json:"activity"`
	SpeedKMH              float64           `json:"speed_kmh"`
	CarBluetoothConnected bool              `json:"car_bluetooth_connected"`
	WifiSSID              *string           `json:"wifi_ssid"`
	LocationVector        *string           `json:"location_vector"`
	Extras                map[string]any    `json:"extras,omitempty"`
}

// ExtractedContext is the categorical, normalized view of a Context.
type ExtractedContext struct {
	TimeOfDay        TimeOfDay        `json:"time_of_day"`
	DayOfWeek        int              `json:"day_of_week"` // 1..7, Monday=1
	IsWeekday        bool             `json:"is_weekday"`
	LocationCategory LocationCategory `json:"location_category"`
	ActivityState    ActivityState    `json:"activity_state"`
	CarConnected     bool             `json:"car_connected"`
	WifiSSID         *string          `json:"wifi_ssid"`
	SpeedKMH         float64          `json:"speed_kmh"`
	ConfidenceScore  float64          `json:"confidence_score"`

	// RawActivity and RawLocationVector are retained for matcher keys
	// (activity_type, location_vector) that test against the un-
	// normalized input rather than the derived categories.
	RawActivity       Activity `json:"raw_activity"`
	RawLocationVector *string  `json:"raw_location_vector"`
	Timestamp         time.Time `json:"timestamp"`
}

// ContextKey is the deterministic string TimingSlot lookups are keyed by:
// activity_state_timeofday_weekday_locationcategory, joined by "_" in
// that order.
func (ec *ExtractedContext) ContextKey() string {
	weekday := "weekend"
	if ec.IsWeekday {
		weekday = "weekday"
	}
	return string(ec.ActivityState) + "_" + string(ec.TimeOfDay) + "_" + weekday + "_" + string(ec.LocationCategory)
}

// Rule is a persistent declarative pattern mapping a context-condition
// conjunction to a task reminder, with a learned weight.
type Rule struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	TriggerCondition map[string]any `json:"trigger_condition"`
	Weight           float64        `json:"weight"`
	IsActive         bool           `json:"is_active"`
	Source           RuleSource     `json:"source"`
	// TaskType is derived once at creation time from Name (see
	// DeriveTaskType) and cached so a later rename never changes the
	// TimingSlot keys already learned for this rule.
	TaskType  string    `json:"task_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClampWeight enforces the [MinRuleWeight, MaxRuleWeight] invariant.
func ClampWeight(w float64) float64 {
	if w < MinRuleWeight {
		return MinRuleWeight
	}
	if w > MaxRuleWeight {
		return MaxRuleWeight
	}
	return w
}

// TimingSlot is the persistent Beta-distribution state for one
// (task_type, context_key, lead_time_minutes) triple.
type TimingSlot struct {
	TaskType         string  `json:"task_type"`
	ContextKey       string  `json:"context_key"`
	LeadTimeMinutes  int     `json:"lead_time_minutes"`
	Alpha            float64 `json:"alpha"`
	Beta             float64 `json:"beta"`
	TotalTriggers    int     `json:"total_triggers"`
}

// Confidence is the Beta posterior mean alpha/(alpha+beta).
func (ts *TimingSlot) Confidence() float64 {
	return ts.Alpha / (ts.Alpha + ts.Beta)
}

// FeedbackRecord is one entry in the append-only feedback log.
type FeedbackRecord struct {
	RuleID          int64     `json:"rule_id"`
	Outcome         Outcome   `json:"outcome"`
	ContextSnapshot Context   `json:"context_snapshot"`
	ChosenLeadTime  int       `json:"chosen_lead_time"`
	Timestamp       time.Time `json:"timestamp"`
}

// TimingOption is one (lead_time, confidence, ucb) tuple the timing
// optimizer returns for a candidate.
type TimingOption struct {
	LeadTimeMinutes int     `json:"lead_time_minutes"`
	Confidence      float64 `json:"confidence"`
	UCB             float64 `json:"ucb"`
}

// Candidate is a rule that passed the inference threshold.
type Candidate struct {
	RuleID            int64            `json:"rule_id"`
	RuleName          string           `json:"rule_name"`
	SuggestionScore   float64          `json:"suggestion_score"`
	TimingOptions     []TimingOption   `json:"timing_options"`
	ChosenLeadTime    int              `json:"chosen_lead_time"`
	Skipped           bool             `json:"skipped"`
	Reasoning         string           `json:"reasoning"`
	MatchedConditions map[string]any   `json:"matched_conditions"`
}

// ContextSummary is the human-facing digest of the ExtractedContext an
// InferenceResponse is built from.
type ContextSummary struct {
	Activity          ActivityState    `json:"activity"`
	LocationCategory  LocationCategory `json:"location_category"`
	TimeOfDay         TimeOfDay        `json:"time_of_day"`
	CarConnected      bool             `json:"car_connected"`
	WifiSSID          *string          `json:"wifi_ssid"`
	OptimizationMode  string           `json:"optimization_mode"`
}

// InferenceResponse is the result of one infer() call.
type InferenceResponse struct {
	SuggestedTasks      []Candidate     `json:"suggested_tasks"`
	ContextSummary      ContextSummary  `json:"context_summary"`
	TotalRulesEvaluated int             `json:"total_rules_evaluated"`
	SearchMetadata      *ScheduleResult `json:"search_metadata,omitempty"`
}

// ScheduleResult describes the joint schedule the scheduling search chose.
type ScheduleResult struct {
	TotalExpectedReward float64 `json:"total_expected_reward"`
	NodesExplored       int     `json:"nodes_explored"`
	SearchTimeMS        float64 `json:"search_time_ms"`
	SearchCompleted     bool    `json:"search_completed"`
	OptimizationQuality string  `json:"optimization_quality"` // "optimal" | "greedy_fallback"
}

// EventPriority is the urgency a calendar event is tagged with.
type EventPriority string

const (
	PriorityHigh   EventPriority = "HIGH"
	PriorityMedium EventPriority = "MEDIUM"
	PriorityLow    EventPriority = "LOW"
)

// ParsedEvent is a calendar event already enriched by the external
// calendar parser; the core never parses free text itself.
type ParsedEvent struct {
	EventID                string        `json:"event_id"`
	Title                  string        `json:"title"`
	StartTime              time.Time     `json:"start_time"`
	EndTime                time.Time     `json:"end_time"`
	Priority               EventPriority `json:"priority"`
	IsAllDay               bool          `json:"is_all_day"`
	Location               string        `json:"location,omitempty"`
	PreparationTimeMinutes int           `json:"preparation_time_minutes"`
	TravelTimeMinutes      int           `json:"travel_time_minutes"`
}

// IngestResult reports what ingest_calendar_events did with a batch.
type IngestResult struct {
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	RulesGenerated int `json:"rules_generated"`
}
