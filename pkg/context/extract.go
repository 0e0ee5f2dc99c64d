// Package context turns a raw pkg.Context sensor snapshot into a
// categorical pkg.ExtractedContext via a pure function with no side
// effects and no shared state.
package context

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mirakessler/nudge/pkg"
)

var (
	homeSSID   = regexp.MustCompile(`(?i)home`)
	officeSSID = regexp.MustCompile(`(?i)office|work`)
	campusSSID = regexp.MustCompile(`(?i)campus|university`)
)

// LocationHint optionally refines the final UNKNOWN fallback using a
// learned cluster (see pkg/location). It must never override the
// earlier deterministic rules; Extract only consults it once none of
// those rules matched.
type LocationHint interface {
	// Resolve returns a confident LocationCategory for the raw location
	// vector / coordinates, or ("", false) if no cluster is confident
	// enough to offer an opinion.
	Resolve(locationVector *string, speedKMH float64) (pkg.LocationCategory, bool)
}

// Extract turns a raw Context into an ExtractedContext. hint may be
// nil, in which case the location fallback always resolves to UNKNOWN
// with no enrichment.
func Extract(c pkg.Context, hint LocationHint) pkg.ExtractedContext {
	ec := pkg.ExtractedContext{
		TimeOfDay:         timeOfDay(c.Timestamp.Hour()),
		DayOfWeek:         isoWeekday(c.Timestamp),
		ActivityState:     activityState(c.Activity),
		CarConnected:      c.CarBluetoothConnected,
		WifiSSID:          c.WifiSSID,
		SpeedKMH:          c.SpeedKMH,
		RawActivity:       c.Activity,
		RawLocationVector: c.LocationVector,
		Timestamp:         c.Timestamp,
	}
	ec.IsWeekday = ec.DayOfWeek <= 5
	ec.LocationCategory = locationCategory(c, hint)
	ec.ConfidenceScore = confidenceScore(c)
	return ec
}

// timeOfDay buckets the hour of day:
// MORNING(<12), AFTERNOON(<17), EVENING(<21), NIGHT otherwise.
func timeOfDay(hour int) pkg.TimeOfDay {
	switch {
	case hour < 12:
		return pkg.TimeMorning
	case hour < 17:
		return pkg.TimeAfternoon
	case hour < 21:
		return pkg.TimeEvening
	default:
		return pkg.TimeNight
	}
}

// isoWeekday returns 1..7 with Monday=1, Sunday=7, so "day_of_week <= 5"
// identifies a weekday.
func isoWeekday(t time.Time) int {
	d := int(t.Weekday())
	if d == 0 {
		return 7
	}
	return d
}

func activityState(a pkg.Activity) pkg.ActivityState {
	switch a {
	case pkg.ActivityStill:
		return pkg.ActivityStateStationary
	case pkg.ActivityWalking, pkg.ActivityRunning, pkg.ActivityOnFoot:
		return pkg.ActivityStateWalking
	case pkg.ActivityInVehicle, pkg.ActivityBicycle:
		return pkg.ActivityStateTraveling
	default:
		return pkg.ActivityStateUnknown
	}
}

// locationCategory evaluates a fixed cascade of inference rules in
// order; first match wins.
func locationCategory(c pkg.Context, hint LocationHint) pkg.LocationCategory {
	ssid := ""
	if c.WifiSSID != nil {
		ssid = *c.WifiSSID
	}

	switch {
	case c.SpeedKMH > 10 && c.CarBluetoothConnected && c.Activity == pkg.ActivityInVehicle:
		return pkg.LocationCommute
	case c.SpeedKMH < 5 && ssid != "" && (homeSSID.MatchString(ssid) || ssid == "HomeWiFi"):
		return pkg.LocationHome
	case c.SpeedKMH < 5 && ssid != "" && (officeSSID.MatchString(ssid) || ssid == "OfficeWiFi"):
		return pkg.LocationWork
	case c.SpeedKMH < 5 && ssid != "" && campusSSID.MatchString(ssid):
		return pkg.LocationCampus
	case c.SpeedKMH > 0 && c.SpeedKMH < 10 && c.Activity == pkg.ActivityWalking && ssid == "":
		return pkg.LocationNearHome
	case c.SpeedKMH < 5 && c.CarBluetoothConnected && c.Activity == pkg.ActivityStill:
		return pkg.LocationInParkedVehicle
	default:
		if hint != nil {
			if cat, ok := hint.Resolve(c.LocationVector, c.SpeedKMH); ok {
				return cat
			}
		}
		return pkg.LocationUnknown
	}
}

// confidenceScore starts at 1.0 and subtracts 0.2 for each missing
// primary field, clamped at 0.
func confidenceScore(c pkg.Context) float64 {
	missing := 0
	if c.Activity == pkg.ActivityUnknown {
		missing++
	}
	wifiEmpty := c.WifiSSID == nil || strings.TrimSpace(*c.WifiSSID) == ""
	if wifiEmpty && !c.CarBluetoothConnected {
		missing++
	}
	locEmpty := c.LocationVector == nil || strings.TrimSpace(*c.LocationVector) == ""
	if locEmpty {
		missing++
	}
	// Computed in tenths so the result is the exact decimal (0.4, not
	// 0.4000000000000001 from three float subtractions of 0.2).
	score := float64(10-2*missing) / 10
	if score < 0 {
		score = 0
	}
	return score
}

// Validate checks the inbound Context for malformed input: a zero
// timestamp, negative speed, or an activity label outside the
// recognized vocabulary.
func Validate(c pkg.Context) error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is zero", pkg.ErrInvalidContext)
	}
	if c.SpeedKMH < 0 {
		return fmt.Errorf("%w: speed_kmh is negative (%f)", pkg.ErrInvalidContext, c.SpeedKMH)
	}
	if c.Activity != "" && !pkg.ValidActivities[c.Activity] {
		return fmt.Errorf("%w: activity %q not in vocabulary", pkg.ErrInvalidContext, c.Activity)
	}
	return nil
}
