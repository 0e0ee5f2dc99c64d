package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mirakessler/nudge/pkg"
)

// recognizedKeys enumerates the trigger-condition keys the matcher
// understands. Anything else is ignored (and counted as unrecognized,
// never contributing to K or M).
var recognizedKeys = map[string]bool{
	"activity": true, "activity_type": true, "time_range": true, "time": true,
	"day_of_week": true, "is_weekday": true, "location_vector": true,
	"location_category": true, "wifi_ssid": true, "car_bluetooth": true,
	"min_speed": true, "max_speed": true,
}

func isExtrasKey(k string) bool { return strings.HasPrefix(k, "extras.") }

// MatchResult is the outcome of scoring one rule against one context.
type MatchResult struct {
	BaseScore         float64
	MatchedConditions map[string]any
	Reasoning         string
}

// Match scores a rule against a context: base_score = M / max(K, 1),
// where K is the count of recognized keys present in trigger_condition
// and M the count that match. A rule with zero recognized keys scores
// 0. extras.<name> keys are evaluated against extras, the raw
// Context's sparse fact map — ExtractedContext itself does not retain
// it, since it is not part of the categorical feature set the context
// extractor produces.
func Match(r *pkg.Rule, ec pkg.ExtractedContext, extras map[string]any) MatchResult {
	var k, m int
	matched := map[string]any{}
	var reasons []string

	for key, want := range r.TriggerCondition {
		recognized := recognizedKeys[key] || isExtrasKey(key)
		if !recognized {
			continue
		}
		k++
		ok := evaluateCondition(key, want, ec, extras)
		if ok {
			m++
			matched[key] = want
			reasons = append(reasons, fmt.Sprintf("%s matched (%v)", key, want))
		} else {
			reasons = append(reasons, fmt.Sprintf("%s did not match", key))
		}
	}

	base := 0.0
	if k > 0 {
		base = float64(m) / float64(k)
	}

	reasoning := fmt.Sprintf("%d/%d recognized conditions matched", m, k)
	if len(reasons) > 0 {
		reasoning += ": " + strings.Join(reasons, "; ")
	}

	return MatchResult{BaseScore: base, MatchedConditions: matched, Reasoning: reasoning}
}

func evaluateCondition(key string, want any, ec pkg.ExtractedContext, extras map[string]any) bool {
	switch {
	case key == "activity":
		return equalsString(want, string(ec.ActivityState))
	case key == "activity_type":
		return equalsString(want, string(ec.RawActivity))
	case key == "time_range":
		return matchTimeRange(want, ec.Timestamp)
	case key == "time":
		return matchTimeTolerance(want, ec.Timestamp)
	case key == "day_of_week":
		return matchDayOfWeek(want, ec.DayOfWeek)
	case key == "is_weekday":
		return equalsBool(want, ec.IsWeekday)
	case key == "location_vector":
		return ec.RawLocationVector != nil && equalsString(want, *ec.RawLocationVector)
	case key == "location_category":
		return equalsString(want, string(ec.LocationCategory))
	case key == "wifi_ssid":
		return ec.WifiSSID != nil && equalsString(want, *ec.WifiSSID)
	case key == "car_bluetooth":
		return equalsBool(want, ec.CarConnected)
	case key == "min_speed":
		return numeric(want) <= ec.SpeedKMH
	case key == "max_speed":
		return numeric(want) >= ec.SpeedKMH
	case isExtrasKey(key):
		name := strings.TrimPrefix(key, "extras.")
		val, present := extras[name]
		return present && equalsAny(want, val)
	default:
		return false
	}
}

func equalsAny(want, got any) bool {
	return fmt.Sprintf("%v", want) == fmt.Sprintf("%v", got)
}

func equalsString(want any, got string) bool {
	s, ok := want.(string)
	if !ok {
		return false
	}
	return strings.EqualFold(s, got)
}

func equalsBool(want any, got bool) bool {
	b, ok := want.(bool)
	if !ok {
		return false
	}
	return b == got
}

func numeric(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

var weekdayNames = map[string]int{
	"monday": 1, "tuesday": 2, "wednesday": 3, "thursday": 4,
	"friday": 5, "saturday": 6, "sunday": 7,
}

func matchDayOfWeek(want any, got int) bool {
	switch v := want.(type) {
	case float64:
		return int(v) == got
	case int:
		return v == got
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n == got
		}
		if d, ok := weekdayNames[strings.ToLower(v)]; ok {
			return d == got
		}
	}
	return false
}

var hhmmRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

func parseHHMM(s string) (int, bool) {
	m := hhmmRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if h > 23 || min > 59 {
		return 0, false
	}
	return h*60 + min, true
}

// matchTimeRange implements the "HH:MM-HH:MM" time_range key, with
// wraparound across midnight allowed (e.g. "22:00-02:00").
func matchTimeRange(want any, now time.Time) bool {
	s, ok := want.(string)
	if !ok {
		return false
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return false
	}
	start, ok1 := parseHHMM(strings.TrimSpace(parts[0]))
	end, ok2 := parseHHMM(strings.TrimSpace(parts[1]))
	if !ok1 || !ok2 {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	// Wraps across midnight.
	return cur >= start || cur <= end
}

// matchTimeTolerance implements the exact "HH:MM" time key with a
// ±15-minute tolerance window.
func matchTimeTolerance(want any, now time.Time) bool {
	s, ok := want.(string)
	if !ok {
		return false
	}
	target, ok := parseHHMM(s)
	if !ok {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	diff := cur - target
	if diff < 0 {
		diff = -diff
	}
	// Handle wraparound near midnight (e.g. 23:55 vs 00:05).
	if diff > 12*60 {
		diff = 24*60 - diff
	}
	return diff <= 15
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// DeriveTaskType produces a deterministic, lowercased canonical token
// from a rule's Name: strip punctuation, take the first word, lowercase.
// It only needs to be deterministic per rule, not a deep NLP summary.
func DeriveTaskType(name string) string {
	cleaned := nonAlnum.ReplaceAllString(strings.TrimSpace(name), " ")
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return "task"
	}
	return strings.ToLower(fields[0])
}
