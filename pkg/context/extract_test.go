package context

import (
	"testing"
	"time"

	"github.com/mirakessler/nudge/pkg"
)

func ptr(s string) *string { return &s }

func TestExtract_MorningCommute(t *testing.T) {
	ts, err := time.Parse(time.RFC3339, "2025-12-01T08:30:00Z")
	if err != nil {
		t.Fatal(err)
	}
	c := pkg.Context{
		Timestamp:             ts,
		Activity:              pkg.ActivityInVehicle,
		SpeedKMH:               45.0,
		CarBluetoothConnected: true,
		LocationVector:        ptr("leaving_home"),
	}
	ec := Extract(c, nil)
	if ec.LocationCategory != pkg.LocationCommute {
		t.Fatalf("expected COMMUTE, got %s", ec.LocationCategory)
	}
	if ec.ActivityState != pkg.ActivityStateTraveling {
		t.Fatalf("expected TRAVELING, got %s", ec.ActivityState)
	}
	if ec.TimeOfDay != pkg.TimeMorning {
		t.Fatalf("expected MORNING, got %s", ec.TimeOfDay)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	ts := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	c := pkg.Context{
		Timestamp:             ts,
		Activity:              pkg.ActivityWalking,
		SpeedKMH:               3.0,
		CarBluetoothConnected: false,
		WifiSSID:              ptr(""),
	}
	a := Extract(c, nil)
	b := Extract(c, nil)
	if a != b {
		t.Fatalf("extraction is not idempotent: %+v vs %+v", a, b)
	}
}

func TestExtract_ConfidenceBounds(t *testing.T) {
	c := pkg.Context{Timestamp: time.Now(), Activity: pkg.ActivityUnknown}
	ec := Extract(c, nil)
	if ec.ConfidenceScore < 0 || ec.ConfidenceScore > 1 {
		t.Fatalf("confidence out of bounds: %f", ec.ConfidenceScore)
	}
	// Activity unknown, no wifi/bluetooth, no location vector: all three
	// penalties apply -> 1.0 - 0.6 = 0.4.
	if ec.ConfidenceScore != 0.4 {
		t.Fatalf("expected 0.4, got %f", ec.ConfidenceScore)
	}
}

func TestExtract_HomeWifi(t *testing.T) {
	c := pkg.Context{Timestamp: time.Now(), Activity: pkg.ActivityStill, SpeedKMH: 1, WifiSSID: ptr("HomeWiFi")}
	ec := Extract(c, nil)
	if ec.LocationCategory != pkg.LocationHome {
		t.Fatalf("expected HOME, got %s", ec.LocationCategory)
	}
}

func TestExtract_ContextKeyDeterminism(t *testing.T) {
	ts1 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	ts2 := time.Date(2025, 6, 2, 9, 45, 0, 0, time.UTC)
	c1 := pkg.Context{Timestamp: ts1, Activity: pkg.ActivityStill, SpeedKMH: 1, WifiSSID: ptr("OfficeWiFi")}
	c2 := pkg.Context{Timestamp: ts2, Activity: pkg.ActivityStill, SpeedKMH: 4.5, WifiSSID: ptr("OfficeWiFi")}
	ec1 := Extract(c1, nil)
	ec2 := Extract(c2, nil)
	if ec1.ContextKey() != ec2.ContextKey() {
		t.Fatalf("context keys differ despite identical (activity_state, time_of_day, is_weekday, location_category): %s vs %s", ec1.ContextKey(), ec2.ContextKey())
	}
}

func TestValidate_RejectsNegativeSpeed(t *testing.T) {
	c := pkg.Context{Timestamp: time.Now(), SpeedKMH: -1}
	if err := Validate(c); err == nil {
		t.Fatal("expected error for negative speed")
	}
}

func TestValidate_RejectsUnknownActivityVocabulary(t *testing.T) {
	c := pkg.Context{Timestamp: time.Now(), Activity: "FLYING"}
	if err := Validate(c); err == nil {
		t.Fatal("expected error for out-of-vocabulary activity")
	}
}
