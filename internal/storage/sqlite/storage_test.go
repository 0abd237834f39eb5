package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yegors/co-gcs/internal/calibration"
	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/pkg/logger"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testTable(device string) *calibration.Table {
	return &calibration.Table{
		DeviceID: device,
		Profile:  calibration.ProfileRC,
		Mappings: []calibration.Mapping{
			{Function: calibration.Roll, Axis: 0, Min: 1000, Max: 2000, Trim: 1500},
			{Function: calibration.Pitch, Axis: 1, Reversed: true, Min: 1010, Max: 1990, Trim: 1502},
			{Function: calibration.Yaw, Axis: 3, Min: 1000, Max: 2000, Trim: 1498},
			{Function: calibration.Throttle, Axis: 2, Min: 990, Max: 2010, Trim: 990},
		},
	}
}

func TestCalibrationRoundTrip(t *testing.T) {
	s := openTestStorage(t)

	got, err := s.LoadCalibration("radio")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("uncalibrated device returned %+v", got)
	}

	if err := s.SaveCalibration(testTable("radio")); err != nil {
		t.Fatal(err)
	}
	got, err = s.LoadCalibration("radio")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(testTable("radio"), got); diff != "" {
		t.Errorf("table (-want +got):\n%s", diff)
	}
}

func TestSaveCalibrationReplaces(t *testing.T) {
	s := openTestStorage(t)
	if err := s.SaveCalibration(testTable("radio")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveCalibration(testTable("gamepad")); err != nil {
		t.Fatal(err)
	}

	smaller := testTable("radio")
	smaller.Mappings = smaller.Mappings[:2]
	if err := s.SaveCalibration(smaller); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadCalibration("radio")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Mappings) != 2 {
		t.Fatalf("mappings = %d, want 2", len(got.Mappings))
	}

	devices, err := s.CalibratedDevices()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"gamepad", "radio"}, devices); diff != "" {
		t.Errorf("devices (-want +got):\n%s", diff)
	}

	if err := s.SaveCalibration(&calibration.Table{}); err == nil {
		t.Error("table without device id saved")
	}
}

func TestRecentEvents(t *testing.T) {
	s := openTestStorage(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	evs := []events.Event{
		events.ModeChanged{SystemID: 1, Name: "POSCTL"},
		events.Diagnostic{SystemID: 2, Text: "other vehicle"},
		events.HeartbeatTimeout{SystemID: 1, Lost: true, Elapsed: 4 * time.Second},
	}
	for i, ev := range evs {
		if _, err := s.RecordEvent(ev, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentEvents(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Kind != string(events.KindHeartbeatTimeout) || got[1].Kind != string(events.KindModeChanged) {
		t.Fatalf("order = %s, %s", got[0].Kind, got[1].Kind)
	}
	if !got[1].CreatedAt.Equal(base) {
		t.Errorf("created_at = %v", got[1].CreatedAt)
	}

	var payload map[string]any
	if err := json.Unmarshal(got[1].Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["name"] != "POSCTL" {
		t.Errorf("payload = %v", payload)
	}

	limited, err := s.RecentEvents(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %d", len(limited))
	}

	n, err := s.PruneEvents(base.Add(1500 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("pruned = %d, want 2", n)
	}
}

func TestEventRecorderFiltersTelemetry(t *testing.T) {
	s := openTestStorage(t)
	bus := events.NewBus()
	rec := NewEventRecorder(s, 16, logger.NewNop())
	if err := rec.Start(context.Background(), bus); err != nil {
		t.Fatal(err)
	}

	bus.Publish(events.AttitudeChanged{SystemID: 3, Roll: 0.1})
	bus.Publish(events.LowBatteryAlarm{SystemID: 3, Active: true})
	bus.Publish(events.VehicleAdded{SystemID: 3})
	rec.Stop()

	// published after Stop, never recorded
	bus.Publish(events.VehicleRemoved{SystemID: 3})

	got, err := s.RecentEvents(3, 10)
	if err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for _, r := range got {
		kinds = append(kinds, r.Kind)
	}
	want := []string{string(events.KindVehicleAdded), string(events.KindLowBatteryAlarm)}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("kinds (-want +got):\n%s", diff)
	}
}
