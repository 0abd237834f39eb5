package firmware

import (
	"testing"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		autopilot common.MAV_AUTOPILOT
		typ       common.MAV_TYPE
		want      string
	}{
		{common.MAV_AUTOPILOT_PX4, common.MAV_TYPE_QUADROTOR, "PX4"},
		{common.MAV_AUTOPILOT_ARDUPILOTMEGA, common.MAV_TYPE_QUADROTOR, "ArduCopter"},
		{common.MAV_AUTOPILOT_ARDUPILOTMEGA, common.MAV_TYPE_FIXED_WING, "ArduPlane"},
		{common.MAV_AUTOPILOT_ARDUPILOTMEGA, common.MAV_TYPE_GROUND_ROVER, "ArduRover"},
		{common.MAV_AUTOPILOT_ARDUPILOTMEGA, common.MAV_TYPE_GCS, "Generic"},
		{common.MAV_AUTOPILOT_GENERIC, common.MAV_TYPE_QUADROTOR, "Generic"},
	}
	for _, tt := range tests {
		if got := r.Lookup(uint8(tt.autopilot), uint8(tt.typ)).Name(); got != tt.want {
			t.Errorf("Lookup(%d, %d) = %s, want %s", tt.autopilot, tt.typ, got, tt.want)
		}
	}
}

func TestPX4FlightModes(t *testing.T) {
	custom := uint8(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED)
	tests := []struct {
		main, sub uint8
		want      string
	}{
		{px4MainManual, 0, "Manual"},
		{px4MainPosCtl, 0, "Position"},
		{px4MainAuto, px4AutoMission, "Mission"},
		{px4MainAuto, px4AutoRTL, "Return"},
		{px4MainAuto, 99, "Auto"},
		{42, 0, "Unknown"},
	}
	for _, tt := range tests {
		if got := (PX4{}).FlightModeName(custom, PX4CustomMode(tt.main, tt.sub)); got != tt.want {
			t.Errorf("PX4 mode %d/%d = %q, want %q", tt.main, tt.sub, got, tt.want)
		}
	}
}

func TestArduPilotFlightModes(t *testing.T) {
	r := NewRegistry()
	custom := uint8(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED)
	copter := r.Lookup(uint8(common.MAV_AUTOPILOT_ARDUPILOTMEGA), uint8(common.MAV_TYPE_HEXAROTOR))
	if got := copter.FlightModeName(custom, 5); got != "Loiter" {
		t.Fatalf("copter 5 = %q", got)
	}
	if got := copter.FlightModeName(custom, 1000); got != "Unknown 1000" {
		t.Fatalf("copter 1000 = %q", got)
	}
	plane := r.Lookup(uint8(common.MAV_AUTOPILOT_ARDUPILOTMEGA), uint8(common.MAV_TYPE_FIXED_WING))
	if got := plane.FlightModeName(custom, 5); got != "FBW A" {
		t.Fatalf("plane 5 = %q", got)
	}
}

func TestGenericFlightModes(t *testing.T) {
	g := Generic{}
	auto := uint8(common.MAV_MODE_FLAG_AUTO_ENABLED | common.MAV_MODE_FLAG_SAFETY_ARMED)
	if got := g.FlightModeName(auto, 0); got != "AUTO" {
		t.Fatalf("auto = %q", got)
	}
	if got := g.FlightModeName(0, 0); got != "PREFLIGHT" {
		t.Fatalf("preflight = %q", got)
	}
	hil := uint8(common.MAV_MODE_FLAG_MANUAL_INPUT_ENABLED | common.MAV_MODE_FLAG_HIL_ENABLED)
	if got := g.FlightModeName(hil, 0); got != "MANUAL|HIL" {
		t.Fatalf("manual hil = %q", got)
	}
	if !Armed(auto) || Armed(hil) {
		t.Fatal("Armed flag")
	}
}
