package vehicle

import (
	"time"

	"github.com/yegors/co-gcs/internal/firmware"
)

// Status is the MAV_STATE reported in heartbeats
type Status uint8

const (
	StatusUninit Status = iota
	StatusBoot
	StatusCalibrating
	StatusStandby
	StatusActive
	StatusCritical
	StatusEmergency
	StatusPoweroff
	StatusFlightTermination
)

// String returns the short status name
func (s Status) String() string {
	name, _ := s.describe()
	return name
}

// Description returns the operator facing status text
func (s Status) Description() string {
	_, desc := s.describe()
	return desc
}

func (s Status) describe() (string, string) {
	switch s {
	case StatusUninit:
		return "UNINIT", "Uninitialized, booting up."
	case StatusBoot:
		return "BOOT", "Booting system, please wait."
	case StatusCalibrating:
		return "CALIBRATING", "Calibrating sensors, please wait."
	case StatusStandby:
		return "STANDBY", "Standby mode, ready for launch."
	case StatusActive:
		return "ACTIVE", "Active, normal operation."
	case StatusCritical:
		return "CRITICAL", "FAILURE: Continuing operation."
	case StatusEmergency:
		return "EMERGENCY", "EMERGENCY: Land immediately!"
	case StatusPoweroff:
		return "SHUTDOWN", "Powering off system."
	case StatusFlightTermination:
		return "TERMINATION", "Flight termination active."
	}
	return "UNKNOWN", "Unknown system state."
}

// Ownership records the authoritative component for one message type
type Ownership struct {
	Component uint8 `json:"component"`
	Multi     bool  `json:"multi"` // a second component has sent this type
}

// StatusText is one entry of the vehicle's text log
type StatusText struct {
	Severity    uint8     `json:"severity"`
	ComponentID uint8     `json:"component_id"`
	Text        string    `json:"text"`
	Time        time.Time `json:"time"`
}

// ImageTransfer describes the transfer in progress
type ImageTransfer struct {
	Active  bool  `json:"active"`
	Size    int   `json:"size"`    // expected bytes
	Packets int   `json:"packets"` // expected chunks
	Payload int   `json:"payload"` // bytes per chunk
	Arrived int   `json:"arrived"` // distinct chunks received
	Type    uint8 `json:"type"`
}

// State is the snapshot of one vehicle. Unknown values are flagged rather than NaN.
type State struct {
	SystemID uint8 `json:"system_id"`

	// Identity
	SystemType   uint8  `json:"system_type"`
	Autopilot    uint8  `json:"autopilot"`
	TypeKnown    bool   `json:"type_known"`
	FirmwareName string `json:"firmware"`

	// Connectivity
	LastHeartbeat  time.Time           `json:"last_heartbeat"`
	ConnectionLost bool                `json:"connection_lost"`
	DropRate       float64             `json:"drop_rate"` // percent
	ErrorsComm     uint16              `json:"errors_comm"`
	ErrorsCount    [4]uint16           `json:"errors_count"`
	CPULoad        float64             `json:"cpu_load"` // percent
	Components     map[uint8]time.Time `json:"components"`

	// Mode
	BaseMode   uint8  `json:"base_mode"`
	CustomMode uint32 `json:"custom_mode"`
	Status     Status `json:"status"`
	StatusName string `json:"status_name"`
	ModeName   string `json:"mode_name"`
	Armed      bool   `json:"armed"`

	// Attitude, radians in (-π, π]
	Roll              float64   `json:"roll"`
	Pitch             float64   `json:"pitch"`
	Yaw               float64   `json:"yaw"`
	RollSpeed         float64   `json:"roll_speed"`
	PitchSpeed        float64   `json:"pitch_speed"`
	YawSpeed          float64   `json:"yaw_speed"`
	AttitudeKnown     bool      `json:"attitude_known"`
	AttitudeComponent int       `json:"attitude_component"` // -1 until set
	AttitudeTime      time.Time `json:"attitude_time"`
	MagneticHeading   float64   `json:"magnetic_heading"`
	MagneticKnown     bool      `json:"magnetic_known"`

	// Position
	LocalX                float64 `json:"local_x"`
	LocalY                float64 `json:"local_y"`
	LocalZ                float64 `json:"local_z"`
	Latitude              float64 `json:"lat"`
	Longitude             float64 `json:"lon"`
	AltitudeAMSL          float64 `json:"altitude_amsl"`
	AltitudeWGS84         float64 `json:"altitude_wgs84"`
	AltitudeRelative      float64 `json:"altitude_relative"`
	GPSLatitude           float64 `json:"gps_lat"`
	GPSLongitude          float64 `json:"gps_lon"`
	GPSAltitude           float64 `json:"gps_altitude"`
	LocalPositionKnown    bool    `json:"local_position_known"`
	GlobalPositionKnown   bool    `json:"global_position_known"`
	GlobalEstimatorActive bool    `json:"global_estimator_active"`
	SatelliteCount        int     `json:"satellite_count"` // -1 unknown
	HomeLatitude          float64 `json:"home_lat"`
	HomeLongitude         float64 `json:"home_lon"`
	HomeAltitude          float64 `json:"home_altitude"`
	HomeKnown             bool    `json:"home_known"`

	// Velocity, NED m/s
	VX            float64 `json:"vx"`
	VY            float64 `json:"vy"`
	VZ            float64 `json:"vz"`
	GroundSpeed   float64 `json:"ground_speed"`
	AirSpeed      float64 `json:"air_speed"`
	AirSpeedKnown bool    `json:"air_speed_known"`
	Throttle      float64 `json:"throttle"` // 0..1

	// Battery
	Voltage          float64 `json:"voltage"`
	FilteredVoltage  float64 `json:"filtered_voltage"`
	TickVoltage      float64 `json:"tick_voltage"`
	Current          float64 `json:"current"`
	CurrentKnown     bool    `json:"current_known"`
	ConsumedMAh      float64 `json:"consumed_mah"`
	RemainingPercent int     `json:"remaining_percent"` // 0..100, -1 unknown
	LowBatteryAlarm  bool    `json:"low_battery_alarm"`

	// Controller flags from SYS_STATUS
	AttitudeControl    bool `json:"attitude_control"`
	YawPositionControl bool `json:"yaw_position_control"`
	AltitudeControl    bool `json:"altitude_control"`
	XYPositionControl  bool `json:"xy_position_control"`

	// Navigation
	WaypointDistance float64 `json:"waypoint_distance"`
	WaypointBearing  float64 `json:"waypoint_bearing"`

	// Radio
	RCChannels []int `json:"rc_channels"`
	RSSI       uint8 `json:"rssi"`

	StatusTexts []StatusText         `json:"status_texts"`
	Ownership   map[uint32]Ownership `json:"ownership"`
	Image       ImageTransfer        `json:"image"`
}

func newState(systemID uint8) State {
	return State{
		SystemID:          systemID,
		StatusName:        StatusUninit.String(),
		AttitudeComponent: -1,
		SatelliteCount:    -1,
		RemainingPercent:  -1,
		Components:        make(map[uint8]time.Time),
		Ownership:         make(map[uint32]Ownership),
	}
}

// IsRotaryWing reports multirotor and helicopter airframes
func (s *State) IsRotaryWing() bool { return firmware.IsRotaryWing(s.SystemType) }

// IsFixedWing reports fixed wing airframes
func (s *State) IsFixedWing() bool { return firmware.IsFixedWing(s.SystemType) }

// clone deep copies maps and slices
func (s *State) clone() State {
	out := *s
	out.Components = make(map[uint8]time.Time, len(s.Components))
	for k, v := range s.Components {
		out.Components[k] = v
	}
	out.Ownership = make(map[uint32]Ownership, len(s.Ownership))
	for k, v := range s.Ownership {
		out.Ownership[k] = v
	}
	out.RCChannels = append([]int(nil), s.RCChannels...)
	out.StatusTexts = append([]StatusText(nil), s.StatusTexts...)
	return out
}
