// Package events defines the typed notifications emitted by the vehicle and
// calibration cores and a small synchronous bus to fan them out.
package events

import (
	"time"
)

// Kind names an event type on the wire and in storage
type Kind string

const (
	KindAttitudeChanged       Kind = "attitude_changed"
	KindLocalPositionChanged  Kind = "local_position_changed"
	KindGlobalPositionChanged Kind = "global_position_changed"
	KindVelocityChanged       Kind = "velocity_changed"
	KindSpeedChanged          Kind = "speed_changed"
	KindBatteryChanged        Kind = "battery_changed"
	KindVoltageAlert          Kind = "voltage_alert"
	KindLowBatteryAlarm       Kind = "low_battery_alarm"
	KindStatusChanged         Kind = "status_changed"
	KindModeChanged           Kind = "mode_changed"
	KindSystemTypeChanged     Kind = "system_type_changed"
	KindHeartbeatTimeout      Kind = "heartbeat_timeout"
	KindImageReady            Kind = "image_ready"
	KindDiagnostic            Kind = "diagnostic"
	KindComponentMessage      Kind = "component_message"
	KindSatellitesChanged     Kind = "satellites_changed"
	KindLinkHealthChanged     Kind = "link_health_changed"
	KindCommandAck            Kind = "command_ack"
	KindHomeChanged           Kind = "home_changed"
	KindNavigationChanged     Kind = "navigation_changed"
	KindRCChannels            Kind = "rc_channels"
	KindVehicleAdded          Kind = "vehicle_added"
	KindVehicleRemoved        Kind = "vehicle_removed"

	KindCalibrationStep     Kind = "calibration_step"
	KindAxisMapped          Kind = "axis_mapped"
	KindAxisValue           Kind = "axis_value"
	KindAxisReversed        Kind = "axis_reversed"
	KindCalibrationStatus   Kind = "calibration_status"
	KindCalibrationFinished Kind = "calibration_finished"
)

// Event is a single notification
type Event interface {
	Kind() Kind
}

// Severity of a diagnostic, matching MAV_SEVERITY ordering (lower is worse)
type Severity uint8

const (
	SeverityEmergency Severity = iota
	SeverityAlert
	SeverityCritical
	SeverityError
	SeverityWarning
	SeverityNotice
	SeverityInfo
	SeverityDebug
)

func (s Severity) String() string {
	switch s {
	case SeverityEmergency:
		return "emergency"
	case SeverityAlert:
		return "alert"
	case SeverityCritical:
		return "critical"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNotice:
		return "notice"
	case SeverityInfo:
		return "info"
	default:
		return "debug"
	}
}

// AttitudeChanged carries Euler angles in radians normalized to (-π, π]
type AttitudeChanged struct {
	SystemID    uint8
	ComponentID uint8
	Roll        float64
	Pitch       float64
	Yaw         float64
	RollSpeed   float64
	PitchSpeed  float64
	YawSpeed    float64
	Time        time.Time
}

type LocalPositionChanged struct {
	SystemID uint8
	X, Y, Z  float64 // NED meters
	Time     time.Time
}

type GlobalPositionChanged struct {
	SystemID      uint8
	Latitude      float64 // deg
	Longitude     float64 // deg
	AltitudeAMSL  float64 // m
	AltitudeWGS84 float64 // m, NaN when unknown
	Time          time.Time
}

type VelocityChanged struct {
	SystemID   uint8
	VX, VY, VZ float64 // NED m/s
	Time       time.Time
}

type SpeedChanged struct {
	SystemID    uint8
	GroundSpeed float64 // m/s
	AirSpeed    float64 // m/s, NaN when unknown
	Time        time.Time
}

type BatteryChanged struct {
	SystemID         uint8
	Voltage          float64 // V
	FilteredVoltage  float64 // V
	Current          float64 // A, NaN when unknown
	RemainingPercent int     // -1 when unknown
	Time             time.Time
}

// VoltageAlert fires once per genuine downward crossing of the tick voltage
type VoltageAlert struct {
	SystemID uint8
	Voltage  float64
	Time     time.Time
}

type LowBatteryAlarm struct {
	SystemID         uint8
	Active           bool
	RemainingPercent int
}

type StatusChanged struct {
	SystemID    uint8
	Status      string
	Description string
}

type ModeChanged struct {
	SystemID   uint8
	BaseMode   uint8
	CustomMode uint32
	Name       string
}

type SystemTypeChanged struct {
	SystemID  uint8
	Type      uint8
	Autopilot uint8
}

// HeartbeatTimeout is published on every transition into or out of the lost state
type HeartbeatTimeout struct {
	SystemID uint8
	Lost     bool
	Elapsed  time.Duration
}

type ImageReady struct {
	SystemID uint8
	Size     int
	Width    int
	Height   int
	Type     uint8
}

type Diagnostic struct {
	SystemID uint8
	Severity Severity
	Text     string
}

// ComponentMessage forwards every inbound message with its ownership verdict
type ComponentMessage struct {
	SystemID    uint8
	ComponentID uint8
	MessageID   uint32
	Conflict    bool
}

type SatellitesChanged struct {
	SystemID uint8
	Count    int
}

type LinkHealthChanged struct {
	SystemID   uint8
	DropRate   float64 // percent
	ErrorsComm uint16
	CPULoad    float64 // percent
}

type CommandAck struct {
	SystemID uint8
	Command  uint16
	Result   uint8
	Accepted bool
}

type HomeChanged struct {
	SystemID  uint8
	Latitude  float64
	Longitude float64
	Altitude  float64
}

type NavigationChanged struct {
	SystemID      uint8
	NavRoll       float64 // deg
	NavPitch      float64 // deg
	NavBearing    float64 // deg
	TargetBearing float64 // deg
	WaypointDist  float64 // m
	AltError      float64
	AirspeedError float64
	XTrackError   float64
}

// RCChannels carries raw PWM values for channels the vehicle reported
type RCChannels struct {
	SystemID uint8
	Values   []int // index is channel-1, -1 when the channel is unused
	RSSI     uint8
}

// VehicleAdded is published when a new system id sends its first heartbeat
type VehicleAdded struct {
	SystemID  uint8
	Autopilot uint8
	Type      uint8
}

type VehicleRemoved struct {
	SystemID uint8
}

func (AttitudeChanged) Kind() Kind       { return KindAttitudeChanged }
func (LocalPositionChanged) Kind() Kind  { return KindLocalPositionChanged }
func (GlobalPositionChanged) Kind() Kind { return KindGlobalPositionChanged }
func (VelocityChanged) Kind() Kind       { return KindVelocityChanged }
func (SpeedChanged) Kind() Kind          { return KindSpeedChanged }
func (BatteryChanged) Kind() Kind        { return KindBatteryChanged }
func (VoltageAlert) Kind() Kind          { return KindVoltageAlert }
func (LowBatteryAlarm) Kind() Kind       { return KindLowBatteryAlarm }
func (StatusChanged) Kind() Kind         { return KindStatusChanged }
func (ModeChanged) Kind() Kind           { return KindModeChanged }
func (SystemTypeChanged) Kind() Kind     { return KindSystemTypeChanged }
func (HeartbeatTimeout) Kind() Kind      { return KindHeartbeatTimeout }
func (ImageReady) Kind() Kind            { return KindImageReady }
func (Diagnostic) Kind() Kind            { return KindDiagnostic }
func (ComponentMessage) Kind() Kind      { return KindComponentMessage }
func (SatellitesChanged) Kind() Kind     { return KindSatellitesChanged }
func (LinkHealthChanged) Kind() Kind     { return KindLinkHealthChanged }
func (CommandAck) Kind() Kind            { return KindCommandAck }
func (HomeChanged) Kind() Kind           { return KindHomeChanged }
func (NavigationChanged) Kind() Kind     { return KindNavigationChanged }
func (RCChannels) Kind() Kind            { return KindRCChannels }
func (VehicleAdded) Kind() Kind          { return KindVehicleAdded }
func (VehicleRemoved) Kind() Kind        { return KindVehicleRemoved }
