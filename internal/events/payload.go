package events

import (
	"math"
	"time"
)

// Payload flattens an event into a JSON-safe map. Non-finite numbers become nil.
func Payload(ev Event) map[string]any {
	switch e := ev.(type) {
	case AttitudeChanged:
		return map[string]any{
			"system_id":    e.SystemID,
			"component_id": e.ComponentID,
			"roll":         num(e.Roll),
			"pitch":        num(e.Pitch),
			"yaw":          num(e.Yaw),
			"roll_speed":   num(e.RollSpeed),
			"pitch_speed":  num(e.PitchSpeed),
			"yaw_speed":    num(e.YawSpeed),
			"time":         stamp(e.Time),
		}
	case LocalPositionChanged:
		return map[string]any{
			"system_id": e.SystemID,
			"x":         num(e.X),
			"y":         num(e.Y),
			"z":         num(e.Z),
			"time":      stamp(e.Time),
		}
	case GlobalPositionChanged:
		return map[string]any{
			"system_id":      e.SystemID,
			"lat":            num(e.Latitude),
			"lon":            num(e.Longitude),
			"altitude_amsl":  num(e.AltitudeAMSL),
			"altitude_wgs84": num(e.AltitudeWGS84),
			"time":           stamp(e.Time),
		}
	case VelocityChanged:
		return map[string]any{
			"system_id": e.SystemID,
			"vx":        num(e.VX),
			"vy":        num(e.VY),
			"vz":        num(e.VZ),
			"time":      stamp(e.Time),
		}
	case SpeedChanged:
		return map[string]any{
			"system_id":    e.SystemID,
			"ground_speed": num(e.GroundSpeed),
			"air_speed":    num(e.AirSpeed),
			"time":         stamp(e.Time),
		}
	case BatteryChanged:
		return map[string]any{
			"system_id":         e.SystemID,
			"voltage":           num(e.Voltage),
			"filtered_voltage":  num(e.FilteredVoltage),
			"current":           num(e.Current),
			"remaining_percent": e.RemainingPercent,
			"time":              stamp(e.Time),
		}
	case VoltageAlert:
		return map[string]any{"system_id": e.SystemID, "voltage": num(e.Voltage), "time": stamp(e.Time)}
	case LowBatteryAlarm:
		return map[string]any{"system_id": e.SystemID, "active": e.Active, "remaining_percent": e.RemainingPercent}
	case StatusChanged:
		return map[string]any{"system_id": e.SystemID, "status": e.Status, "description": e.Description}
	case ModeChanged:
		return map[string]any{"system_id": e.SystemID, "base_mode": e.BaseMode, "custom_mode": e.CustomMode, "name": e.Name}
	case SystemTypeChanged:
		return map[string]any{"system_id": e.SystemID, "type": e.Type, "autopilot": e.Autopilot}
	case HeartbeatTimeout:
		return map[string]any{"system_id": e.SystemID, "lost": e.Lost, "elapsed_ms": e.Elapsed.Milliseconds()}
	case ImageReady:
		return map[string]any{"system_id": e.SystemID, "size": e.Size, "width": e.Width, "height": e.Height, "type": e.Type}
	case Diagnostic:
		return map[string]any{"system_id": e.SystemID, "severity": e.Severity.String(), "text": e.Text}
	case ComponentMessage:
		return map[string]any{
			"system_id":    e.SystemID,
			"component_id": e.ComponentID,
			"message_id":   e.MessageID,
			"conflict":     e.Conflict,
		}
	case SatellitesChanged:
		return map[string]any{"system_id": e.SystemID, "count": e.Count}
	case LinkHealthChanged:
		return map[string]any{
			"system_id":   e.SystemID,
			"drop_rate":   num(e.DropRate),
			"errors_comm": e.ErrorsComm,
			"cpu_load":    num(e.CPULoad),
		}
	case CommandAck:
		return map[string]any{"system_id": e.SystemID, "command": e.Command, "result": e.Result, "accepted": e.Accepted}
	case HomeChanged:
		return map[string]any{
			"system_id": e.SystemID,
			"lat":       num(e.Latitude),
			"lon":       num(e.Longitude),
			"altitude":  num(e.Altitude),
		}
	case NavigationChanged:
		return map[string]any{
			"system_id":      e.SystemID,
			"nav_roll":       num(e.NavRoll),
			"nav_pitch":      num(e.NavPitch),
			"nav_bearing":    num(e.NavBearing),
			"target_bearing": num(e.TargetBearing),
			"wp_dist":        num(e.WaypointDist),
			"alt_error":      num(e.AltError),
			"aspd_error":     num(e.AirspeedError),
			"xtrack_error":   num(e.XTrackError),
		}
	case RCChannels:
		return map[string]any{"system_id": e.SystemID, "values": e.Values, "rssi": e.RSSI}
	case VehicleAdded:
		return map[string]any{"system_id": e.SystemID, "autopilot": e.Autopilot, "type": e.Type}
	case VehicleRemoved:
		return map[string]any{"system_id": e.SystemID}

	case CalibrationStep:
		return map[string]any{
			"session":      e.Session,
			"step":         e.Step,
			"function":     e.Function,
			"image":        e.Image,
			"instructions": e.Instructions,
			"can_next":     e.CanNext,
			"can_skip":     e.CanSkip,
		}
	case AxisMapped:
		return map[string]any{"session": e.Session, "function": e.Function, "axis": e.Axis}
	case AxisValue:
		return map[string]any{"session": e.Session, "axis": e.Axis, "value": e.Value, "min": e.Min, "max": e.Max}
	case AxisReversed:
		return map[string]any{"session": e.Session, "function": e.Function, "axis": e.Axis, "reversed": e.Reversed}
	case CalibrationStatus:
		return map[string]any{"session": e.Session, "text": e.Text, "problem": e.Problem}
	case CalibrationFinished:
		return map[string]any{"session": e.Session, "device_id": e.DeviceID, "saved": e.Saved}
	}
	return map[string]any{}
}

// SystemOf returns the vehicle an event belongs to, or 0 for calibration events
func SystemOf(ev Event) uint8 {
	if id, ok := Payload(ev)["system_id"].(uint8); ok {
		return id
	}
	return 0
}

func num(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func stamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
