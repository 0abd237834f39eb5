// Package firmware resolves autopilot specific behavior, currently the naming
// of flight modes, through plugins selected at runtime.
package firmware

import (
	"fmt"
	"strings"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// Plugin names flight modes for one autopilot family
type Plugin interface {
	Name() string
	FlightModeName(baseMode uint8, customMode uint32) string
}

// Registry picks a plugin for an autopilot and airframe
type Registry struct {
	px4     Plugin
	copter  Plugin
	plane   Plugin
	rover   Plugin
	generic Plugin
}

// NewRegistry returns a registry with every built-in plugin
func NewRegistry() *Registry {
	return &Registry{
		px4:     PX4{},
		copter:  ArduPilot{Variant: "ArduCopter", Modes: arduCopterModes},
		plane:   ArduPilot{Variant: "ArduPlane", Modes: arduPlaneModes},
		rover:   ArduPilot{Variant: "ArduRover", Modes: arduRoverModes},
		generic: Generic{},
	}
}

// Lookup returns the plugin for an autopilot and MAV_TYPE, falling back to Generic
func (r *Registry) Lookup(autopilot, vehicleType uint8) Plugin {
	switch common.MAV_AUTOPILOT(autopilot) {
	case common.MAV_AUTOPILOT_PX4:
		return r.px4
	case common.MAV_AUTOPILOT_ARDUPILOTMEGA:
		switch {
		case IsFixedWing(vehicleType):
			return r.plane
		case IsRotaryWing(vehicleType):
			return r.copter
		case IsGroundOrSurface(vehicleType):
			return r.rover
		}
	}
	return r.generic
}

// IsRotaryWing reports multirotor and helicopter airframes
func IsRotaryWing(vehicleType uint8) bool {
	switch common.MAV_TYPE(vehicleType) {
	case common.MAV_TYPE_QUADROTOR,
		common.MAV_TYPE_COAXIAL,
		common.MAV_TYPE_HELICOPTER,
		common.MAV_TYPE_HEXAROTOR,
		common.MAV_TYPE_OCTOROTOR,
		common.MAV_TYPE_TRICOPTER:
		return true
	}
	return false
}

// IsFixedWing reports fixed wing airframes
func IsFixedWing(vehicleType uint8) bool {
	return common.MAV_TYPE(vehicleType) == common.MAV_TYPE_FIXED_WING
}

// IsGroundOrSurface reports rovers and boats
func IsGroundOrSurface(vehicleType uint8) bool {
	switch common.MAV_TYPE(vehicleType) {
	case common.MAV_TYPE_GROUND_ROVER, common.MAV_TYPE_SURFACE_BOAT:
		return true
	}
	return false
}

const (
	modeFlagCustom    = uint8(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED)
	modeFlagArmed     = uint8(common.MAV_MODE_FLAG_SAFETY_ARMED)
	modeFlagManual    = uint8(common.MAV_MODE_FLAG_MANUAL_INPUT_ENABLED)
	modeFlagHIL       = uint8(common.MAV_MODE_FLAG_HIL_ENABLED)
	modeFlagStabilize = uint8(common.MAV_MODE_FLAG_STABILIZE_ENABLED)
	modeFlagGuided    = uint8(common.MAV_MODE_FLAG_GUIDED_ENABLED)
	modeFlagAuto      = uint8(common.MAV_MODE_FLAG_AUTO_ENABLED)
	modeFlagTest      = uint8(common.MAV_MODE_FLAG_TEST_ENABLED)
)

// Generic decodes the standard base mode flags
type Generic struct{}

func (Generic) Name() string { return "Generic" }

func (Generic) FlightModeName(baseMode uint8, customMode uint32) string {
	var parts []string
	switch {
	case baseMode&modeFlagAuto != 0:
		parts = append(parts, "AUTO")
	case baseMode&modeFlagGuided != 0:
		parts = append(parts, "GUIDED")
	case baseMode&modeFlagStabilize != 0:
		parts = append(parts, "STABILIZED")
	case baseMode&modeFlagManual != 0:
		parts = append(parts, "MANUAL")
	case baseMode&modeFlagTest != 0:
		parts = append(parts, "TEST")
	}
	if baseMode&modeFlagHIL != 0 {
		parts = append(parts, "HIL")
	}
	if baseMode&modeFlagCustom != 0 && len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("CUSTOM %d", customMode))
	}
	if len(parts) == 0 {
		parts = append(parts, "PREFLIGHT")
	}
	return strings.Join(parts, "|")
}

// Armed reports the safety-armed flag
func Armed(baseMode uint8) bool {
	return baseMode&modeFlagArmed != 0
}
