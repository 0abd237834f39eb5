package firmware

// PX4 custom mode layout: bits 16..23 main mode, bits 24..31 sub mode
const (
	px4MainManual     = 1
	px4MainAltCtl     = 2
	px4MainPosCtl     = 3
	px4MainAuto       = 4
	px4MainAcro       = 5
	px4MainOffboard   = 6
	px4MainStabilized = 7
	px4MainRattitude  = 8

	px4AutoReady   = 1
	px4AutoTakeoff = 2
	px4AutoLoiter  = 3
	px4AutoMission = 4
	px4AutoRTL     = 5
	px4AutoLand    = 6
	px4AutoFollow  = 8
)

type PX4 struct{}

func (PX4) Name() string { return "PX4" }

func (PX4) FlightModeName(baseMode uint8, customMode uint32) string {
	if baseMode&modeFlagCustom == 0 {
		return Generic{}.FlightModeName(baseMode, customMode)
	}

	main := (customMode >> 16) & 0xFF
	sub := (customMode >> 24) & 0xFF

	switch main {
	case px4MainManual:
		return "Manual"
	case px4MainAltCtl:
		return "Altitude"
	case px4MainPosCtl:
		return "Position"
	case px4MainAcro:
		return "Acro"
	case px4MainOffboard:
		return "Offboard"
	case px4MainStabilized:
		return "Stabilized"
	case px4MainRattitude:
		return "Rattitude"
	case px4MainAuto:
		switch sub {
		case px4AutoReady:
			return "Ready"
		case px4AutoTakeoff:
			return "Takeoff"
		case px4AutoLoiter:
			return "Hold"
		case px4AutoMission:
			return "Mission"
		case px4AutoRTL:
			return "Return"
		case px4AutoLand:
			return "Land"
		case px4AutoFollow:
			return "Follow Me"
		}
		return "Auto"
	}
	return "Unknown"
}

// PX4CustomMode packs a main and sub mode the way PX4 reports them
func PX4CustomMode(main, sub uint8) uint32 {
	return uint32(main)<<16 | uint32(sub)<<24
}
