package firmware

import "fmt"

var arduCopterModes = map[uint32]string{
	0:  "Stabilize",
	1:  "Acro",
	2:  "Altitude Hold",
	3:  "Auto",
	4:  "Guided",
	5:  "Loiter",
	6:  "RTL",
	7:  "Circle",
	9:  "Land",
	11: "Drift",
	13: "Sport",
	14: "Flip",
	15: "Autotune",
	16: "Position Hold",
	17: "Brake",
}

var arduPlaneModes = map[uint32]string{
	0:  "Manual",
	1:  "Circle",
	2:  "Stabilize",
	3:  "Training",
	4:  "Acro",
	5:  "FBW A",
	6:  "FBW B",
	7:  "Cruise",
	8:  "Autotune",
	10: "Auto",
	11: "RTL",
	12: "Loiter",
	15: "Guided",
}

var arduRoverModes = map[uint32]string{
	0:  "Manual",
	1:  "Acro",
	3:  "Steering",
	4:  "Hold",
	10: "Auto",
	11: "RTL",
	15: "Guided",
}

// ArduPilot maps custom mode numbers through a per-vehicle table
type ArduPilot struct {
	Variant string
	Modes   map[uint32]string
}

func (a ArduPilot) Name() string { return a.Variant }

func (a ArduPilot) FlightModeName(baseMode uint8, customMode uint32) string {
	if baseMode&modeFlagCustom == 0 {
		return Generic{}.FlightModeName(baseMode, customMode)
	}
	if name, ok := a.Modes[customMode]; ok {
		return name
	}
	return fmt.Sprintf("Unknown %d", customMode)
}
