package calibration

import (
	"fmt"
	"strings"
	"time"
)

// Function is the logical stick function an axis drives
type Function int

const (
	NoFunction Function = iota - 1
	Roll
	Pitch
	Yaw
	Throttle
)

// Functions lists the functions every calibration must map, in identify order
var Functions = []Function{Roll, Pitch, Yaw, Throttle}

var functionNames = [...]string{"roll", "pitch", "yaw", "throttle"}

func (f Function) String() string {
	if f < 0 || int(f) >= len(functionNames) {
		return "none"
	}
	return functionNames[f]
}

func (f Function) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(functionNames) {
		return nil, fmt.Errorf("invalid function %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *Function) UnmarshalText(text []byte) error {
	parsed, err := ParseFunction(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFunction maps "roll", "pitch", "yaw" or "throttle" to a Function
func ParseFunction(name string) (Function, error) {
	for i, n := range functionNames {
		if strings.EqualFold(n, name) {
			return Function(i), nil
		}
	}
	return NoFunction, fmt.Errorf("unknown function %q", name)
}

// Step is a calibration wizard state
type Step int

const (
	StepIdle Step = iota
	StepAxisWait
	StepBegin
	StepIdentify
	StepMinMax
	StepCenterThrottle
	StepDetectInversion
	StepTrims
	StepSave
)

var stepNames = map[Step]string{
	StepIdle:            "idle",
	StepAxisWait:        "axis_wait",
	StepBegin:           "begin",
	StepIdentify:        "identify",
	StepMinMax:          "min_max",
	StepCenterThrottle:  "center_throttle",
	StepDetectInversion: "detect_inversion",
	StepTrims:           "trims",
	StepSave:            "save",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Mapping is the calibrated range of the axis bound to one function
type Mapping struct {
	Function Function `yaml:"function" json:"function"`
	Axis     int      `yaml:"axis" json:"axis"`
	Reversed bool     `yaml:"reversed" json:"reversed"`
	Min      int      `yaml:"min" json:"min"`
	Max      int      `yaml:"max" json:"max"`
	Trim     int      `yaml:"trim" json:"trim"`
}

// Table is the persisted calibration of one input device
type Table struct {
	DeviceID string    `yaml:"device_id" json:"device_id"`
	Profile  string    `yaml:"profile,omitempty" json:"profile,omitempty"`
	Mappings []Mapping `yaml:"mappings" json:"mappings"`
}

// Mapping returns the entry for f
func (t *Table) Mapping(f Function) (Mapping, bool) {
	if t == nil {
		return Mapping{}, false
	}
	for _, m := range t.Mappings {
		if m.Function == f {
			return m, true
		}
	}
	return Mapping{}, false
}

// Thresholds are the device-specific limits the wizard checks against
type Thresholds struct {
	MinAxisCount     int           `toml:"min_axis_count"`
	Center           int           `toml:"center"`
	ValidMin         int           `toml:"valid_min"`
	ValidMax         int           `toml:"valid_max"`
	RoughCenterDelta int           `toml:"rough_center_delta"` // throttle counts as centered within this
	MoveDelta        int           `toml:"move_delta"`         // movement that starts detection
	SettleDelta      int           `toml:"settle_delta"`       // jitter tolerated while settling
	MinDelta         int           `toml:"min_delta"`          // smallest acceptable max-min spread
	Settle           time.Duration `toml:"-"`
}

const (
	ProfileJoystick = "joystick"
	ProfileRC       = "rc"
)

// JoystickThresholds covers signed 16-bit gamepad axes
func JoystickThresholds() Thresholds {
	return Thresholds{
		MinAxisCount:     4,
		Center:           0,
		ValidMin:         -32768,
		ValidMax:         32767,
		RoughCenterDelta: 700,
		MoveDelta:        32768 / 2,
		SettleDelta:      600,
		MinDelta:         1000,
		Settle:           500 * time.Millisecond,
	}
}

// RCThresholds covers PWM radio channels in microseconds
func RCThresholds() Thresholds {
	return Thresholds{
		MinAxisCount:     4,
		Center:           1500,
		ValidMin:         800,
		ValidMax:         2200,
		RoughCenterDelta: 50,
		MoveDelta:        300,
		SettleDelta:      20,
		MinDelta:         100,
		Settle:           500 * time.Millisecond,
	}
}

// ProfileThresholds returns the defaults for a named profile
func ProfileThresholds(profile string) (Thresholds, error) {
	switch profile {
	case ProfileJoystick:
		return JoystickThresholds(), nil
	case ProfileRC:
		return RCThresholds(), nil
	default:
		return Thresholds{}, fmt.Errorf("unknown calibration profile %q", profile)
	}
}

// Validate rejects thresholds the wizard cannot work with
func (t Thresholds) Validate() error {
	if t.MinAxisCount < len(Functions) {
		return fmt.Errorf("min axis count must be at least %d", len(Functions))
	}
	if t.ValidMin >= t.ValidMax {
		return fmt.Errorf("valid min %d must be below valid max %d", t.ValidMin, t.ValidMax)
	}
	if t.Center < t.ValidMin || t.Center > t.ValidMax {
		return fmt.Errorf("center %d outside valid range", t.Center)
	}
	if t.MoveDelta <= 0 || t.SettleDelta <= 0 || t.MinDelta <= 0 || t.RoughCenterDelta <= 0 {
		return fmt.Errorf("deltas must be positive")
	}
	if t.SettleDelta >= t.MoveDelta {
		return fmt.Errorf("settle delta %d must be smaller than move delta %d", t.SettleDelta, t.MoveDelta)
	}
	if t.Settle <= 0 {
		return fmt.Errorf("settle duration must be positive")
	}
	return nil
}
