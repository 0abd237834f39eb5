package calibration

import "fmt"

// ParamSetter writes one vehicle parameter
type ParamSetter interface {
	SetParameter(name string, value float32) error
}

var rcMapParams = map[Function]string{
	Roll:     "RC_MAP_ROLL",
	Pitch:    "RC_MAP_PITCH",
	Yaw:      "RC_MAP_YAW",
	Throttle: "RC_MAP_THROTTLE",
}

// RCParamWriter stores a radio calibration in the autopilot's RC parameters.
// Axis n is RC channel n+1.
type RCParamWriter struct {
	setter ParamSetter
}

func NewRCParamWriter(setter ParamSetter) *RCParamWriter {
	return &RCParamWriter{setter: setter}
}

func (w *RCParamWriter) WriteCalibration(t *Table) error {
	for _, m := range t.Mappings {
		channel := m.Axis + 1
		rev := float32(1)
		if m.Reversed {
			rev = -1
		}

		params := []struct {
			name  string
			value float32
		}{
			{fmt.Sprintf("RC%d_MIN", channel), float32(m.Min)},
			{fmt.Sprintf("RC%d_MAX", channel), float32(m.Max)},
			{fmt.Sprintf("RC%d_TRIM", channel), float32(m.Trim)},
			{fmt.Sprintf("RC%d_REV", channel), rev},
			{rcMapParams[m.Function], float32(channel)},
		}
		for _, p := range params {
			if err := w.setter.SetParameter(p.name, p.value); err != nil {
				return fmt.Errorf("failed to set %s: %w", p.name, err)
			}
		}
	}
	return nil
}
