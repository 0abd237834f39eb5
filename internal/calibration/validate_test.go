package calibration

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func validTable() *Table {
	return &Table{
		DeviceID: "radio",
		Profile:  ProfileRC,
		Mappings: []Mapping{
			{Function: Roll, Axis: 0, Min: 1000, Max: 2000, Trim: 1500},
			{Function: Pitch, Axis: 1, Reversed: true, Min: 1000, Max: 2000, Trim: 1500},
			{Function: Yaw, Axis: 3, Min: 1000, Max: 2000, Trim: 1500},
			{Function: Throttle, Axis: 2, Min: 1000, Max: 2000, Trim: 1000},
		},
	}
}

func TestValidateTable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Table)
		want   []Problem
	}{
		{
			name:   "valid",
			mutate: func(*Table) {},
		},
		{
			name:   "shared axis",
			mutate: func(t *Table) { t.Mappings[1].Axis = 0 },
			want:   []Problem{{Function: Pitch, Axis: 0, Reason: ReasonSharedAxis}},
		},
		{
			name:   "small spread",
			mutate: func(t *Table) { t.Mappings[2].Max = 1050 },
			want:   []Problem{{Function: Yaw, Axis: 3, Reason: ReasonRange}},
		},
		{
			name:   "missing throttle",
			mutate: func(t *Table) { t.Mappings = t.Mappings[:3] },
			want:   []Problem{{Function: Throttle, Axis: -1, Reason: ReasonMissing}},
		},
		{
			name:   "trim outside range",
			mutate: func(t *Table) { t.Mappings[0].Trim = 2100 },
			want:   []Problem{{Function: Roll, Axis: 0, Reason: ReasonTrim}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := validTable()
			tt.mutate(table)

			err := ValidateTable(table, RCThresholds())
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if diff := cmp.Diff(tt.want, verr.Problems); diff != "" {
				t.Errorf("problems (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidationErrorNamesAxis(t *testing.T) {
	err := &ValidationError{Problems: []Problem{
		{Function: Yaw, Axis: 3, Reason: ReasonRange},
		{Function: Throttle, Axis: -1, Reason: ReasonMissing},
	}}
	want := "calibration invalid: yaw (axis 3): range is too small; throttle: not mapped"
	if err.Error() != want {
		t.Fatalf("error = %q", err.Error())
	}
}

func TestThresholdsValidate(t *testing.T) {
	for _, profile := range []string{ProfileJoystick, ProfileRC} {
		th, err := ProfileThresholds(profile)
		if err != nil {
			t.Fatal(err)
		}
		if err := th.Validate(); err != nil {
			t.Errorf("%s: %v", profile, err)
		}
	}

	if _, err := ProfileThresholds("wheel"); err == nil {
		t.Error("unknown profile accepted")
	}

	bad := RCThresholds()
	bad.SettleDelta = bad.MoveDelta
	if err := bad.Validate(); err == nil {
		t.Error("settle delta equal to move delta accepted")
	}
}

func TestProfileRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteProfile(&buf, validTable()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "function: throttle") {
		t.Fatalf("functions not written by name:\n%s", buf.String())
	}

	got, err := ReadProfile(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(validTable(), got); diff != "" {
		t.Errorf("profile (-want +got):\n%s", diff)
	}
}

func TestReadProfileRejects(t *testing.T) {
	tests := map[string]string{
		"no device": "mappings: []\n",
		"duplicate": `device_id: radio
mappings:
  - {function: roll, axis: 0, min: 1000, max: 2000, trim: 1500}
  - {function: roll, axis: 1, min: 1000, max: 2000, trim: 1500}
`,
		"bad function": `device_id: radio
mappings:
  - {function: flaps, axis: 4}
`,
		"unknown field": `device_id: radio
colour: red
`,
		"axis out of range": `device_id: radio
mappings:
  - {function: yaw, axis: 99}
`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadProfile(strings.NewReader(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type setRecorder struct {
	names  []string
	values []float32
}

func (s *setRecorder) SetParameter(name string, value float32) error {
	s.names = append(s.names, name)
	s.values = append(s.values, value)
	return nil
}

func TestRCParamWriter(t *testing.T) {
	rec := &setRecorder{}
	table := &Table{Mappings: []Mapping{
		{Function: Pitch, Axis: 1, Reversed: true, Min: 1010, Max: 1990, Trim: 1495},
	}}
	if err := NewRCParamWriter(rec).WriteCalibration(table); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"RC2_MIN", "RC2_MAX", "RC2_TRIM", "RC2_REV", "RC_MAP_PITCH"}, rec.names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1010, 1990, 1495, -1, 2}, rec.values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
}
