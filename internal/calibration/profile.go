package calibration

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// WriteProfile exports a table as YAML
func WriteProfile(w io.Writer, t *Table) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("failed to encode calibration profile: %w", err)
	}
	return enc.Close()
}

// ReadProfile imports a YAML table. Structural problems are rejected here;
// range checks are left to ValidateTable.
func ReadProfile(r io.Reader) (*Table, error) {
	var t Table
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode calibration profile: %w", err)
	}

	if t.DeviceID == "" {
		return nil, fmt.Errorf("calibration profile has no device_id")
	}
	seen := make(map[Function]bool)
	for _, m := range t.Mappings {
		if seen[m.Function] {
			return nil, fmt.Errorf("calibration profile maps %s twice", m.Function)
		}
		seen[m.Function] = true
		if m.Axis < 0 || m.Axis >= maxAxes {
			return nil, fmt.Errorf("calibration profile maps %s to axis %d", m.Function, m.Axis)
		}
	}
	return &t, nil
}
