package calibration

import (
	"fmt"
	"strings"
)

type Reason string

const (
	ReasonMissing    Reason = "not mapped"
	ReasonSharedAxis Reason = "shares its axis with another function"
	ReasonRange      Reason = "range is too small"
	ReasonTrim       Reason = "trim is outside the range"
)

// Problem is one validation failure
type Problem struct {
	Function Function `json:"function"`
	Axis     int      `json:"axis"` // -1 when unmapped
	Reason   Reason   `json:"reason"`
}

func (p Problem) String() string {
	if p.Axis < 0 {
		return fmt.Sprintf("%s: %s", p.Function, p.Reason)
	}
	return fmt.Sprintf("%s (axis %d): %s", p.Function, p.Axis, p.Reason)
}

// ValidationError lists everything that blocks a save
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return "calibration invalid: " + strings.Join(parts, "; ")
}

// ValidateTable checks that every function has its own axis with a usable
// range and a trim inside that range
func ValidateTable(t *Table, th Thresholds) error {
	var problems []Problem
	taken := make(map[int]bool)

	for _, f := range Functions {
		m, ok := t.Mapping(f)
		if !ok || m.Axis < 0 {
			problems = append(problems, Problem{Function: f, Axis: -1, Reason: ReasonMissing})
			continue
		}

		if taken[m.Axis] {
			problems = append(problems, Problem{Function: f, Axis: m.Axis, Reason: ReasonSharedAxis})
			continue
		}
		taken[m.Axis] = true

		if m.Max-m.Min < th.MinDelta {
			problems = append(problems, Problem{Function: f, Axis: m.Axis, Reason: ReasonRange})
			continue
		}
		if m.Trim < m.Min || m.Trim > m.Max {
			problems = append(problems, Problem{Function: f, Axis: m.Axis, Reason: ReasonTrim})
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
