package events

// CalibrationStep is published when the input calibration enters a step
type CalibrationStep struct {
	Session      string
	Step         string
	Function     string // logical function the step targets, empty if none
	Image        string // instructional image key
	Instructions string
	CanNext      bool
	CanSkip      bool
}

type AxisMapped struct {
	Session  string
	Function string
	Axis     int // -1 when unmapped
}

type AxisValue struct {
	Session string
	Axis    int
	Value   int
	Min     int
	Max     int
}

type AxisReversed struct {
	Session  string
	Function string
	Axis     int
	Reversed bool
}

// CalibrationStatus is a blocking status line for the operator
type CalibrationStatus struct {
	Session string
	Text    string
	Problem bool
}

// CalibrationFinished ends a session; Saved is false on cancel
type CalibrationFinished struct {
	Session  string
	DeviceID string
	Saved    bool
}

func (CalibrationStep) Kind() Kind     { return KindCalibrationStep }
func (AxisMapped) Kind() Kind          { return KindAxisMapped }
func (AxisValue) Kind() Kind           { return KindAxisValue }
func (AxisReversed) Kind() Kind        { return KindAxisReversed }
func (CalibrationStatus) Kind() Kind   { return KindCalibrationStatus }
func (CalibrationFinished) Kind() Kind { return KindCalibrationFinished }
