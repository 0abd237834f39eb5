package calibration

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/pkg/logger"
)

// Logger field aliases
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

const maxAxes = 32

var (
	ErrNoSession     = errors.New("no calibration session")
	ErrSessionActive = errors.New("calibration session already active")
)

// Clock is the time source for settle detection
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store persists calibration tables by device id. LoadCalibration returns
// nil, nil when the device has never been calibrated.
type Store interface {
	LoadCalibration(deviceID string) (*Table, error)
	SaveCalibration(table *Table) error
}

// ParamWriter pushes a saved table to the vehicle
type ParamWriter interface {
	WriteCalibration(table *Table) error
}

type Deps struct {
	Clock     Clock
	Publisher events.Publisher
	Store     Store
	Params    ParamWriter // optional
}

type axisState struct {
	function Function
	reversed bool
	min      int
	max      int
	trim     int
}

// detector implements move-then-settle: an axis must leave its baseline by
// MoveDelta, then stay within SettleDelta for the settle duration.
type detector struct {
	axis     int // -1 until something moves
	last     int
	settling bool
	since    time.Time
}

// Controller drives the input calibration wizard. One session runs at a time.
type Controller struct {
	mu sync.Mutex

	profile    string
	thresholds Thresholds
	clock      Clock
	publisher  events.Publisher
	store      Store
	params     ParamWriter
	logger     *logger.Logger

	axisCount int
	values    [maxAxes]int

	session  string
	deviceID string
	step     Step
	fnIndex  int // position in Functions for identify and inversion
	axes     []axisState
	fnAxis   [4]int
	saved    *Table // restored on cancel
	claimed  map[int]bool
	oldAxis  int // mapping of the function being identified, restored on skip
	baseline [maxAxes]int
	detect   detector

	pending []events.Event
}

// NewController creates a controller for one device profile
func NewController(profile string, thresholds Thresholds, deps Deps, log *logger.Logger) *Controller {
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Discard
	}

	return &Controller{
		profile:    profile,
		thresholds: thresholds,
		clock:      deps.Clock,
		publisher:  deps.Publisher,
		store:      deps.Store,
		params:     deps.Params,
		logger:     log.Named("calibration"),
		step:       StepIdle,
	}
}

// do runs fn under the lock and publishes what it emitted after unlocking
func (c *Controller) do(fn func()) {
	c.mu.Lock()
	fn()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ev := range pending {
		c.publisher.Publish(ev)
	}
}

func (c *Controller) emit(ev events.Event) {
	c.pending = append(c.pending, ev)
}

func (c *Controller) status(text string, problem bool) {
	c.emit(events.CalibrationStatus{Session: c.session, Text: text, Problem: problem})
}

func (c *Controller) Profile() string { return c.profile }

func (c *Controller) Thresholds() Thresholds { return c.thresholds }

// Start opens a session for deviceID, prefilled from the stored table
func (c *Controller) Start(sessionID, deviceID string) error {
	var err error
	c.do(func() {
		if c.step != StepIdle {
			err = ErrSessionActive
			return
		}

		var table *Table
		if c.store != nil {
			table, err = c.store.LoadCalibration(deviceID)
			if err != nil {
				err = fmt.Errorf("failed to load calibration for %s: %w", deviceID, err)
				return
			}
		}

		c.session = sessionID
		c.deviceID = deviceID
		c.saved = cloneTable(table)
		c.resetWorking()

		c.logger.Info("Calibration started",
			String("session", sessionID),
			String("device", deviceID),
			String("profile", c.profile))

		if c.axisCount < c.thresholds.MinAxisCount {
			c.enter(StepAxisWait)
			return
		}
		c.enter(StepBegin)
	})
	return err
}

// resetWorking loads the snapshot taken at start into the working mapping
func (c *Controller) resetWorking() {
	c.axes = make([]axisState, maxAxes)
	for i := range c.axes {
		c.axes[i] = axisState{
			function: NoFunction,
			min:      c.thresholds.ValidMin,
			max:      c.thresholds.ValidMax,
			trim:     c.thresholds.Center,
		}
	}
	for i := range c.fnAxis {
		c.fnAxis[i] = -1
	}

	if c.saved == nil {
		return
	}
	for _, m := range c.saved.Mappings {
		if m.Axis < 0 || m.Axis >= maxAxes || m.Function < 0 || int(m.Function) >= len(c.fnAxis) {
			continue
		}
		if c.axes[m.Axis].function != NoFunction {
			continue
		}
		c.axes[m.Axis] = axisState{function: m.Function, reversed: m.Reversed, min: m.Min, max: m.Max, trim: m.Trim}
		c.fnAxis[m.Function] = m.Axis
	}
}

// SetAxisCount records how many axes the input device reports
func (c *Controller) SetAxisCount(n int) {
	c.do(func() {
		n = max(0, min(n, maxAxes))
		if n == c.axisCount {
			return
		}
		c.axisCount = n

		switch {
		case c.step == StepIdle:
		case c.step == StepAxisWait:
			if n >= c.thresholds.MinAxisCount {
				c.enter(StepBegin)
			} else {
				c.enter(StepAxisWait)
			}
		case n < c.thresholds.MinAxisCount:
			c.logger.Warn("Input device lost during calibration",
				String("session", c.session),
				Int("axes", n))
			c.status(fmt.Sprintf("Input device lost: %d axes available, %d required. Reconnect the device to restart.",
				n, c.thresholds.MinAxisCount), true)
			c.resetWorking()
			c.enter(StepAxisWait)
		}
	})
}

// AxisValue feeds one raw sample
func (c *Controller) AxisValue(axis, value int) {
	c.do(func() {
		if axis < 0 || axis >= c.axisCount {
			return
		}
		value = max(c.thresholds.ValidMin, min(value, c.thresholds.ValidMax))
		c.values[axis] = value

		if c.step == StepIdle || c.step == StepAxisWait {
			return
		}

		switch c.step {
		case StepIdentify:
			c.identifyInput(axis, value)
		case StepMinMax:
			a := &c.axes[axis]
			a.min = min(a.min, value)
			a.max = max(a.max, value)
		case StepCenterThrottle:
			c.centerThrottleInput(axis, value)
		case StepDetectInversion:
			c.inversionInput(axis, value)
		}

		a := c.axes[axis]
		c.emit(events.AxisValue{Session: c.session, Axis: axis, Value: value, Min: a.min, Max: a.max})
	})
}

// Next handles the operator's next button
func (c *Controller) Next() error {
	var err error
	c.do(func() {
		if c.step == StepIdle {
			err = ErrNoSession
			return
		}

		switch c.step {
		case StepBegin:
			c.enterIdentify(0)
		case StepMinMax:
			if problems := c.spreadProblems(); len(problems) > 0 {
				c.status((&ValidationError{Problems: problems}).Error(), true)
				return
			}
			c.enter(StepCenterThrottle)
		case StepTrims:
			c.saveTrims(false)
			c.enter(StepSave)
		case StepSave:
			c.save()
		default:
			c.status("Next is not available at this step", false)
		}
	})
	return err
}

// Skip handles the operator's skip button
func (c *Controller) Skip() error {
	var err error
	c.do(func() {
		if c.step == StepIdle {
			err = ErrNoSession
			return
		}

		switch c.step {
		case StepIdentify:
			f := Functions[c.fnIndex]
			if c.oldAxis >= 0 && c.axes[c.oldAxis].function == NoFunction && !c.claimed[c.oldAxis] {
				c.assign(f, c.oldAxis)
			}
			c.advanceIdentify()
		case StepDetectInversion:
			c.advanceInversion()
		case StepTrims:
			c.saveTrims(true)
			c.enter(StepSave)
		default:
			c.status("Skip is not available at this step", false)
		}
	})
	return err
}

// Cancel abandons the session and restores the mapping captured at start
func (c *Controller) Cancel() error {
	var err error
	c.do(func() {
		if c.step == StepIdle {
			err = ErrNoSession
			return
		}

		c.resetWorking()
		for _, f := range Functions {
			c.emit(events.AxisMapped{Session: c.session, Function: f.String(), Axis: c.fnAxis[f]})
		}
		c.logger.Info("Calibration cancelled", String("session", c.session), String("step", c.step.String()))
		c.finish(false)
	})
	return err
}

// Validate checks the working mapping without saving it
func (c *Controller) Validate() error {
	var err error
	c.do(func() {
		if c.step == StepIdle {
			err = ErrNoSession
			return
		}
		err = ValidateTable(c.table(), c.thresholds)
	})
	return err
}

// Session is a read-only view of the active session
type Session struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	Profile      string    `json:"profile"`
	Step         string    `json:"step"`
	Function     string    `json:"function,omitempty"`
	Instructions string    `json:"instructions"`
	Image        string    `json:"image"`
	CanNext      bool      `json:"can_next"`
	CanSkip      bool      `json:"can_skip"`
	AxisCount    int       `json:"axis_count"`
	Values       []int     `json:"values"`
	Mappings     []Mapping `json:"mappings"`
}

// Session returns a snapshot of the active session
func (c *Controller) Session() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepIdle {
		return Session{}, ErrNoSession
	}
	info := c.stepInfo()
	return Session{
		ID:           c.session,
		DeviceID:     c.deviceID,
		Profile:      c.profile,
		Step:         c.step.String(),
		Function:     info.Function,
		Instructions: info.Instructions,
		Image:        info.Image,
		CanNext:      info.CanNext,
		CanSkip:      info.CanSkip,
		AxisCount:    c.axisCount,
		Values:       append([]int(nil), c.values[:c.axisCount]...),
		Mappings:     c.table().Mappings,
	}, nil
}

// SessionID returns the active session id, empty when idle
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step == StepIdle {
		return ""
	}
	return c.session
}

func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

func (c *Controller) enter(step Step) {
	c.step = step
	c.detect = detector{axis: -1}
	c.baseline = c.values

	switch step {
	case StepAxisWait:
		c.status(fmt.Sprintf("Detected %d axes, %d are required to calibrate", c.axisCount, c.thresholds.MinAxisCount), true)
	case StepMinMax:
		for i := 0; i < c.axisCount; i++ {
			c.axes[i].min = c.values[i]
			c.axes[i].max = c.values[i]
		}
	case StepCenterThrottle:
		if c.fnAxis[Throttle] < 0 {
			c.enterInversion(0)
			return
		}
	case StepSave:
		if err := ValidateTable(c.table(), c.thresholds); err != nil {
			c.recover(err)
			return
		}
	}

	info := c.stepInfo()
	info.Session = c.session
	c.emit(info)
}

func (c *Controller) enterIdentify(index int) {
	if index == 0 {
		c.claimed = make(map[int]bool)
	}
	c.fnIndex = index
	f := Functions[index]

	// the function starts unmapped; skip restores oldAxis
	c.oldAxis = c.fnAxis[f]
	if c.oldAxis >= 0 {
		c.axes[c.oldAxis].function = NoFunction
		c.fnAxis[f] = -1
		c.emit(events.AxisMapped{Session: c.session, Function: f.String(), Axis: -1})
	}
	c.enter(StepIdentify)
}

func (c *Controller) advanceIdentify() {
	if c.fnIndex+1 < len(Functions) {
		c.enterIdentify(c.fnIndex + 1)
		return
	}
	c.enter(StepMinMax)
}

func (c *Controller) enterInversion(index int) {
	if index == 0 {
		c.claimed = make(map[int]bool)
	}
	c.fnIndex = index
	c.enter(StepDetectInversion)
}

func (c *Controller) advanceInversion() {
	if axis := c.fnAxis[Functions[c.fnIndex]]; axis >= 0 {
		c.claimed[axis] = true
	}
	if c.fnIndex+1 < len(Functions) {
		c.enterInversion(c.fnIndex + 1)
		return
	}
	c.enter(StepTrims)
}

// settled feeds the move-then-settle detector
func (c *Controller) settled(axis, value int) bool {
	d := &c.detect
	if d.axis < 0 {
		if abs(value-c.baseline[axis]) > c.thresholds.MoveDelta {
			d.axis = axis
			d.last = value
			d.settling = false
		}
		return false
	}
	if axis != d.axis {
		return false
	}

	if abs(value-d.last) > c.thresholds.SettleDelta {
		d.last = value
		d.settling = false
		return false
	}
	if !d.settling {
		d.settling = true
		d.since = c.clock.Now()
		return false
	}
	if c.clock.Now().Sub(d.since) < c.thresholds.Settle {
		return false
	}

	// settled back near where it started: a spike, not a deliberate move
	if abs(d.last-c.baseline[axis]) <= c.thresholds.MoveDelta {
		c.detect = detector{axis: -1}
		return false
	}
	return true
}

func (c *Controller) identifyInput(axis, value int) {
	if c.claimed[axis] {
		return
	}
	if !c.settled(axis, value) {
		return
	}

	f := Functions[c.fnIndex]
	c.assign(f, axis)
	c.claimed[axis] = true
	c.logger.Debug("Axis identified", String("function", f.String()), Int("axis", axis))
	c.advanceIdentify()
}

func (c *Controller) centerThrottleInput(axis, value int) {
	if axis != c.fnAxis[Throttle] {
		return
	}
	if abs(value-c.thresholds.Center) <= c.thresholds.RoughCenterDelta {
		c.enterInversion(0)
	}
}

func (c *Controller) inversionInput(axis, value int) {
	if c.claimed[axis] {
		return
	}
	if !c.settled(axis, value) {
		return
	}

	f := Functions[c.fnIndex]
	if c.fnAxis[f] != axis {
		c.assign(f, axis)
	}
	reversed := value < c.baseline[axis]
	c.axes[axis].reversed = reversed
	c.emit(events.AxisReversed{Session: c.session, Function: f.String(), Axis: axis, Reversed: reversed})
	c.advanceInversion()
}

// assign maps f to axis, unmapping whatever either side was bound to before
func (c *Controller) assign(f Function, axis int) {
	if prev := c.axes[axis].function; prev != NoFunction && prev != f {
		c.fnAxis[prev] = -1
		c.emit(events.AxisMapped{Session: c.session, Function: prev.String(), Axis: -1})
	}
	if old := c.fnAxis[f]; old >= 0 && old != axis {
		c.axes[old].function = NoFunction
	}
	c.fnAxis[f] = axis
	c.axes[axis].function = f
	c.emit(events.AxisMapped{Session: c.session, Function: f.String(), Axis: axis})
}

// saveTrims records the resting position of each mapped axis. Throttle rests
// at its low end; skipping uses the profile center for the others.
func (c *Controller) saveTrims(useCenter bool) {
	for _, f := range Functions {
		axis := c.fnAxis[f]
		if axis < 0 {
			continue
		}
		a := &c.axes[axis]
		switch {
		case f == Throttle && a.reversed:
			a.trim = a.max
		case f == Throttle:
			a.trim = a.min
		case useCenter:
			a.trim = c.thresholds.Center
		default:
			a.trim = c.values[axis]
		}
	}
}

func (c *Controller) spreadProblems() []Problem {
	var problems []Problem
	for _, f := range Functions {
		axis := c.fnAxis[f]
		if axis < 0 {
			continue
		}
		if a := c.axes[axis]; a.max-a.min < c.thresholds.MinDelta {
			problems = append(problems, Problem{Function: f, Axis: axis, Reason: ReasonRange})
		}
	}
	return problems
}

// recover sends the operator back to the earliest step that can fix err
func (c *Controller) recover(err error) {
	c.status(err.Error(), true)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		c.enter(StepTrims)
		return
	}

	back := StepTrims
	fn := len(Functions)
	for _, p := range verr.Problems {
		switch p.Reason {
		case ReasonMissing, ReasonSharedAxis:
			back = StepIdentify
			fn = min(fn, int(p.Function))
		case ReasonRange:
			if back != StepIdentify {
				back = StepMinMax
			}
		}
	}

	switch back {
	case StepIdentify:
		// identify resumes from the first broken function
		c.claimed = make(map[int]bool)
		for _, f := range Functions[:fn] {
			if axis := c.fnAxis[f]; axis >= 0 {
				c.claimed[axis] = true
			}
		}
		c.fnIndex = fn
		f := Functions[fn]
		c.oldAxis = c.fnAxis[f]
		c.enter(StepIdentify)
	default:
		c.enter(back)
	}
}

func (c *Controller) save() {
	table := c.table()
	if err := ValidateTable(table, c.thresholds); err != nil {
		c.recover(err)
		return
	}

	if c.store != nil {
		if err := c.store.SaveCalibration(table); err != nil {
			c.logger.Error("Failed to save calibration", String("device", c.deviceID), Error(err))
			c.status(fmt.Sprintf("Failed to save calibration: %v", err), true)
			return
		}
	}
	if c.params != nil {
		if err := c.params.WriteCalibration(table); err != nil {
			c.logger.Warn("Failed to write calibration to vehicle", String("device", c.deviceID), Error(err))
			c.status(fmt.Sprintf("Saved, but the vehicle did not accept the parameters: %v", err), true)
		}
	}

	c.saved = table
	c.logger.Info("Calibration saved", String("session", c.session), String("device", c.deviceID))
	c.finish(true)
}

func (c *Controller) finish(saved bool) {
	c.emit(events.CalibrationFinished{Session: c.session, DeviceID: c.deviceID, Saved: saved})
	c.step = StepIdle
	c.session = ""
	c.claimed = nil
}

// table builds the working mapping in function order
func (c *Controller) table() *Table {
	t := &Table{DeviceID: c.deviceID, Profile: c.profile, Mappings: []Mapping{}}
	for _, f := range Functions {
		axis := c.fnAxis[f]
		if axis < 0 {
			continue
		}
		a := c.axes[axis]
		t.Mappings = append(t.Mappings, Mapping{
			Function: f,
			Axis:     axis,
			Reversed: a.reversed,
			Min:      a.min,
			Max:      a.max,
			Trim:     a.trim,
		})
	}
	return t
}

func cloneTable(t *Table) *Table {
	if t == nil {
		return nil
	}
	out := *t
	out.Mappings = append([]Mapping(nil), t.Mappings...)
	return &out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
