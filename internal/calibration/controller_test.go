package calibration

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/pkg/logger"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recorder struct {
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) { r.events = append(r.events, ev) }

func collect[T events.Event](r *recorder) []T {
	var out []T
	for _, ev := range r.events {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

type memStore struct {
	tables map[string]*Table
	saves  int
	err    error
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string]*Table)}
}

func (s *memStore) LoadCalibration(deviceID string) (*Table, error) {
	return cloneTable(s.tables[deviceID]), nil
}

func (s *memStore) SaveCalibration(t *Table) error {
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.tables[t.DeviceID] = cloneTable(t)
	return nil
}

type paramRecorder struct {
	tables []*Table
}

func (p *paramRecorder) WriteCalibration(t *Table) error {
	p.tables = append(p.tables, t)
	return nil
}

type harness struct {
	t      *testing.T
	c      *Controller
	clock  *fakeClock
	rec    *recorder
	store  *memStore
	params *paramRecorder
}

func newHarness(t *testing.T, axes int) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		rec:    &recorder{},
		store:  newMemStore(),
		params: &paramRecorder{},
	}
	h.c = NewController(ProfileJoystick, JoystickThresholds(), Deps{
		Clock:     h.clock,
		Publisher: h.rec,
		Store:     h.store,
		Params:    h.params,
	}, logger.NewNop())
	h.c.SetAxisCount(axes)
	return h
}

// hold moves an axis to value and keeps it there past the settle time
func (h *harness) hold(axis, value int) {
	h.c.AxisValue(axis, value)
	h.clock.Advance(100 * time.Millisecond)
	h.c.AxisValue(axis, value)
	h.clock.Advance(600 * time.Millisecond)
	h.c.AxisValue(axis, value)
}

func (h *harness) centerAll() {
	for axis := 0; axis < 4; axis++ {
		h.c.AxisValue(axis, 0)
	}
}

func (h *harness) session() Session {
	h.t.Helper()
	s, err := h.c.Session()
	if err != nil {
		h.t.Fatalf("session: %v", err)
	}
	return s
}

func (h *harness) mustNext() {
	h.t.Helper()
	if err := h.c.Next(); err != nil {
		h.t.Fatalf("next: %v", err)
	}
}

// identifyAll maps roll, pitch, yaw, throttle to axes 0..3
func (h *harness) identifyAll() {
	for axis := 0; axis < 4; axis++ {
		h.hold(axis, 30000)
		h.c.AxisValue(axis, 0)
	}
}

func (h *harness) sweepAll() {
	for axis := 0; axis < 4; axis++ {
		h.c.AxisValue(axis, -32768)
		h.c.AxisValue(axis, 32767)
		h.c.AxisValue(axis, 0)
	}
}

func TestFullCalibrationSaves(t *testing.T) {
	h := newHarness(t, 4)
	if err := h.c.Start("s1", "pad-1"); err != nil {
		t.Fatal(err)
	}
	if got := h.c.Step(); got != StepBegin {
		t.Fatalf("step = %v, want begin", got)
	}
	h.mustNext()

	h.identifyAll()
	if got := h.c.Step(); got != StepMinMax {
		t.Fatalf("step after identify = %v", got)
	}

	h.sweepAll()
	h.mustNext()
	if got := h.c.Step(); got != StepCenterThrottle {
		t.Fatalf("step after min/max = %v", got)
	}

	h.c.AxisValue(3, 100) // inside the rough center band
	if got := h.c.Step(); got != StepDetectInversion {
		t.Fatalf("step after centering throttle = %v", got)
	}

	h.hold(0, 30000)
	h.c.AxisValue(0, 0)
	h.hold(1, -30000) // pitch reads backwards
	h.c.AxisValue(1, 0)
	h.hold(2, 30000)
	h.c.AxisValue(2, 0)
	h.hold(3, 30000)
	if got := h.c.Step(); got != StepTrims {
		t.Fatalf("step after inversion = %v", got)
	}

	h.centerAll()
	h.c.AxisValue(0, 120)
	h.mustNext()
	if got := h.c.Step(); got != StepSave {
		t.Fatalf("step after trims = %v", got)
	}
	h.mustNext()

	if h.c.Step() != StepIdle {
		t.Fatalf("still active after save")
	}

	want := &Table{
		DeviceID: "pad-1",
		Profile:  ProfileJoystick,
		Mappings: []Mapping{
			{Function: Roll, Axis: 0, Min: -32768, Max: 32767, Trim: 120},
			{Function: Pitch, Axis: 1, Reversed: true, Min: -32768, Max: 32767, Trim: 0},
			{Function: Yaw, Axis: 2, Min: -32768, Max: 32767, Trim: 0},
			{Function: Throttle, Axis: 3, Min: -32768, Max: 32767, Trim: -32768},
		},
	}
	if diff := cmp.Diff(want, h.store.tables["pad-1"]); diff != "" {
		t.Errorf("saved table (-want +got):\n%s", diff)
	}
	if len(h.params.tables) != 1 {
		t.Errorf("param writes = %d, want 1", len(h.params.tables))
	}

	finished := collect[events.CalibrationFinished](h.rec)
	if len(finished) != 1 || !finished[0].Saved || finished[0].Session != "s1" {
		t.Fatalf("finished events = %+v", finished)
	}
}

func TestIdentifyAdvancesOncePerAxis(t *testing.T) {
	h := newHarness(t, 4)
	_ = h.c.Start("s1", "pad")
	h.mustNext()

	h.hold(0, 30000)
	if s := h.session(); s.Function != "pitch" {
		t.Fatalf("function after first axis = %q", s.Function)
	}

	// the same axis again cannot be taken by pitch
	h.c.AxisValue(0, 0)
	h.hold(0, -30000)
	if s := h.session(); s.Function != "pitch" {
		t.Fatalf("claimed axis advanced identify to %q", s.Function)
	}

	var identified int
	for _, ev := range collect[events.AxisMapped](h.rec) {
		if ev.Axis >= 0 {
			identified++
		}
	}
	if identified != 1 {
		t.Fatalf("mapped events = %d, want 1", identified)
	}
}

func TestIdentifyRequiresSettle(t *testing.T) {
	h := newHarness(t, 4)
	_ = h.c.Start("s1", "pad")
	h.mustNext()

	// keeps moving: never settles
	for i := 0; i < 20; i++ {
		h.c.AxisValue(0, 20000+(i%2)*5000)
		h.clock.Advance(100 * time.Millisecond)
	}
	if s := h.session(); s.Function != "roll" {
		t.Fatalf("moving axis identified, now at %q", s.Function)
	}

	// settling back at center makes it a spike, not a move
	h.hold(0, 0)
	if s := h.session(); s.Function != "roll" {
		t.Fatalf("spike identified, now at %q", s.Function)
	}

	// settling below the settle time does not count
	h.c.AxisValue(2, 30000)
	h.clock.Advance(100 * time.Millisecond)
	h.c.AxisValue(2, 30000)
	h.clock.Advance(300 * time.Millisecond)
	h.c.AxisValue(2, 30000)
	if s := h.session(); s.Function != "roll" {
		t.Fatalf("identified before settle time, now at %q", s.Function)
	}
	h.clock.Advance(300 * time.Millisecond)
	h.c.AxisValue(2, 30000)
	if s := h.session(); s.Function != "pitch" {
		t.Fatalf("function = %q, want pitch", s.Function)
	}
}

func TestAxisWaitUntilMinimumAxes(t *testing.T) {
	h := newHarness(t, 3)
	if err := h.c.Start("s1", "pad"); err != nil {
		t.Fatal(err)
	}
	if got := h.c.Step(); got != StepAxisWait {
		t.Fatalf("step = %v, want axis_wait", got)
	}
	if err := h.c.Next(); err != nil {
		t.Fatal(err)
	}
	if got := h.c.Step(); got != StepAxisWait {
		t.Fatalf("next left axis_wait with 3 axes")
	}

	statuses := collect[events.CalibrationStatus](h.rec)
	if len(statuses) == 0 || !statuses[0].Problem || !strings.Contains(statuses[0].Text, "Detected 3 axes") {
		t.Fatalf("statuses = %+v", statuses)
	}

	h.c.SetAxisCount(4)
	if got := h.c.Step(); got != StepBegin {
		t.Fatalf("step = %v, want begin", got)
	}
}

func TestDeviceLostReturnsToAxisWait(t *testing.T) {
	h := newHarness(t, 4)
	_ = h.c.Start("s1", "pad")
	h.mustNext()
	h.hold(0, 30000)

	h.c.SetAxisCount(0)
	if got := h.c.Step(); got != StepAxisWait {
		t.Fatalf("step = %v, want axis_wait", got)
	}
	lost := false
	for _, st := range collect[events.CalibrationStatus](h.rec) {
		if strings.HasPrefix(st.Text, "Input device lost") && st.Problem {
			lost = true
		}
	}
	if !lost {
		t.Fatal("no device lost status")
	}
	if s := h.session(); len(s.Mappings) != 0 {
		t.Fatalf("partial mapping kept: %+v", s.Mappings)
	}

	h.c.SetAxisCount(4)
	if got := h.c.Step(); got != StepBegin {
		t.Fatalf("step = %v, want begin", got)
	}
}

func TestReassignUnmapsPreviousFunction(t *testing.T) {
	h := newHarness(t, 4)
	h.store.tables["pad"] = &Table{DeviceID: "pad", Mappings: []Mapping{
		{Function: Pitch, Axis: 0, Min: -32768, Max: 32767},
	}}
	_ = h.c.Start("s1", "pad")
	h.mustNext()

	h.hold(0, 30000) // roll takes pitch's axis

	s := h.session()
	want := []Mapping{{Function: Roll, Axis: 0, Min: -32768, Max: 32767}}
	if diff := cmp.Diff(want, s.Mappings); diff != "" {
		t.Errorf("mappings (-want +got):\n%s", diff)
	}

	var pitchUnmapped bool
	for _, ev := range collect[events.AxisMapped](h.rec) {
		if ev.Function == "pitch" && ev.Axis == -1 {
			pitchUnmapped = true
		}
	}
	if !pitchUnmapped {
		t.Fatal("pitch unmapping not published")
	}
}

func TestSkipIdentifyKeepsOldMapping(t *testing.T) {
	h := newHarness(t, 4)
	h.store.tables["pad"] = &Table{DeviceID: "pad", Mappings: []Mapping{
		{Function: Roll, Axis: 3, Min: -100, Max: 100},
	}}
	_ = h.c.Start("s1", "pad")
	h.mustNext()

	if s := h.session(); len(s.Mappings) != 0 {
		t.Fatalf("roll not cleared while identifying: %+v", s.Mappings)
	}
	if err := h.c.Skip(); err != nil {
		t.Fatal(err)
	}

	s := h.session()
	if s.Function != "pitch" {
		t.Fatalf("function = %q, want pitch", s.Function)
	}
	if len(s.Mappings) != 1 || s.Mappings[0].Function != Roll || s.Mappings[0].Axis != 3 {
		t.Fatalf("mappings = %+v", s.Mappings)
	}
}

func TestMinMaxRejectsStuckAxis(t *testing.T) {
	h := newHarness(t, 4)
	_ = h.c.Start("s1", "pad")
	h.mustNext()
	h.identifyAll()

	// yaw never moves during the sweep
	for _, axis := range []int{0, 1, 3} {
		h.c.AxisValue(axis, -32768)
		h.c.AxisValue(axis, 32767)
	}
	h.c.AxisValue(2, 200)
	h.mustNext()

	if got := h.c.Step(); got != StepMinMax {
		t.Fatalf("step = %v, want min_max", got)
	}
	statuses := collect[events.CalibrationStatus](h.rec)
	last := statuses[len(statuses)-1]
	if !last.Problem || !strings.Contains(last.Text, "yaw (axis 2)") {
		t.Fatalf("status = %+v", last)
	}
}

func TestCancelRestoresSnapshot(t *testing.T) {
	h := newHarness(t, 4)
	original := &Table{DeviceID: "pad", Mappings: []Mapping{
		{Function: Roll, Axis: 1, Min: -100, Max: 100},
		{Function: Pitch, Axis: 0, Min: -100, Max: 100},
	}}
	h.store.tables["pad"] = cloneTable(original)

	_ = h.c.Start("s1", "pad")
	h.mustNext()
	h.hold(0, 30000)

	if err := h.c.Cancel(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.c.Session(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("session after cancel: %v", err)
	}
	if h.store.saves != 0 {
		t.Fatal("cancel saved")
	}

	finished := collect[events.CalibrationFinished](h.rec)
	if len(finished) != 1 || finished[0].Saved {
		t.Fatalf("finished = %+v", finished)
	}

	// the last mapping events describe the restored table
	restored := map[string]int{}
	for _, ev := range collect[events.AxisMapped](h.rec) {
		restored[ev.Function] = ev.Axis
	}
	want := map[string]int{"roll": 1, "pitch": 0, "yaw": -1, "throttle": -1}
	if diff := cmp.Diff(want, restored); diff != "" {
		t.Errorf("restored mapping (-want +got):\n%s", diff)
	}

	_ = h.c.Start("s2", "pad")
	if diff := cmp.Diff(original.Mappings, h.session().Mappings); diff != "" {
		t.Errorf("mapping after restart (-want +got):\n%s", diff)
	}
}

func TestSessionErrors(t *testing.T) {
	h := newHarness(t, 4)
	if err := h.c.Next(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("next: %v", err)
	}
	if err := h.c.Cancel(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("cancel: %v", err)
	}
	if err := h.c.Validate(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("validate: %v", err)
	}

	_ = h.c.Start("s1", "pad")
	if err := h.c.Start("s2", "pad"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second start: %v", err)
	}
	if id := h.c.SessionID(); id != "s1" {
		t.Fatalf("session id = %q", id)
	}
}

func TestSaveFailureKeepsSession(t *testing.T) {
	h := newHarness(t, 4)
	h.store.tables["pad"] = &Table{DeviceID: "pad", Mappings: []Mapping{
		{Function: Roll, Axis: 0, Min: -32768, Max: 32767},
		{Function: Pitch, Axis: 1, Min: -32768, Max: 32767},
		{Function: Yaw, Axis: 2, Min: -32768, Max: 32767},
		{Function: Throttle, Axis: 3, Min: -32768, Max: 32767},
	}}
	_ = h.c.Start("s1", "pad")
	h.mustNext()
	for i := 0; i < 4; i++ {
		_ = h.c.Skip()
	}
	h.sweepAll()
	h.mustNext()
	h.c.AxisValue(3, 0)
	for i := 0; i < 4; i++ {
		_ = h.c.Skip()
	}
	_ = h.c.Skip() // default trims
	if got := h.c.Step(); got != StepSave {
		t.Fatalf("step = %v, want save", got)
	}

	h.store.err = errors.New("disk full")
	h.mustNext()
	if got := h.c.Step(); got != StepSave {
		t.Fatalf("step after failed save = %v", got)
	}

	h.store.err = nil
	h.mustNext()
	if h.store.saves != 1 || h.c.Step() != StepIdle {
		t.Fatalf("saves %d step %v", h.store.saves, h.c.Step())
	}
}

func TestSaveWithMissingFunctionReturnsToIdentify(t *testing.T) {
	h := newHarness(t, 4)
	_ = h.c.Start("s1", "pad")
	h.mustNext()

	// identify roll, pitch, yaw and skip throttle
	for axis := 0; axis < 3; axis++ {
		h.hold(axis, 30000)
		h.c.AxisValue(axis, 0)
	}
	_ = h.c.Skip()
	h.sweepAll()
	h.mustNext()

	// no throttle: center step is passed over
	if got := h.c.Step(); got != StepDetectInversion {
		t.Fatalf("step = %v, want detect_inversion", got)
	}
	for i := 0; i < 4; i++ {
		_ = h.c.Skip()
	}
	h.mustNext()

	if got := h.c.Step(); got != StepIdentify {
		t.Fatalf("step = %v, want identify", got)
	}
	if s := h.session(); s.Function != "throttle" {
		t.Fatalf("function = %q, want throttle", s.Function)
	}
	if err := h.c.Validate(); err == nil {
		t.Fatal("validate passed without throttle")
	}
}
