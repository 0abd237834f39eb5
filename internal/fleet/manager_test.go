package fleet

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []message.Message
}

func (t *recordingTransport) Send(msg message.Message) error {
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	t.mu.Unlock()
	return nil
}

func heartbeat(mavType common.MAV_TYPE) *common.MessageHeartbeat {
	return &common.MessageHeartbeat{
		Type:         mavType,
		Autopilot:    common.MAV_AUTOPILOT_PX4,
		SystemStatus: common.MAV_STATE_STANDBY,
	}
}

func newTestManager() (*Manager, *fakeClock, *recorder, *recordingTransport) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	tr := &recordingTransport{}
	m := NewManager(DefaultConfig(), Deps{Clock: clock, Publisher: rec, Transport: tr}, logger.NewNop())
	return m, clock, rec, tr
}

func TestHeartbeatCreatesVehicle(t *testing.T) {
	m, _, rec, _ := newTestManager()

	// telemetry before any heartbeat is not enough
	m.HandleFrame(3, 1, &common.MessageAttitude{Roll: 0.1})
	if m.Count() != 0 {
		t.Fatal("vehicle created without heartbeat")
	}

	m.HandleFrame(3, 1, heartbeat(common.MAV_TYPE_QUADROTOR))
	m.HandleFrame(3, 1, heartbeat(common.MAV_TYPE_QUADROTOR))
	if m.Count() != 1 {
		t.Fatalf("vehicles = %d, want 1", m.Count())
	}
	if rec.count(events.KindVehicleAdded) != 1 {
		t.Fatalf("vehicle added events = %d", rec.count(events.KindVehicleAdded))
	}

	state, err := m.Vehicle(3)
	if err != nil {
		t.Fatal(err)
	}
	if state.SystemID != 3 || state.LastHeartbeat.IsZero() {
		t.Fatalf("state = %+v", state)
	}
}

func TestIgnoresGroundStationsAndEcho(t *testing.T) {
	m, _, _, _ := newTestManager()
	m.HandleFrame(4, 190, heartbeat(common.MAV_TYPE_GCS))
	m.HandleFrame(255, 190, heartbeat(common.MAV_TYPE_QUADROTOR))
	m.HandleFrame(5, 1, nil)
	if m.Count() != 0 {
		t.Fatalf("vehicles = %d, want 0", m.Count())
	}
}

func TestVehiclesSortedBySystemID(t *testing.T) {
	m, _, _, _ := newTestManager()
	for _, id := range []uint8{9, 2, 5} {
		m.HandleFrame(id, 1, heartbeat(common.MAV_TYPE_FIXED_WING))
	}

	var ids []uint8
	for _, v := range m.Vehicles() {
		ids = append(ids, v.SystemID)
	}
	if len(ids) != 3 || ids[0] != 2 || ids[1] != 5 || ids[2] != 9 {
		t.Fatalf("ids = %v", ids)
	}
}

func TestRemoveAndNotFound(t *testing.T) {
	m, _, rec, _ := newTestManager()
	m.HandleFrame(1, 1, heartbeat(common.MAV_TYPE_QUADROTOR))

	if err := m.Remove(1); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove(1); !errors.Is(err, ErrVehicleNotFound) {
		t.Fatalf("second remove: %v", err)
	}
	if _, err := m.Vehicle(1); !errors.Is(err, ErrVehicleNotFound) {
		t.Fatalf("vehicle: %v", err)
	}
	if _, err := m.Encoder(1); !errors.Is(err, ErrVehicleNotFound) {
		t.Fatalf("encoder: %v", err)
	}
	if _, err := m.Image(1); !errors.Is(err, ErrVehicleNotFound) {
		t.Fatalf("image: %v", err)
	}
	if rec.count(events.KindVehicleRemoved) != 1 {
		t.Fatal("no removed event")
	}
}

func TestCheckLinksFiresTimeoutOnce(t *testing.T) {
	m, clock, rec, _ := newTestManager()
	m.HandleFrame(1, 1, heartbeat(common.MAV_TYPE_QUADROTOR))

	clock.Advance(2 * time.Second)
	m.CheckLinks()
	if rec.count(events.KindHeartbeatTimeout) != 0 {
		t.Fatal("timeout before the deadline")
	}

	clock.Advance(2 * time.Second)
	m.CheckLinks()
	m.CheckLinks()
	if rec.count(events.KindHeartbeatTimeout) != 1 {
		t.Fatalf("timeouts = %d, want 1", rec.count(events.KindHeartbeatTimeout))
	}

	state, _ := m.Vehicle(1)
	if !state.ConnectionLost {
		t.Fatal("connection not marked lost")
	}
}

func TestEncoderAddressesVehicle(t *testing.T) {
	m, _, _, tr := newTestManager()
	m.HandleFrame(6, 1, heartbeat(common.MAV_TYPE_QUADROTOR))

	enc, err := m.Encoder(6)
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.SetParameter("RC1_MIN", 1000); err != nil {
		t.Fatal(err)
	}

	set := tr.sent[0].(*common.MessageParamSet)
	if set.TargetSystem != 6 || set.TargetComponent != 1 {
		t.Fatalf("param set addressed to %d/%d", set.TargetSystem, set.TargetComponent)
	}
}

func TestConcurrentFrames(t *testing.T) {
	m, _, _, _ := newTestManager()

	var wg sync.WaitGroup
	for link := 0; link < 4; link++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.HandleFrame(1, 1, heartbeat(common.MAV_TYPE_QUADROTOR))
				m.HandleFrame(1, 1, &common.MessageAttitude{Roll: float32(i) / 1000})
				_ = m.Vehicles()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			m.CheckLinks()
		}
	}()
	wg.Wait()

	if m.Count() != 1 {
		t.Fatalf("vehicles = %d, want 1", m.Count())
	}
}
