package fleet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/sasha-s/go-deadlock"

	"github.com/yegors/co-gcs/internal/command"
	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/internal/firmware"
	"github.com/yegors/co-gcs/internal/timesync"
	"github.com/yegors/co-gcs/internal/vehicle"
	"github.com/yegors/co-gcs/pkg/logger"
)

var ErrVehicleNotFound = errors.New("vehicle not found")

// Config controls vehicle sessions
type Config struct {
	Vehicle         vehicle.Config
	CheckInterval   time.Duration // how often heartbeat timeouts are evaluated
	OwnSystemID     uint8         // frames from this id are our own echo
	TargetComponent uint8         // component addressed by parameter writes
}

func DefaultConfig() Config {
	return Config{
		Vehicle:         vehicle.DefaultConfig(),
		CheckInterval:   500 * time.Millisecond,
		OwnSystemID:     255,
		TargetComponent: uint8(common.MAV_COMP_ID_AUTOPILOT1),
	}
}

type Deps struct {
	Clock     timesync.Clock
	Publisher events.Publisher
	Announcer vehicle.Announcer
	Firmware  *firmware.Registry
	Transport command.Transport // nil leaves vehicles receive-only
}

// session is one connected vehicle. mu serializes everything that touches
// the dispatcher, so frames from several links cannot interleave.
type session struct {
	mu         deadlock.Mutex
	dispatcher *vehicle.Dispatcher
	encoder    *command.Encoder
}

// Manager owns the vehicle sessions and routes frames to them by system id
type Manager struct {
	config Config
	deps   Deps
	logger *logger.Logger

	mu       sync.RWMutex
	vehicles map[uint8]*session

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewManager(config Config, deps Deps, log *logger.Logger) *Manager {
	if deps.Clock == nil {
		deps.Clock = timesync.SystemClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Discard
	}
	if deps.Firmware == nil {
		deps.Firmware = firmware.NewRegistry()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}

	return &Manager{
		config:   config,
		deps:     deps,
		logger:   log.Named("fleet"),
		vehicles: make(map[uint8]*session),
		stopCh:   make(chan struct{}),
	}
}

// HandleFrame routes one inbound message. Unknown system ids only become
// vehicles through a heartbeat from a non-GCS system.
func (m *Manager) HandleFrame(systemID, componentID uint8, msg message.Message) {
	if msg == nil || systemID == m.config.OwnSystemID {
		return
	}

	s := m.lookup(systemID)
	if s == nil {
		hb, ok := msg.(*common.MessageHeartbeat)
		if !ok || hb.Type == common.MAV_TYPE_GCS {
			return
		}
		s = m.add(systemID, hb)
	}

	s.mu.Lock()
	s.dispatcher.Handle(systemID, componentID, msg)
	s.mu.Unlock()
}

func (m *Manager) lookup(systemID uint8) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vehicles[systemID]
}

func (m *Manager) add(systemID uint8, hb *common.MessageHeartbeat) *session {
	m.mu.Lock()
	if s, ok := m.vehicles[systemID]; ok {
		m.mu.Unlock()
		return s
	}

	s := &session{
		dispatcher: vehicle.NewDispatcher(systemID, m.config.Vehicle, vehicle.Deps{
			Clock:     m.deps.Clock,
			Publisher: m.deps.Publisher,
			Announcer: m.deps.Announcer,
			Firmware:  m.deps.Firmware,
		}, m.logger),
		encoder: command.NewEncoder(m.deps.Transport, systemID, m.config.TargetComponent, m.logger),
	}
	m.vehicles[systemID] = s
	m.mu.Unlock()

	m.logger.Info("New vehicle",
		logger.Int("system_id", int(systemID)),
		logger.Int("autopilot", int(hb.Autopilot)),
		logger.Int("type", int(hb.Type)))
	m.deps.Publisher.Publish(events.VehicleAdded{
		SystemID:  systemID,
		Autopilot: uint8(hb.Autopilot),
		Type:      uint8(hb.Type),
	})
	return s
}

// Remove ends a vehicle session
func (m *Manager) Remove(systemID uint8) error {
	m.mu.Lock()
	_, ok := m.vehicles[systemID]
	delete(m.vehicles, systemID)
	m.mu.Unlock()

	if !ok {
		return ErrVehicleNotFound
	}
	m.logger.Info("Vehicle removed", logger.Int("system_id", int(systemID)))
	m.deps.Publisher.Publish(events.VehicleRemoved{SystemID: systemID})
	return nil
}

func (m *Manager) sessions() []*session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*session, 0, len(m.vehicles))
	for _, s := range m.vehicles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].dispatcher.SystemID() < out[j].dispatcher.SystemID()
	})
	return out
}

// Vehicles returns a snapshot of every vehicle ordered by system id
func (m *Manager) Vehicles() []vehicle.State {
	sessions := m.sessions()
	out := make([]vehicle.State, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		out = append(out, s.dispatcher.Snapshot())
		s.mu.Unlock()
	}
	return out
}

func (m *Manager) Vehicle(systemID uint8) (vehicle.State, error) {
	s := m.lookup(systemID)
	if s == nil {
		return vehicle.State{}, ErrVehicleNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.Snapshot(), nil
}

// Image returns the last completed image, nil if none has arrived
func (m *Manager) Image(systemID uint8) (*vehicle.Image, error) {
	s := m.lookup(systemID)
	if s == nil {
		return nil, ErrVehicleNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.Image(), nil
}

func (m *Manager) UnknownMessageIDs(systemID uint8) ([]uint32, error) {
	s := m.lookup(systemID)
	if s == nil {
		return nil, ErrVehicleNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.UnknownMessageIDs(), nil
}

// Encoder returns the command encoder addressed to a vehicle
func (m *Manager) Encoder(systemID uint8) (*command.Encoder, error) {
	s := m.lookup(systemID)
	if s == nil {
		return nil, ErrVehicleNotFound
	}
	return s.encoder, nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vehicles)
}

// Start runs the heartbeat timeout check until Stop or ctx is done
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("Starting fleet manager",
		logger.Duration("check_interval", m.config.CheckInterval),
		logger.Duration("heartbeat_timeout", m.config.Vehicle.HeartbeatTimeout))

	m.wg.Add(1)
	go m.checkLoop(ctx)
	return nil
}

func (m *Manager) Stop() {
	m.logger.Info("Stopping fleet manager")
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("Fleet manager stopped")
}

func (m *Manager) checkLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckLinks()
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// CheckLinks evaluates heartbeat timeouts for every vehicle
func (m *Manager) CheckLinks() {
	now := m.deps.Clock.Now()
	for _, s := range m.sessions() {
		s.mu.Lock()
		s.dispatcher.CheckLink(now)
		s.mu.Unlock()
	}
}
