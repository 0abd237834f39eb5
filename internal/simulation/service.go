package simulation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/yegors/co-gcs/internal/config"
	"github.com/yegors/co-gcs/internal/physics"
	"github.com/yegors/co-gcs/pkg/logger"
)

const (
	orbitRadiusM    = 40.0
	orbitPeriod     = 90 * time.Second
	heartbeatPeriod = time.Second
	drainPerSecond  = 0.05 // percent
	fullVoltage     = 16.8
	emptyVoltage    = 13.2
	earthRadiusM    = 6378137.0
	componentID     = 1
)

// PX4 AUTO.LOITER and ArduCopter LOITER
const (
	px4LoiterMode       = 4<<16 | 3<<24
	ardupilotLoiterMode = 5
)

// FrameHandler receives the generated messages
type FrameHandler interface {
	HandleFrame(systemID, componentID uint8, msg message.Message)
}

// Vehicle is the state of the simulated multirotor
type Vehicle struct {
	SystemID  uint8   `json:"system_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	AltitudeM float64 `json:"altitude_m"`
	North     float64 `json:"north"`
	East      float64 `json:"east"`
	Heading   float64 `json:"heading"`
	Battery   float64 `json:"battery"`
	Voltage   float64 `json:"voltage"`
}

// Service flies one simulated vehicle in a circle around the configured
// position and feeds its telemetry into the handler
type Service struct {
	config  config.SimulationConfig
	handler FrameHandler
	logger  *logger.Logger

	mutex         sync.Mutex
	boot          time.Time
	lastUpdate    time.Time
	lastHeartbeat time.Time
	angle         float64
	battery       float64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates a new simulation service
func NewService(cfg config.SimulationConfig, handler FrameHandler, logger *logger.Logger) *Service {
	return &Service{
		config:  cfg,
		handler: handler,
		logger:  logger.Named("simulation"),
		battery: 100,
		stopCh:  make(chan struct{}),
	}
}

// Start begins emitting telemetry every interval
func (s *Service) Start(ctx context.Context) error {
	if s.config.IntervalMs <= 0 {
		return fmt.Errorf("invalid simulation interval: %d ms", s.config.IntervalMs)
	}
	if s.config.SystemID < 1 || s.config.SystemID > 254 {
		return fmt.Errorf("invalid simulation system id: %d", s.config.SystemID)
	}

	s.logger.Info(fmt.Sprintf("Starting simulated vehicle system_id=%d autopilot=%s lat=%.6f lon=%.6f",
		s.config.SystemID, s.config.Autopilot, s.config.Latitude, s.config.Longitude))

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop halts the simulation and waits for the loop to exit
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Simulation stopped")
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.config.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	s.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Tick advances the simulation to now and delivers one round of telemetry
func (s *Service) Tick(now time.Time) {
	s.mutex.Lock()
	msgs := s.update(now)
	s.mutex.Unlock()

	sysID := uint8(s.config.SystemID)
	for _, msg := range msgs {
		s.handler.HandleFrame(sysID, componentID, msg)
	}
}

// Snapshot returns the current simulated state
func (s *Service) Snapshot() Vehicle {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.vehicleLocked()
}

func (s *Service) vehicleLocked() Vehicle {
	north := orbitRadiusM * math.Cos(s.angle)
	east := orbitRadiusM * math.Sin(s.angle)

	lat := s.config.Latitude + north/earthRadiusM*180/math.Pi
	lon := s.config.Longitude + east/(earthRadiusM*math.Cos(s.config.Latitude*math.Pi/180))*180/math.Pi

	return Vehicle{
		SystemID:  uint8(s.config.SystemID),
		Latitude:  lat,
		Longitude: lon,
		AltitudeM: s.config.AltitudeM + s.relativeAlt(),
		North:     north,
		East:      east,
		Heading:   physics.NormalizeAngle(s.angle + math.Pi/2), // radians, tangent to the orbit
		Battery:   s.battery,
		Voltage:   emptyVoltage + (fullVoltage-emptyVoltage)*s.battery/100,
	}
}

func (s *Service) relativeAlt() float64 {
	return 10 + 2*math.Sin(2*s.angle)
}

// update moves the vehicle along the orbit and builds the messages for this tick
func (s *Service) update(now time.Time) []message.Message {
	if s.boot.IsZero() {
		s.boot = now
		s.lastUpdate = now
	}

	dt := now.Sub(s.lastUpdate).Seconds()
	if dt > 0 {
		s.angle = math.Mod(s.angle+2*math.Pi*dt/orbitPeriod.Seconds(), 2*math.Pi)
		s.battery = math.Max(0, s.battery-drainPerSecond*dt)
		s.lastUpdate = now
	}

	v := s.vehicleLocked()
	bootMs := uint32(now.Sub(s.boot).Milliseconds())
	speed := 2 * math.Pi * orbitRadiusM / orbitPeriod.Seconds()
	vn := -speed * math.Sin(s.angle)
	ve := speed * math.Cos(s.angle)
	yaw := v.Heading

	var msgs []message.Message
	if s.lastHeartbeat.IsZero() || now.Sub(s.lastHeartbeat) >= heartbeatPeriod {
		msgs = append(msgs, s.heartbeat())
		s.lastHeartbeat = now
	}

	msgs = append(msgs,
		&common.MessageSysStatus{
			Load:             250,
			VoltageBattery:   uint16(math.Round(v.Voltage * 1000)),
			CurrentBattery:   1200,
			BatteryRemaining: int8(math.Ceil(v.Battery)),
		},
		&common.MessageAttitude{
			TimeBootMs: bootMs,
			Roll:       0.05,
			Pitch:      -0.03,
			Yaw:        float32(yaw),
		},
		&common.MessageGlobalPositionInt{
			TimeBootMs:  bootMs,
			Lat:         int32(math.Round(v.Latitude * 1e7)),
			Lon:         int32(math.Round(v.Longitude * 1e7)),
			Alt:         int32(math.Round(v.AltitudeM * 1000)),
			RelativeAlt: int32(math.Round(s.relativeAlt() * 1000)),
			Vx:          int16(math.Round(vn * 100)),
			Vy:          int16(math.Round(ve * 100)),
			Hdg:         uint16(math.Mod(yaw*180/math.Pi+360, 360) * 100),
		},
		&common.MessageLocalPositionNed{
			TimeBootMs: bootMs,
			X:          float32(v.North),
			Y:          float32(v.East),
			Z:          float32(-s.relativeAlt()),
			Vx:         float32(vn),
			Vy:         float32(ve),
		},
	)
	return msgs
}

func (s *Service) heartbeat() *common.MessageHeartbeat {
	hb := &common.MessageHeartbeat{
		Type:           common.MAV_TYPE_QUADROTOR,
		Autopilot:      common.MAV_AUTOPILOT_PX4,
		BaseMode:       common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED | common.MAV_MODE_FLAG_SAFETY_ARMED,
		CustomMode:     px4LoiterMode,
		SystemStatus:   common.MAV_STATE_ACTIVE,
		MavlinkVersion: 3,
	}
	if s.config.Autopilot == "ardupilot" {
		hb.Autopilot = common.MAV_AUTOPILOT_ARDUPILOTMEGA
		hb.CustomMode = ardupilotLoiterMode
	}
	return hb
}
