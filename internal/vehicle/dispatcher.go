package vehicle

import (
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/internal/firmware"
	"github.com/yegors/co-gcs/internal/timesync"
	"github.com/yegors/co-gcs/pkg/logger"
)

// Logger field aliases
var (
	String   = logger.String
	Int      = logger.Int
	Uint32   = logger.Uint32
	Float64  = logger.Float64
	Duration = logger.Duration
	Error    = logger.Error
)

const (
	maxTrackedTypes = 512 // ownership records kept per vehicle
	maxUnknownTypes = 256 // distinct unknown ids remembered
	maxStatusTexts  = 32
)

var (
	idHeartbeat          = (&common.MessageHeartbeat{}).GetID()
	idSysStatus          = (&common.MessageSysStatus{}).GetID()
	idBatteryStatus      = (&common.MessageBatteryStatus{}).GetID()
	idAttitude           = (&common.MessageAttitude{}).GetID()
	idAttitudeQuaternion = (&common.MessageAttitudeQuaternion{}).GetID()
	idVfrHud             = (&common.MessageVfrHud{}).GetID()
	idLocalPositionNed   = (&common.MessageLocalPositionNed{}).GetID()
	idGlobalPositionInt  = (&common.MessageGlobalPositionInt{}).GetID()
	idGpsRawInt          = (&common.MessageGpsRawInt{}).GetID()
	idGpsStatus          = (&common.MessageGpsStatus{}).GetID()
	idGpsGlobalOrigin    = (&common.MessageGpsGlobalOrigin{}).GetID()
	idNavController      = (&common.MessageNavControllerOutput{}).GetID()
	idRcChannels         = (&common.MessageRcChannels{}).GetID()
	idPositionTarget     = (&common.MessagePositionTargetLocalNed{}).GetID()
)

// stateTypes are dropped when they come from a component that does not own them
var stateTypes = map[uint32]bool{
	idHeartbeat:          true,
	idSysStatus:          true,
	idBatteryStatus:      true,
	idAttitude:           true,
	idAttitudeQuaternion: true,
	idVfrHud:             true,
	idLocalPositionNed:   true,
	idGlobalPositionInt:  true,
	idGpsRawInt:          true,
	idGpsStatus:          true,
	idGpsGlobalOrigin:    true,
	idNavController:      true,
	idRcChannels:         true,
	idPositionTarget:     true,
}

// ignoredTypes are valid traffic this core has no use for
var ignoredTypes = map[uint32]bool{
	(&common.MessageRawImu{}).GetID():          true,
	(&common.MessageScaledImu{}).GetID():       true,
	(&common.MessageRawPressure{}).GetID():     true,
	(&common.MessageScaledPressure{}).GetID():  true,
	(&common.MessageOpticalFlow{}).GetID():     true,
	(&common.MessageDebugVect{}).GetID():       true,
	(&common.MessageDebug{}).GetID():           true,
	(&common.MessageNamedValueFloat{}).GetID(): true,
	(&common.MessageNamedValueInt{}).GetID():   true,
	(&common.MessageManualControl{}).GetID():   true,
	(&common.MessageHighresImu{}).GetID():      true,
	(&common.MessageDistanceSensor{}).GetID():  true,
}

// Config tunes one dispatcher
type Config struct {
	HeartbeatTimeout     time.Duration    // Silence before the link is reported lost
	BatteryWarnPercent   int              // Remaining charge that latches the low battery alarm
	TickVoltage          float64          // Voltage whose downward crossing raises an alert (V)
	VoltageAlertCooldown time.Duration    // Minimum spacing between voltage alerts
	ReconcileSlack       uint64           // Backward timestamp jitter tolerated (µs)
	AttitudeStamped      bool             // Compatibility mode, see timesync.Reconciler
	MaxSpeed             float64          // Speeds at or above this are rejected (m/s)
	PreferredComponents  map[uint32]uint8 // Message id -> component that always wins ownership
}

// DefaultConfig returns the stock tuning
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout:     3500 * time.Millisecond,
		BatteryWarnPercent:   20,
		TickVoltage:          10.5,
		VoltageAlertCooldown: 20 * time.Second,
		ReconcileSlack:       timesync.DefaultSlack,
		MaxSpeed:             1000,
		PreferredComponents: map[uint32]uint8{
			idAttitude: uint8(common.MAV_COMP_ID_IMU_2),
		},
	}
}

// Deps are the collaborators of a dispatcher. Nil fields get defaults.
type Deps struct {
	Clock     timesync.Clock
	Publisher events.Publisher
	Announcer Announcer
	Firmware  *firmware.Registry
}

// Dispatcher applies inbound messages of one vehicle to its State.
// It is not safe for concurrent use; the fleet serializes calls per vehicle.
type Dispatcher struct {
	systemID  uint8
	config    Config
	clock     timesync.Clock
	time      *timesync.Reconciler
	publisher events.Publisher
	announcer Announcer
	firmware  *firmware.Registry
	logger    *logger.Logger

	state        State
	unknown      map[uint32]struct{}
	battery      batteryFilter
	image        imageTransfer
	lastImage    *Image
	attitudeSeen bool
}

// NewDispatcher creates a dispatcher bound to systemID
func NewDispatcher(systemID uint8, config Config, deps Deps, log *logger.Logger) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = timesync.SystemClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Discard
	}
	if deps.Firmware == nil {
		deps.Firmware = firmware.NewRegistry()
	}
	if log == nil {
		log = logger.NewNop()
	}
	l := log.Named("dispatcher").With(Int("system_id", int(systemID)))
	if deps.Announcer == nil {
		deps.Announcer = NewLogAnnouncer(l)
	}
	if config.PreferredComponents == nil {
		config.PreferredComponents = map[uint32]uint8{}
	}

	reconciler := timesync.NewReconciler(deps.Clock, config.ReconcileSlack)
	if config.AttitudeStamped {
		reconciler.SetAttitudeStamped(true)
		l.Warn("Attitude-stamped timestamps enabled; message times follow the last attitude update")
	}

	return &Dispatcher{
		systemID:  systemID,
		config:    config,
		clock:     deps.Clock,
		time:      reconciler,
		publisher: deps.Publisher,
		announcer: deps.Announcer,
		firmware:  deps.Firmware,
		logger:    l,
		state:     newState(systemID),
		unknown:   make(map[uint32]struct{}),
		battery:   newBatteryFilter(),
	}
}

// SystemID returns the vehicle this dispatcher serves
func (d *Dispatcher) SystemID() uint8 { return d.systemID }

// Snapshot returns a deep copy of the current state
func (d *Dispatcher) Snapshot() State {
	return d.state.clone()
}

// Image returns the last completed image, or nil
func (d *Dispatcher) Image() *Image {
	return d.lastImage
}

// UnknownMessageIDs lists message ids seen that have no handler
func (d *Dispatcher) UnknownMessageIDs() []uint32 {
	ids := make([]uint32, 0, len(d.unknown))
	for id := range d.unknown {
		ids = append(ids, id)
	}
	return ids
}

// Reconciler exposes the time base, mainly for diagnostics
func (d *Dispatcher) Reconciler() *timesync.Reconciler {
	return d.time
}

// Handle applies one inbound message. Messages for other systems are ignored.
func (d *Dispatcher) Handle(systemID, componentID uint8, msg message.Message) {
	if systemID != d.systemID || msg == nil {
		return
	}
	id := msg.GetID()

	// Until attitude arrives there is no time reference in attitude-stamped mode
	if d.config.AttitudeStamped && !d.attitudeSeen && id != idAttitude {
		return
	}

	now := d.clock.Now()
	d.state.Components[componentID] = now

	conflict := d.resolveOwner(id, componentID)
	d.publisher.Publish(events.ComponentMessage{
		SystemID:    d.systemID,
		ComponentID: componentID,
		MessageID:   id,
		Conflict:    conflict,
	})
	if conflict && stateTypes[id] {
		return
	}

	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		d.handleHeartbeat(m, now)
	case *common.MessageSysStatus:
		d.handleSysStatus(m, now)
	case *common.MessageBatteryStatus:
		d.handleBatteryStatus(m)
	case *common.MessageAttitude:
		d.handleAttitude(componentID, m)
	case *common.MessageAttitudeQuaternion:
		d.handleAttitudeQuaternion(componentID, m)
	case *common.MessageVfrHud:
		d.handleVfrHud(componentID, m)
	case *common.MessageLocalPositionNed:
		d.handleLocalPosition(m)
	case *common.MessageGlobalPositionInt:
		d.handleGlobalPosition(m)
	case *common.MessageGpsRawInt:
		d.handleGpsRaw(m)
	case *common.MessageGpsStatus:
		d.setSatellites(int(m.SatellitesVisible))
	case *common.MessageGpsGlobalOrigin:
		d.handleGlobalOrigin(m)
	case *common.MessageDataTransmissionHandshake:
		d.handleImageHandshake(m)
	case *common.MessageEncapsulatedData:
		d.handleImageData(m)
	case *common.MessageStatustext:
		d.handleStatusText(componentID, m, now)
	case *common.MessageCommandAck:
		d.handleCommandAck(m)
	case *common.MessageNavControllerOutput:
		d.handleNavController(m)
	case *common.MessageRcChannels:
		d.handleRCChannels(m)
	default:
		if ignoredTypes[id] {
			return
		}
		d.recordUnknown(id)
	}
}

// resolveOwner returns true when componentID conflicts with the established
// owner of the message type
func (d *Dispatcher) resolveOwner(id uint32, componentID uint8) bool {
	owner, ok := d.state.Ownership[id]
	if !ok {
		if len(d.state.Ownership) >= maxTrackedTypes {
			return false
		}
		d.state.Ownership[id] = Ownership{Component: componentID}
		return false
	}

	if preferred, ok := d.config.PreferredComponents[id]; ok && componentID == preferred && owner.Component != preferred {
		d.logger.Info("Preferred component took ownership",
			Uint32("message_id", id),
			Int("from", int(owner.Component)),
			Int("to", int(componentID)))
		owner.Component = componentID
		d.state.Ownership[id] = owner
		return false
	}

	if owner.Component == componentID {
		return false
	}

	if !owner.Multi {
		d.logger.Warn("Multiple components sending the same message type",
			Uint32("message_id", id),
			Int("owner", int(owner.Component)),
			Int("component", int(componentID)))
		owner.Multi = true
		d.state.Ownership[id] = owner
	}
	return true
}

func (d *Dispatcher) recordUnknown(id uint32) {
	if _, seen := d.unknown[id]; seen || len(d.unknown) >= maxUnknownTypes {
		return
	}
	d.unknown[id] = struct{}{}
	d.logger.Debug("Unhandled message type", Uint32("message_id", id))
}

func (d *Dispatcher) diagnostic(severity events.Severity, text string) {
	d.publisher.Publish(events.Diagnostic{SystemID: d.systemID, Severity: severity, Text: text})
}
