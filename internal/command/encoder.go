package command

import (
	"fmt"
	"math"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/yegors/co-gcs/pkg/logger"
)

// Logger field aliases
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// Transport delivers an encoded message to the vehicle
type Transport interface {
	Send(msg message.Message) error
}

// TransportFunc adapts a function to Transport
type TransportFunc func(msg message.Message) error

func (f TransportFunc) Send(msg message.Message) error { return f(msg) }

// CalibrationKind selects what PREFLIGHT_CALIBRATION asks the autopilot to calibrate
type CalibrationKind int

const (
	CalibrationGyro CalibrationKind = iota
	CalibrationMag
	CalibrationAirspeed
	CalibrationRadio
	CalibrationCopyTrims
	CalibrationAccel
	CalibrationLevel
	CalibrationESC
	CalibrationUAVCANESC
)

var calibrationNames = map[CalibrationKind]string{
	CalibrationGyro:      "gyro",
	CalibrationMag:       "mag",
	CalibrationAirspeed:  "airspeed",
	CalibrationRadio:     "radio",
	CalibrationCopyTrims: "copy-trims",
	CalibrationAccel:     "accel",
	CalibrationLevel:     "level",
	CalibrationESC:       "esc",
	CalibrationUAVCANESC: "uavcan-esc",
}

func (k CalibrationKind) String() string {
	if name, ok := calibrationNames[k]; ok {
		return name
	}
	return fmt.Sprintf("calibration(%d)", int(k))
}

// ParseCalibrationKind maps a name such as "accel" or "copy-trims" to its kind
func ParseCalibrationKind(name string) (CalibrationKind, error) {
	for kind, n := range calibrationNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown calibration kind %q", name)
}

// Encoder packs outbound commands for one vehicle. It does not retry; acks
// come back through the dispatcher as CommandAck events.
type Encoder struct {
	transport       Transport
	targetSystem    uint8
	targetComponent uint8
	limiter         *ManualControlLimiter
	logger          *logger.Logger
}

// NewEncoder creates an encoder addressed to targetSystem. A nil transport
// makes every call a no-op.
func NewEncoder(transport Transport, targetSystem, targetComponent uint8, log *logger.Logger) *Encoder {
	return &Encoder{
		transport:       transport,
		targetSystem:    targetSystem,
		targetComponent: targetComponent,
		limiter:         NewManualControlLimiter(),
		logger:          log.Named("command"),
	}
}

func (e *Encoder) TargetSystem() uint8 { return e.targetSystem }

func (e *Encoder) send(msg message.Message) error {
	if e.transport == nil {
		return nil
	}
	if err := e.transport.Send(msg); err != nil {
		return fmt.Errorf("failed to send message %d to system %d: %w", msg.GetID(), e.targetSystem, err)
	}
	return nil
}

func (e *Encoder) commandLong(command common.MAV_CMD, component, confirmation uint8, params [7]float32) *common.MessageCommandLong {
	return &common.MessageCommandLong{
		TargetSystem:    e.targetSystem,
		TargetComponent: component,
		Command:         command,
		Confirmation:    confirmation,
		Param1:          params[0],
		Param2:          params[1],
		Param3:          params[2],
		Param4:          params[3],
		Param5:          params[4],
		Param6:          params[5],
		Param7:          params[6],
	}
}

// StartCalibration asks the autopilot to run one onboard calibration
func (e *Encoder) StartCalibration(kind CalibrationKind) error {
	var p [7]float32
	switch kind {
	case CalibrationGyro:
		p[0] = 1
	case CalibrationMag:
		p[1] = 1
	case CalibrationRadio:
		p[3] = 1
	case CalibrationCopyTrims:
		p[3] = 2
	case CalibrationAccel:
		p[4] = 1
	case CalibrationLevel:
		p[4] = 2
	case CalibrationAirspeed:
		p[5] = 1
	case CalibrationESC:
		p[6] = 1
	case CalibrationUAVCANESC:
		p[6] = 2
	default:
		return fmt.Errorf("unsupported calibration kind %d", int(kind))
	}

	e.logger.Info("Starting onboard calibration", String("kind", kind.String()), Int("system", int(e.targetSystem)))
	return e.send(e.commandLong(common.MAV_CMD_PREFLIGHT_CALIBRATION, 0, 0, p))
}

// StopCalibration cancels any running onboard calibration
func (e *Encoder) StopCalibration() error {
	return e.send(e.commandLong(common.MAV_CMD_PREFLIGHT_CALIBRATION, 0, 0, [7]float32{}))
}

// StartBusConfig puts UAVCAN actuators into configuration mode
func (e *Encoder) StartBusConfig() error {
	return e.send(e.commandLong(common.MAV_CMD_PREFLIGHT_UAVCAN, 0, 0, [7]float32{1}))
}

func (e *Encoder) StopBusConfig() error {
	return e.send(e.commandLong(common.MAV_CMD_PREFLIGHT_UAVCAN, 0, 0, [7]float32{}))
}

// SetHomePosition moves home and the global origin to lat/lon (degrees) and alt (meters)
func (e *Encoder) SetHomePosition(lat, lon, alt float64) error {
	home := e.commandLong(common.MAV_CMD_DO_SET_HOME, 0, 1,
		[7]float32{0, 0, 0, 0, float32(lat), float32(lon), float32(alt)})
	if err := e.send(home); err != nil {
		return err
	}

	return e.send(&common.MessageSetGpsGlobalOrigin{
		TargetSystem: e.targetSystem,
		Latitude:     int32(math.Round(lat * 1e7)),
		Longitude:    int32(math.Round(lon * 1e7)),
		Altitude:     int32(math.Round(alt * 1000)),
	})
}

// ExecuteCommand sends an arbitrary COMMAND_LONG to component
func (e *Encoder) ExecuteCommand(command common.MAV_CMD, confirmation uint8, params [7]float32, component uint8) error {
	return e.send(e.commandLong(command, component, confirmation, params))
}

// PairRX starts receiver binding. rxType 0 is Spektrum; subType selects DSM2/DSMX.
func (e *Encoder) PairRX(rxType, subType int) error {
	return e.send(e.commandLong(common.MAV_CMD_START_RX_PAIR, uint8(common.MAV_COMP_ID_ALL), 0,
		[7]float32{float32(rxType), float32(subType)}))
}

// SetParameter writes a REAL32 parameter on the target component
func (e *Encoder) SetParameter(name string, value float32) error {
	if len(name) > 16 {
		return fmt.Errorf("parameter name %q exceeds 16 characters", name)
	}
	return e.send(&common.MessageParamSet{
		TargetSystem:    e.targetSystem,
		TargetComponent: e.targetComponent,
		ParamId:         name,
		ParamValue:      value,
		ParamType:       common.MAV_PARAM_TYPE_REAL32,
	})
}

// MapParamToRC binds a parameter to an RC tuning channel (0..2)
func (e *Encoder) MapParamToRC(name string, scale, value0 float32, channelIndex uint8, minValue, maxValue float32) error {
	if len(name) > 16 {
		return fmt.Errorf("parameter name %q exceeds 16 characters", name)
	}
	return e.send(&common.MessageParamMapRc{
		TargetSystem:            e.targetSystem,
		TargetComponent:         0,
		ParamId:                 name,
		ParamIndex:              -1,
		ParameterRcChannelIndex: channelIndex,
		ParamValue0:             value0,
		Scale:                   scale,
		ParamValueMin:           minValue,
		ParamValueMax:           maxValue,
	})
}

// UnmapAllRC clears the three RC tuning channel bindings
func (e *Encoder) UnmapAllRC() error {
	for i := uint8(0); i < 3; i++ {
		err := e.send(&common.MessageParamMapRc{
			TargetSystem:            e.targetSystem,
			ParamIndex:              -2,
			ParameterRcChannelIndex: i,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RequestImage asks the vehicle camera for one JPEG still
func (e *Encoder) RequestImage() error {
	return e.send(&common.MessageDataTransmissionHandshake{
		Type:       common.MAVLINK_DATA_STREAM_IMG_JPEG,
		JpgQuality: 50,
	})
}

// ManualControl sends a joystick setpoint in RC mode. Axes are in [-1, 1],
// thrust in [0, 1]. Calls are rate limited by the encoder's limiter, so the
// caller can invoke it at its input sampling rate. Reports whether a message
// went out.
func (e *Encoder) ManualControl(roll, pitch, yaw, thrust float64, buttons uint16) (bool, error) {
	sp := Setpoint{Roll: roll, Pitch: pitch, Yaw: yaw, Thrust: thrust, Buttons: buttons}
	if !e.limiter.Allow(sp) {
		return false, nil
	}
	return true, e.send(ManualControlMessage(e.targetSystem, sp))
}

// ManualControlMessage packs a setpoint. Pitch is negated because forward
// stick is negative pitch while MANUAL_CONTROL x is positive forward.
func ManualControlMessage(target uint8, sp Setpoint) *common.MessageManualControl {
	return &common.MessageManualControl{
		Target:  target,
		X:       scaleAxis(-sp.Pitch),
		Y:       scaleAxis(sp.Roll),
		Z:       scaleAxis(sp.Thrust),
		R:       scaleAxis(sp.Yaw),
		Buttons: sp.Buttons,
	}
}

// scaleAxis maps [-1, 1] to [-1000, 1000]; NaN marks the axis invalid
func scaleAxis(v float64) int16 {
	if math.IsNaN(v) {
		return math.MaxInt16
	}
	return int16(math.Round(math.Max(-1, math.Min(1, v)) * 1000))
}
