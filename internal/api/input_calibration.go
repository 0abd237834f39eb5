package api

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yegors/co-gcs/internal/calibration"
	"github.com/yegors/co-gcs/internal/config"
	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/internal/fleet"
	"github.com/yegors/co-gcs/pkg/logger"
)

var ErrSessionNotFound = errors.New("input calibration session not found")

// Operator buttons
const (
	ButtonNext   = "next"
	ButtonSkip   = "skip"
	ButtonCancel = "cancel"
)

// AxisSample is one raw reading of an input axis
type AxisSample struct {
	Axis  int `json:"axis"`
	Value int `json:"value"`
}

// InputCalibration runs browser-driven input calibration sessions. One
// session can be active at a time; it is addressed by a random id.
type InputCalibration struct {
	controller  *calibration.Controller
	fleet       *fleet.Manager
	writeParams bool
	logger      *logger.Logger

	mu     sync.Mutex
	target uint8 // vehicle receiving RC params on save, 0 for none
}

// NewInputCalibration creates the session runner for the configured profile
func NewInputCalibration(cfg config.CalibrationConfig, store calibration.Store, publisher events.Publisher, fleetManager *fleet.Manager, log *logger.Logger) (*InputCalibration, error) {
	thresholds, err := cfg.Thresholds()
	if err != nil {
		return nil, fmt.Errorf("invalid calibration thresholds: %w", err)
	}

	ic := &InputCalibration{
		fleet:       fleetManager,
		writeParams: cfg.WriteVehicleParams,
		logger:      log.Named("input-calibration"),
	}

	deps := calibration.Deps{Publisher: publisher, Store: store}
	if cfg.WriteVehicleParams && fleetManager != nil {
		deps.Params = ic
	}
	ic.controller = calibration.NewController(cfg.ProfileName(), thresholds, deps, log)
	return ic, nil
}

// Start opens a session. systemID selects the vehicle that receives the
// RC parameters on save, 0 keeps the result local.
func (ic *InputCalibration) Start(deviceID string, systemID uint8) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("device_id is required")
	}
	if systemID != 0 && ic.fleet != nil {
		if _, err := ic.fleet.Vehicle(systemID); err != nil {
			return "", err
		}
	}

	id := uuid.NewString()
	if err := ic.controller.Start(id, deviceID); err != nil {
		return "", err
	}

	ic.mu.Lock()
	ic.target = systemID
	ic.mu.Unlock()

	ic.logger.Info("Input calibration started",
		logger.String("session", id),
		logger.String("device", deviceID),
		logger.Int("system_id", int(systemID)))
	return id, nil
}

func (ic *InputCalibration) check(sessionID string) error {
	if sessionID == "" || ic.controller.SessionID() != sessionID {
		return ErrSessionNotFound
	}
	return nil
}

// Session returns the snapshot of an active session
func (ic *InputCalibration) Session(sessionID string) (calibration.Session, error) {
	if err := ic.check(sessionID); err != nil {
		return calibration.Session{}, err
	}
	return ic.controller.Session()
}

// Button applies an operator button
func (ic *InputCalibration) Button(sessionID, button string) error {
	if err := ic.check(sessionID); err != nil {
		return err
	}
	switch button {
	case ButtonNext:
		return ic.controller.Next()
	case ButtonSkip:
		return ic.controller.Skip()
	case ButtonCancel:
		return ic.controller.Cancel()
	default:
		return fmt.Errorf("unknown button: %q", button)
	}
}

// AxisCount reports how many axes the input device exposes
func (ic *InputCalibration) AxisCount(sessionID string, count int) error {
	if err := ic.check(sessionID); err != nil {
		return err
	}
	ic.controller.SetAxisCount(count)
	return nil
}

// AxisValues feeds raw samples in order
func (ic *InputCalibration) AxisValues(sessionID string, samples []AxisSample) error {
	if err := ic.check(sessionID); err != nil {
		return err
	}
	for _, s := range samples {
		ic.controller.AxisValue(s.Axis, s.Value)
	}
	return nil
}

// WriteCalibration sends a saved table to the selected vehicle as RC params
func (ic *InputCalibration) WriteCalibration(t *calibration.Table) error {
	ic.mu.Lock()
	target := ic.target
	ic.mu.Unlock()
	if target == 0 {
		return nil
	}

	enc, err := ic.fleet.Encoder(target)
	if err != nil {
		return err
	}
	return calibration.NewRCParamWriter(enc).WriteCalibration(t)
}
