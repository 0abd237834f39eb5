package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/co-gcs/internal/calibration"
	"github.com/yegors/co-gcs/internal/command"
	"github.com/yegors/co-gcs/internal/config"
	"github.com/yegors/co-gcs/internal/fleet"
	"github.com/yegors/co-gcs/internal/link"
	"github.com/yegors/co-gcs/internal/storage/sqlite"
	"github.com/yegors/co-gcs/internal/websocket"
	"github.com/yegors/co-gcs/pkg/logger"
)

// EventLog is the persisted vehicle event history
type EventLog interface {
	RecentEvents(systemID uint8, limit int) ([]sqlite.EventRecord, error)
}

// LinkStats reports transport counters, nil when no link is configured
type LinkStats func() link.Stats

// Handler contains the API handlers
type Handler struct {
	fleet     *fleet.Manager
	inputs    *InputCalibration
	eventLog  EventLog
	linkStats LinkStats
	config    *config.Config
	logger    *logger.Logger
	wsServer  *websocket.Server
	started   time.Time
}

// NewHandler creates a new API handler
func NewHandler(fleetManager *fleet.Manager, inputs *InputCalibration, eventLog EventLog, linkStats LinkStats, config *config.Config, logger *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		fleet:     fleetManager,
		inputs:    inputs,
		eventLog:  eventLog,
		linkStats: linkStats,
		config:    config,
		logger:    logger.Named("api-handler"),
		wsServer:  wsServer,
		started:   time.Now(),
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes {"error": msg}
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func systemIDParam(r *http.Request) (uint8, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 8)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid vehicle id: %q", raw)
	}
	return uint8(id), nil
}

// encoderFor resolves the vehicle in the URL, writing the error response itself
func (h *Handler) encoderFor(w http.ResponseWriter, r *http.Request) (*command.Encoder, bool) {
	id, err := systemIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	enc, err := h.fleet.Encoder(id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Vehicle not found")
		return nil, false
	}
	return enc, true
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":        "ok",
		"uptime":        time.Since(h.started).Round(time.Second).String(),
		"vehicle_count": h.fleet.Count(),
	}
	if h.linkStats != nil {
		response["link"] = h.linkStats()
	}
	if h.wsServer != nil {
		response["websocket_clients"] = h.wsServer.ClientCount()
	}
	WriteJSON(w, http.StatusOK, response)
}

// GetConfig returns the public configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	publicConfig := map[string]interface{}{
		"link": map[string]interface{}{
			"system_id":    h.config.Link.SystemID,
			"component_id": h.config.Link.ComponentID,
			"endpoints":    len(h.config.Link.Endpoints),
		},
		"vehicle": map[string]interface{}{
			"heartbeat_timeout_ms": h.config.Vehicle.HeartbeatTimeoutMs,
			"battery_warn_percent": h.config.Vehicle.BatteryWarnPercent,
			"attitude_stamped":     h.config.Vehicle.AttitudeStamped,
		},
		"calibration": map[string]interface{}{
			"profile":              h.config.Calibration.ProfileName(),
			"write_vehicle_params": h.config.Calibration.WriteVehicleParams,
		},
		"simulation": map[string]interface{}{
			"enabled": h.config.Simulation.Enabled,
		},
	}
	WriteJSON(w, http.StatusOK, publicConfig)
}

// GetVehicles returns every connected vehicle
func (h *Handler) GetVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles := h.fleet.Vehicles()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(vehicles),
		"vehicles": vehicles,
	})
}

// GetVehicle returns one vehicle by system id
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := systemIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := h.fleet.Vehicle(id)
	if errors.Is(err, fleet.ErrVehicleNotFound) {
		WriteError(w, http.StatusNotFound, "Vehicle not found")
		return
	}
	unknown, _ := h.fleet.UnknownMessageIDs(id)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"vehicle":             state,
		"rotary_wing":         state.IsRotaryWing(),
		"fixed_wing":          state.IsFixedWing(),
		"unknown_message_ids": unknown,
	})
}

// GetVehicleImage returns the last completed image transfer
func (h *Handler) GetVehicleImage(w http.ResponseWriter, r *http.Request) {
	id, err := systemIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, err := h.fleet.Image(id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Vehicle not found")
		return
	}
	if img == nil {
		WriteError(w, http.StatusNotFound, "No image received")
		return
	}

	w.Header().Set("Content-Type", img.ContentType())
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Encode())
}

// GetVehicleEvents returns the persisted event log of a vehicle
func (h *Handler) GetVehicleEvents(w http.ResponseWriter, r *http.Request) {
	id, err := systemIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.eventLog == nil {
		WriteError(w, http.StatusServiceUnavailable, "Event log not available")
		return
	}

	limit := h.config.Storage.MaxEventsInAPI
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, limit)
	}

	records, err := h.eventLog.RecentEvents(id, limit)
	if err != nil {
		h.logger.Error("Failed to read event log", logger.Int("system_id", int(id)), logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "Failed to read event log")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}

// StartVehicleCalibration starts an onboard sensor calibration
func (h *Handler) StartVehicleCalibration(w http.ResponseWriter, r *http.Request) {
	enc, ok := h.encoderFor(w, r)
	if !ok {
		return
	}
	var body struct {
		Kind string `json:"kind"`
	}
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := command.ParseCalibrationKind(body.Kind)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := enc.StartCalibration(kind); err != nil {
		h.logger.Error("Failed to start calibration", logger.String("kind", body.Kind), logger.Error(err))
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{"kind": kind.String(), "sent": true})
}

// StopVehicleCalibration aborts any onboard calibration
func (h *Handler) StopVehicleCalibration(w http.ResponseWriter, r *http.Request) {
	enc, ok := h.encoderFor(w, r)
	if !ok {
		return
	}
	if err := enc.StopCalibration(); err != nil {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{"sent": true})
}

// SetHome moves the home position and the global origin
func (h *Handler) SetHome(w http.ResponseWriter, r *http.Request) {
	enc, ok := h.encoderFor(w, r)
	if !ok {
		return
	}
	var body struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lon"`
		Altitude  float64 `json:"altitude"`
	}
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Latitude < -90 || body.Latitude > 90 {
		WriteError(w, http.StatusBadRequest, "Invalid latitude: must be between -90 and 90")
		return
	}
	if body.Longitude < -180 || body.Longitude > 180 {
		WriteError(w, http.StatusBadRequest, "Invalid longitude: must be between -180 and 180")
		return
	}

	if err := enc.SetHomePosition(body.Latitude, body.Longitude, body.Altitude); err != nil {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{"sent": true})
}

// RequestImage asks the vehicle for a camera frame
func (h *Handler) RequestImage(w http.ResponseWriter, r *http.Request) {
	enc, ok := h.encoderFor(w, r)
	if !ok {
		return
	}
	if err := enc.RequestImage(); err != nil {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{"sent": true})
}

// StartInputCalibration opens an input calibration session
func (h *Handler) StartInputCalibration(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceID string `json:"device_id"`
		SystemID uint8  `json:"system_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.inputs.Start(body.DeviceID, body.SystemID)
	switch {
	case errors.Is(err, calibration.ErrSessionActive):
		WriteError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, fleet.ErrVehicleNotFound):
		WriteError(w, http.StatusNotFound, "Vehicle not found")
		return
	case err != nil:
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.inputs.Session(id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, session)
}

// GetInputCalibration returns the session snapshot
func (h *Handler) GetInputCalibration(w http.ResponseWriter, r *http.Request) {
	session, err := h.inputs.Session(chi.URLParam(r, "sid"))
	if err != nil {
		WriteError(w, http.StatusNotFound, ErrSessionNotFound.Error())
		return
	}
	WriteJSON(w, http.StatusOK, session)
}

// InputCalibrationButton applies next, skip or cancel
func (h *Handler) InputCalibrationButton(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	err := h.inputs.Button(sid, chi.URLParam(r, "action"))
	switch {
	case errors.Is(err, ErrSessionNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	// cancel and a final save end the session
	session, err := h.inputs.Session(sid)
	if err != nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"id": sid, "finished": true})
		return
	}
	WriteJSON(w, http.StatusOK, session)
}

// InputCalibrationAxes feeds the axis count and raw samples
func (h *Handler) InputCalibrationAxes(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	var body struct {
		Count   *int         `json:"count"`
		Samples []AxisSample `json:"samples"`
	}
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if body.Count != nil {
		if err := h.inputs.AxisCount(sid, *body.Count); err != nil {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
	}
	if err := h.inputs.AxisValues(sid, body.Samples); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	session, err := h.inputs.Session(sid)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, session)
}
