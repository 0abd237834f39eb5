package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yegors/co-gcs/internal/calibration"
	"github.com/yegors/co-gcs/internal/fleet"
	"github.com/yegors/co-gcs/internal/vehicle"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server      ServerConfig      `toml:"server"`      // HTTP server settings
	Link        LinkConfig        `toml:"link"`        // MAVLink endpoints and ground station identity
	Vehicle     VehicleConfig     `toml:"vehicle"`     // Per-vehicle telemetry tuning
	Calibration CalibrationConfig `toml:"calibration"` // Manual input calibration wizard
	Logging     LoggingConfig     `toml:"logging"`     // Application logging settings
	Storage     StorageConfig     `toml:"storage"`     // Data persistence settings
	Simulation  SimulationConfig  `toml:"simulation"`  // Demo vehicle
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // Origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir     string   `toml:"static_files_dir"`      // Directory to serve the UI from, empty disables static serving
}

// Endpoint types understood by the link layer
const (
	EndpointUDPServer    = "udp-server"
	EndpointUDPClient    = "udp-client"
	EndpointUDPBroadcast = "udp-broadcast"
	EndpointTCPServer    = "tcp-server"
	EndpointTCPClient    = "tcp-client"
	EndpointSerial       = "serial"
)

// LinkConfig contains the MAVLink transport settings
type LinkConfig struct {
	SystemID    int              `toml:"system_id"`    // System id of this ground station (default 255)
	ComponentID int              `toml:"component_id"` // Component id of this ground station (default 190, MAV_COMP_ID_MISSIONPLANNER)
	OutVersion  string           `toml:"out_version"`  // MAVLink version of outgoing frames: "v1" or "v2"
	Endpoints   []EndpointConfig `toml:"endpoints"`    // Where to exchange frames with vehicles
}

// EndpointConfig describes one MAVLink endpoint
type EndpointConfig struct {
	Type    string `toml:"type"`    // One of the Endpoint* types
	Address string `toml:"address"` // host:port, or the device path for serial
	Baud    int    `toml:"baud"`    // Serial baud rate (default 57600)
}

// VehicleConfig contains the telemetry tuning applied to every vehicle
type VehicleConfig struct {
	HeartbeatTimeoutMs       int            `toml:"heartbeat_timeout_ms"`           // Silence before a link is reported lost
	CheckIntervalMs          int            `toml:"check_interval_ms"`              // How often heartbeat timeouts are evaluated
	BatteryWarnPercent       int            `toml:"battery_warn_percent"`           // Remaining charge that latches the low battery alarm
	TickVoltage              float64        `toml:"tick_voltage"`                   // Voltage whose downward crossing raises an alert
	VoltageAlertCooldownSecs int            `toml:"voltage_alert_cooldown_seconds"` // Minimum spacing between voltage alerts
	ReconcileSlackUs         int            `toml:"reconcile_slack_us"`             // Backward timestamp jitter tolerated before the clock offset is recomputed
	AttitudeStamped          bool           `toml:"attitude_stamped"`               // Stamp telemetry with the last attitude time (compatibility mode)
	MaxSpeed                 float64        `toml:"max_speed"`                      // Speeds at or above this (m/s) are rejected as bogus
	PreferredComponents      map[string]int `toml:"preferred_components"`           // Message id -> component id that always wins ownership, 0 removes a default
}

// CalibrationConfig contains the input calibration settings. Unset
// overrides keep the value of the selected profile.
type CalibrationConfig struct {
	Profile            string `toml:"profile"`              // "joystick" or "rc"
	WriteVehicleParams bool   `toml:"write_vehicle_params"` // Write RC params to the vehicle after a save
	MinAxisCount       *int   `toml:"min_axis_count"`
	Center             *int   `toml:"center"`
	ValidMin           *int   `toml:"valid_min"`
	ValidMax           *int   `toml:"valid_max"`
	RoughCenterDelta   *int   `toml:"rough_center_delta"`
	MoveDelta          *int   `toml:"move_delta"`
	SettleDelta        *int   `toml:"settle_delta"`
	MinDelta           *int   `toml:"min_delta"`
	SettleMs           *int   `toml:"settle_ms"`
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Type           string `toml:"type"`              // Storage backend type (currently only "sqlite" is supported)
	SQLitePath     string `toml:"sqlite_path"`       // Path of the SQLite database file
	MaxEventsInAPI int    `toml:"max_events_in_api"` // Maximum number of events returned by /vehicles/{id}/events
}

// SimulationConfig contains the demo vehicle settings
type SimulationConfig struct {
	Enabled    bool    `toml:"enabled"`     // Feed a simulated vehicle into the fleet
	SystemID   int     `toml:"system_id"`   // System id of the simulated vehicle
	Autopilot  string  `toml:"autopilot"`   // "px4" or "ardupilot"
	Latitude   float64 `toml:"latitude"`    // Start position in decimal degrees
	Longitude  float64 `toml:"longitude"`   // Start position in decimal degrees
	AltitudeM  float64 `toml:"altitude_m"`  // Start altitude AMSL in meters
	IntervalMs int     `toml:"interval_ms"` // Telemetry period
}

// Load loads the configuration from the specified file
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	return &config, nil
}

// LoadWithFallback tries to load configuration from multiple locations
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate fills in defaults and rejects invalid values
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.ValidateLink(); err != nil {
		return err
	}
	if err := c.ValidateVehicle(); err != nil {
		return err
	}
	if _, err := c.Calibration.Thresholds(); err != nil {
		return fmt.Errorf("invalid calibration config: %w", err)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (only 'sqlite' is supported)", c.Storage.Type)
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/co-gcs.db"
	}
	if c.Storage.MaxEventsInAPI <= 0 {
		c.Storage.MaxEventsInAPI = 100
	}

	if err := c.ValidateSimulation(); err != nil {
		return err
	}

	if len(c.Link.Endpoints) == 0 && !c.Simulation.Enabled {
		return fmt.Errorf("no link endpoints configured and simulation is disabled")
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must be >= 0")
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}

	if c.Server.StaticFilesDir != "" {
		if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
			return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
		}
	}
	return nil
}

// ValidateLink validates the MAVLink endpoint configuration
func (c *Config) ValidateLink() error {
	if c.Link.SystemID == 0 {
		c.Link.SystemID = 255
	}
	if c.Link.SystemID < 1 || c.Link.SystemID > 255 {
		return fmt.Errorf("invalid link system_id: %d", c.Link.SystemID)
	}
	if c.Link.ComponentID == 0 {
		c.Link.ComponentID = 190
	}
	if c.Link.ComponentID < 1 || c.Link.ComponentID > 255 {
		return fmt.Errorf("invalid link component_id: %d", c.Link.ComponentID)
	}

	if c.Link.OutVersion == "" {
		c.Link.OutVersion = "v2"
	}
	if c.Link.OutVersion != "v1" && c.Link.OutVersion != "v2" {
		return fmt.Errorf("invalid link out_version: %s (must be 'v1' or 'v2')", c.Link.OutVersion)
	}

	for i := range c.Link.Endpoints {
		ep := &c.Link.Endpoints[i]
		switch ep.Type {
		case EndpointUDPServer, EndpointUDPClient, EndpointUDPBroadcast, EndpointTCPServer, EndpointTCPClient:
		case EndpointSerial:
			if ep.Baud == 0 {
				ep.Baud = 57600
			}
			if ep.Baud < 0 {
				return fmt.Errorf("endpoint %d: invalid baud rate: %d", i, ep.Baud)
			}
		default:
			return fmt.Errorf("endpoint %d: invalid type: %q", i, ep.Type)
		}
		if ep.Address == "" {
			return fmt.Errorf("endpoint %d (%s): address is required", i, ep.Type)
		}
	}
	return nil
}

// ValidateVehicle validates the telemetry tuning
func (c *Config) ValidateVehicle() error {
	v := &c.Vehicle
	defaults := vehicle.DefaultConfig()

	if v.HeartbeatTimeoutMs == 0 {
		v.HeartbeatTimeoutMs = int(defaults.HeartbeatTimeout / time.Millisecond)
	}
	if v.CheckIntervalMs == 0 {
		v.CheckIntervalMs = int(fleet.DefaultConfig().CheckInterval / time.Millisecond)
	}
	if v.HeartbeatTimeoutMs < 0 || v.CheckIntervalMs < 0 {
		return fmt.Errorf("vehicle heartbeat_timeout_ms and check_interval_ms must be positive")
	}
	if v.CheckIntervalMs > v.HeartbeatTimeoutMs {
		return fmt.Errorf("vehicle check_interval_ms (%d) must not exceed heartbeat_timeout_ms (%d)",
			v.CheckIntervalMs, v.HeartbeatTimeoutMs)
	}

	if v.BatteryWarnPercent == 0 {
		v.BatteryWarnPercent = defaults.BatteryWarnPercent
	}
	if v.BatteryWarnPercent < 0 || v.BatteryWarnPercent > 100 {
		return fmt.Errorf("invalid battery_warn_percent: %d", v.BatteryWarnPercent)
	}
	if v.TickVoltage == 0 {
		v.TickVoltage = defaults.TickVoltage
	}
	if v.TickVoltage < 0 {
		return fmt.Errorf("invalid tick_voltage: %f", v.TickVoltage)
	}
	if v.VoltageAlertCooldownSecs == 0 {
		v.VoltageAlertCooldownSecs = int(defaults.VoltageAlertCooldown / time.Second)
	}
	if v.ReconcileSlackUs == 0 {
		v.ReconcileSlackUs = int(defaults.ReconcileSlack)
	}
	if v.ReconcileSlackUs < 0 {
		return fmt.Errorf("invalid reconcile_slack_us: %d", v.ReconcileSlackUs)
	}
	if v.MaxSpeed == 0 {
		v.MaxSpeed = defaults.MaxSpeed
	}
	if v.MaxSpeed < 0 {
		return fmt.Errorf("invalid max_speed: %f", v.MaxSpeed)
	}

	if _, err := v.preferredComponents(); err != nil {
		return err
	}
	return nil
}

// preferredComponents merges the overrides into the stock preferences
func (v VehicleConfig) preferredComponents() (map[uint32]uint8, error) {
	out := vehicle.DefaultConfig().PreferredComponents

	keys := make([]string, 0, len(v.PreferredComponents))
	for k := range v.PreferredComponents {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		id, err := strconv.ParseUint(strings.TrimSpace(k), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid preferred_components message id %q: %w", k, err)
		}
		comp := v.PreferredComponents[k]
		if comp < 0 || comp > 255 {
			return nil, fmt.Errorf("invalid preferred component %d for message %d", comp, id)
		}
		if comp == 0 {
			delete(out, uint32(id))
			continue
		}
		out[uint32(id)] = uint8(comp)
	}
	return out, nil
}

// ValidateSimulation validates the demo vehicle settings
func (c *Config) ValidateSimulation() error {
	s := &c.Simulation
	if !s.Enabled {
		return nil
	}

	if s.SystemID == 0 {
		s.SystemID = 1
	}
	if s.SystemID < 1 || s.SystemID > 254 || s.SystemID == c.Link.SystemID {
		return fmt.Errorf("invalid simulation system_id: %d", s.SystemID)
	}
	if s.Autopilot == "" {
		s.Autopilot = "px4"
	}
	if s.Autopilot != "px4" && s.Autopilot != "ardupilot" {
		return fmt.Errorf("invalid simulation autopilot: %s (must be 'px4' or 'ardupilot')", s.Autopilot)
	}
	if s.Latitude == 0 && s.Longitude == 0 {
		s.Latitude = 47.397742
		s.Longitude = 8.545594
		if s.AltitudeM == 0 {
			s.AltitudeM = 488
		}
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("invalid simulation latitude: %f", s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("invalid simulation longitude: %f", s.Longitude)
	}
	if s.IntervalMs == 0 {
		s.IntervalMs = 100
	}
	if s.IntervalMs < 0 {
		return fmt.Errorf("invalid simulation interval_ms: %d", s.IntervalMs)
	}
	return nil
}

// VehicleSettings converts the [vehicle] section for the dispatcher
func (c *Config) VehicleSettings() vehicle.Config {
	v := c.Vehicle
	preferred, err := v.preferredComponents()
	if err != nil {
		preferred = vehicle.DefaultConfig().PreferredComponents
	}

	return vehicle.Config{
		HeartbeatTimeout:     time.Duration(v.HeartbeatTimeoutMs) * time.Millisecond,
		BatteryWarnPercent:   v.BatteryWarnPercent,
		TickVoltage:          v.TickVoltage,
		VoltageAlertCooldown: time.Duration(v.VoltageAlertCooldownSecs) * time.Second,
		ReconcileSlack:       uint64(v.ReconcileSlackUs),
		AttitudeStamped:      v.AttitudeStamped,
		MaxSpeed:             v.MaxSpeed,
		PreferredComponents:  preferred,
	}
}

// FleetSettings converts the [vehicle] and [link] sections for the fleet manager
func (c *Config) FleetSettings() fleet.Config {
	out := fleet.DefaultConfig()
	out.Vehicle = c.VehicleSettings()
	out.CheckInterval = time.Duration(c.Vehicle.CheckIntervalMs) * time.Millisecond
	out.OwnSystemID = uint8(c.Link.SystemID)
	return out
}

// Thresholds returns the selected profile with the overrides applied
func (c CalibrationConfig) Thresholds() (calibration.Thresholds, error) {
	profile := c.Profile
	if profile == "" {
		profile = calibration.ProfileJoystick
	}
	th, err := calibration.ProfileThresholds(profile)
	if err != nil {
		return calibration.Thresholds{}, err
	}

	override := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	override(&th.MinAxisCount, c.MinAxisCount)
	override(&th.Center, c.Center)
	override(&th.ValidMin, c.ValidMin)
	override(&th.ValidMax, c.ValidMax)
	override(&th.RoughCenterDelta, c.RoughCenterDelta)
	override(&th.MoveDelta, c.MoveDelta)
	override(&th.SettleDelta, c.SettleDelta)
	override(&th.MinDelta, c.MinDelta)
	if c.SettleMs != nil {
		th.Settle = time.Duration(*c.SettleMs) * time.Millisecond
	}

	if err := th.Validate(); err != nil {
		return calibration.Thresholds{}, err
	}
	return th, nil
}

// ProfileName returns the calibration profile with its default applied
func (c CalibrationConfig) ProfileName() string {
	if c.Profile == "" {
		return calibration.ProfileJoystick
	}
	return c.Profile
}
