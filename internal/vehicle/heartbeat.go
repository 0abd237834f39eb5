package vehicle

import (
	"fmt"
	"strings"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/internal/firmware"
)

func (d *Dispatcher) handleHeartbeat(m *common.MessageHeartbeat, now time.Time) {
	s := &d.state
	previous := s.LastHeartbeat
	s.LastHeartbeat = now

	if s.ConnectionLost {
		s.ConnectionLost = false
		d.publisher.Publish(events.HeartbeatTimeout{SystemID: d.systemID, Lost: false, Elapsed: now.Sub(previous)})
		d.announcer.Say(fmt.Sprintf("Link regained to system %d", d.systemID), events.SeverityNotice)
		d.logger.Info("Heartbeat regained")
	}

	vehicleType := uint8(m.Type)
	autopilot := uint8(m.Autopilot)
	if !s.TypeKnown || s.SystemType != vehicleType || s.Autopilot != autopilot {
		s.TypeKnown = true
		s.SystemType = vehicleType
		s.Autopilot = autopilot
		s.FirmwareName = d.firmware.Lookup(autopilot, vehicleType).Name()
		d.publisher.Publish(events.SystemTypeChanged{SystemID: d.systemID, Type: vehicleType, Autopilot: autopilot})
	}

	plugin := d.firmware.Lookup(autopilot, vehicleType)
	baseMode := uint8(m.BaseMode)
	modeName := plugin.FlightModeName(baseMode, m.CustomMode)

	status := Status(m.SystemStatus)
	statusChanged := false
	if status != s.Status && status != StatusUninit {
		statusChanged = true
		s.Status = status
		s.StatusName = status.String()
		d.publisher.Publish(events.StatusChanged{
			SystemID:    d.systemID,
			Status:      status.String(),
			Description: status.Description(),
		})
	}

	modeChanged := false
	if baseMode != s.BaseMode || m.CustomMode != s.CustomMode || s.ModeName == "" {
		modeChanged = true
		s.BaseMode = baseMode
		s.CustomMode = m.CustomMode
		s.ModeName = modeName
		s.Armed = firmware.Armed(baseMode)
		d.publisher.Publish(events.ModeChanged{
			SystemID:   d.systemID,
			BaseMode:   baseMode,
			CustomMode: m.CustomMode,
			Name:       modeName,
		})
	}

	switch {
	case statusChanged && (status == StatusCritical || status == StatusEmergency):
		d.announcer.Say(fmt.Sprintf("Emergency for system %d", d.systemID), events.SeverityEmergency)
	case statusChanged || modeChanged:
		parts := []string{fmt.Sprintf("System %d", d.systemID)}
		if modeChanged {
			parts = append(parts, "changed mode to "+modeName)
		}
		if statusChanged {
			parts = append(parts, "is "+strings.ToLower(status.String()))
		}
		d.announcer.Say(strings.Join(parts, " "), events.SeverityInfo)
	}
}

// CheckLink raises the lost notification once when no heartbeat arrived
// within the timeout. Recovery is reported by the next heartbeat.
func (d *Dispatcher) CheckLink(now time.Time) {
	s := &d.state
	if s.LastHeartbeat.IsZero() || s.ConnectionLost {
		return
	}

	elapsed := now.Sub(s.LastHeartbeat)
	if elapsed <= d.config.HeartbeatTimeout {
		return
	}

	s.ConnectionLost = true
	d.publisher.Publish(events.HeartbeatTimeout{SystemID: d.systemID, Lost: true, Elapsed: elapsed})
	d.announcer.Say(fmt.Sprintf("Link lost to system %d", d.systemID), events.SeverityCritical)
	d.logger.Warn("Heartbeat lost", Duration("elapsed", elapsed))
}
