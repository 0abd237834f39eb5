package vehicle

import (
	"fmt"
	"math"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/internal/physics"
)

// acceptSpeed validates a speed and reports rejects as a diagnostic
func (d *Dispatcher) acceptSpeed(v float64) bool {
	if physics.ValidSpeed(v, d.config.MaxSpeed) {
		return true
	}
	d.diagnostic(events.SeverityNotice, fmt.Sprintf("GCS ERROR: RECEIVED INVALID SPEED OF %v m/s", v))
	return false
}

func (d *Dispatcher) handleLocalPosition(m *common.MessageLocalPositionNed) {
	s := &d.state
	t := d.time.ReconcileMillis(m.TimeBootMs)

	if !finite(m.X, m.Y, m.Z) {
		d.diagnostic(events.SeverityNotice, "GCS ERROR: RECEIVED NON-FINITE LOCAL POSITION")
		return
	}
	s.LocalX, s.LocalY, s.LocalZ = float64(m.X), float64(m.Y), float64(m.Z)
	s.LocalPositionKnown = true
	d.publisher.Publish(events.LocalPositionChanged{SystemID: d.systemID, X: s.LocalX, Y: s.LocalY, Z: s.LocalZ, Time: t})

	vx, vy, vz := float64(m.Vx), float64(m.Vy), float64(m.Vz)
	if !d.acceptSpeed(vx) || !d.acceptSpeed(vy) || !d.acceptSpeed(vz) {
		return
	}
	s.VX, s.VY, s.VZ = vx, vy, vz
	d.publisher.Publish(events.VelocityChanged{SystemID: d.systemID, VX: vx, VY: vy, VZ: vz, Time: t})
}

func (d *Dispatcher) handleGlobalPosition(m *common.MessageGlobalPositionInt) {
	s := &d.state
	t := d.time.Reconcile(0)

	s.Latitude = float64(m.Lat) / 1e7
	s.Longitude = float64(m.Lon) / 1e7
	s.AltitudeAMSL = float64(m.Alt) / 1000
	s.AltitudeRelative = float64(m.RelativeAlt) / 1000
	s.GlobalEstimatorActive = true
	s.GlobalPositionKnown = true

	s.VX = float64(m.Vx) / 100
	s.VY = float64(m.Vy) / 100
	s.VZ = float64(m.Vz) / 100
	s.GroundSpeed = physics.GroundSpeed(s.VX, s.VY)

	d.publishGlobal(t)
	d.publisher.Publish(events.VelocityChanged{SystemID: d.systemID, VX: s.VX, VY: s.VY, VZ: s.VZ, Time: t})
	d.publishSpeed(t)
}

func (d *Dispatcher) handleGpsRaw(m *common.MessageGpsRawInt) {
	s := &d.state
	t := d.time.Reconcile(m.TimeUsec)

	if m.SatellitesVisible != math.MaxUint8 {
		d.setSatellites(int(m.SatellitesVisible))
	}

	if uint8(m.FixType) <= uint8(common.GPS_FIX_TYPE_2D_FIX) {
		return
	}

	s.GlobalPositionKnown = true
	s.GPSLatitude = float64(m.Lat) / 1e7
	s.GPSLongitude = float64(m.Lon) / 1e7
	s.GPSAltitude = float64(m.Alt) / 1000
	if m.AltEllipsoid != 0 {
		s.AltitudeWGS84 = float64(m.AltEllipsoid) / 1000
	}

	// A fused estimate beats raw GPS once one has been seen
	if s.GlobalEstimatorActive {
		return
	}
	s.Latitude = s.GPSLatitude
	s.Longitude = s.GPSLongitude
	s.AltitudeAMSL = s.GPSAltitude
	d.publishGlobal(t)

	if m.Vel == math.MaxUint16 {
		return
	}
	if vel := float64(m.Vel) / 100; d.acceptSpeed(vel) {
		s.GroundSpeed = vel
		d.publishSpeed(t)
	}
}

func (d *Dispatcher) publishGlobal(t time.Time) {
	s := &d.state
	wgs84 := math.NaN()
	if s.AltitudeWGS84 != 0 {
		wgs84 = s.AltitudeWGS84
	}
	d.publisher.Publish(events.GlobalPositionChanged{
		SystemID:      d.systemID,
		Latitude:      s.Latitude,
		Longitude:     s.Longitude,
		AltitudeAMSL:  s.AltitudeAMSL,
		AltitudeWGS84: wgs84,
		Time:          t,
	})
}

func (d *Dispatcher) setSatellites(n int) {
	if d.state.SatelliteCount == n {
		return
	}
	d.state.SatelliteCount = n
	d.publisher.Publish(events.SatellitesChanged{SystemID: d.systemID, Count: n})
}

func (d *Dispatcher) handleGlobalOrigin(m *common.MessageGpsGlobalOrigin) {
	s := &d.state
	s.HomeLatitude = float64(m.Latitude) / 1e7
	s.HomeLongitude = float64(m.Longitude) / 1e7
	s.HomeAltitude = float64(m.Altitude) / 1000
	s.HomeKnown = true
	d.publisher.Publish(events.HomeChanged{
		SystemID:  d.systemID,
		Latitude:  s.HomeLatitude,
		Longitude: s.HomeLongitude,
		Altitude:  s.HomeAltitude,
	})
}
