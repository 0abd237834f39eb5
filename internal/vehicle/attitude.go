package vehicle

import (
	"math"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/internal/physics"
)

func finite(vs ...float32) bool {
	for _, v := range vs {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func (d *Dispatcher) handleAttitude(componentID uint8, m *common.MessageAttitude) {
	if !finite(m.Roll, m.Pitch, m.Yaw, m.Rollspeed, m.Pitchspeed, m.Yawspeed) {
		d.diagnostic(events.SeverityNotice, "GCS ERROR: RECEIVED NON-FINITE ATTITUDE")
		return
	}
	t := d.time.ReferenceMillis(m.TimeBootMs)
	d.applyAttitude(componentID,
		physics.NormalizeAngle32(m.Roll), physics.NormalizeAngle32(m.Pitch), physics.NormalizeAngle32(m.Yaw),
		float64(m.Rollspeed), float64(m.Pitchspeed), float64(m.Yawspeed), t)
}

func (d *Dispatcher) handleAttitudeQuaternion(componentID uint8, m *common.MessageAttitudeQuaternion) {
	if !finite(m.Q1, m.Q2, m.Q3, m.Q4, m.Rollspeed, m.Pitchspeed, m.Yawspeed) {
		d.diagnostic(events.SeverityNotice, "GCS ERROR: RECEIVED NON-FINITE ATTITUDE")
		return
	}
	t := d.time.ReferenceMillis(m.TimeBootMs)
	roll, pitch, yaw := physics.QuaternionToEuler(float64(m.Q1), float64(m.Q2), float64(m.Q3), float64(m.Q4))
	d.applyAttitude(componentID, roll, pitch, yaw,
		float64(m.Rollspeed), float64(m.Pitchspeed), float64(m.Yawspeed), t)
}

func (d *Dispatcher) applyAttitude(componentID uint8, roll, pitch, yaw, rollSpeed, pitchSpeed, yawSpeed float64, t time.Time) {
	s := &d.state
	s.Roll, s.Pitch, s.Yaw = roll, pitch, yaw
	s.RollSpeed, s.PitchSpeed, s.YawSpeed = rollSpeed, pitchSpeed, yawSpeed
	s.AttitudeKnown = true
	s.AttitudeComponent = int(componentID)
	s.AttitudeTime = t

	d.time.MarkAttitude(t)
	d.attitudeSeen = true
	d.updateMagneticHeading(t)

	d.publisher.Publish(events.AttitudeChanged{
		SystemID:    d.systemID,
		ComponentID: componentID,
		Roll:        roll,
		Pitch:       pitch,
		Yaw:         yaw,
		RollSpeed:   rollSpeed,
		PitchSpeed:  pitchSpeed,
		YawSpeed:    yawSpeed,
		Time:        t,
	})
}

// updateMagneticHeading needs both a yaw and a global fix
func (d *Dispatcher) updateMagneticHeading(t time.Time) {
	s := &d.state
	if !s.AttitudeKnown || !s.GlobalPositionKnown {
		return
	}
	declination := physics.CalculateMagneticVariation(s.Latitude, s.Longitude, s.AltitudeAMSL, t)
	s.MagneticHeading = physics.MagneticHeading(s.Yaw, declination)
	s.MagneticKnown = true
}

func (d *Dispatcher) handleVfrHud(componentID uint8, m *common.MessageVfrHud) {
	s := &d.state
	t := d.time.Reconcile(0)

	s.Throttle = float64(m.Throttle) / 100

	// Heading is only a stand-in until a real attitude source shows up
	if !s.AttitudeKnown {
		s.Yaw = physics.NormalizeAngle(float64(m.Heading) * physics.DegToRad)
		d.publisher.Publish(events.AttitudeChanged{
			SystemID:    d.systemID,
			ComponentID: componentID,
			Roll:        s.Roll,
			Pitch:       s.Pitch,
			Yaw:         s.Yaw,
			Time:        t,
		})
	}

	if finite(m.Alt) {
		s.AltitudeAMSL = float64(m.Alt)
	}
	if d.acceptSpeed(float64(m.Groundspeed)) {
		s.GroundSpeed = float64(m.Groundspeed)
	}
	if !math.IsNaN(float64(m.Airspeed)) && d.acceptSpeed(float64(m.Airspeed)) {
		s.AirSpeed = float64(m.Airspeed)
		s.AirSpeedKnown = true
	}
	if finite(m.Climb) {
		s.VZ = -float64(m.Climb)
	}

	d.publishSpeed(t)
}

func (d *Dispatcher) publishSpeed(t time.Time) {
	air := math.NaN()
	if d.state.AirSpeedKnown {
		air = d.state.AirSpeed
	}
	d.publisher.Publish(events.SpeedChanged{
		SystemID:    d.systemID,
		GroundSpeed: d.state.GroundSpeed,
		AirSpeed:    air,
		Time:        t,
	})
}
