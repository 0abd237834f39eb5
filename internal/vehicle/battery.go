package vehicle

import (
	"fmt"
	"math"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/internal/physics"
)

const (
	emptyCellVoltage = 3.3 // Below this the sample is treated as a wiring fault
	tickMovement     = 0.1 // Tick change required between two alerts (V)
	tickMargin       = 0.2 // Sample must sit this far under the tick threshold (V)
)

// batteryFilter holds the voltage trackers behind the threshold alert
type batteryFilter struct {
	lowpass     float64 // fast filter, seeded by the first sample
	tick        float64 // slow tracker compared against the tick voltage
	lastTick    float64 // tick value at the last alert or last time above threshold
	start       float64 // first plausible sample, -1 until seen
	lastWarning time.Time
}

func newBatteryFilter() batteryFilter {
	return batteryFilter{
		lowpass:  -1,
		tick:     12.0,
		lastTick: 13.0,
		start:    -1,
	}
}

func (f *batteryFilter) filter(v float64) float64 {
	if f.lowpass < 0 {
		f.lowpass = v
	}
	f.lowpass = f.lowpass*0.6 + v*0.4
	return f.lowpass
}

func (d *Dispatcher) handleSysStatus(m *common.MessageSysStatus, now time.Time) {
	s := &d.state

	s.CPULoad = float64(m.Load) / 10
	s.ErrorsComm = m.ErrorsComm
	s.ErrorsCount = [4]uint16{m.ErrorsCount1, m.ErrorsCount2, m.ErrorsCount3, m.ErrorsCount4}
	s.DropRate = float64(min(m.DropRateComm, 10000)) / 100

	enabled := uint32(m.OnboardControlSensorsEnabled)
	s.AttitudeControl = enabled&(1<<11) != 0
	s.YawPositionControl = enabled&(1<<12) != 0
	s.AltitudeControl = enabled&(1<<13) != 0
	s.XYPositionControl = enabled&(1<<14) != 0

	d.publisher.Publish(events.LinkHealthChanged{
		SystemID:   d.systemID,
		DropRate:   s.DropRate,
		ErrorsComm: s.ErrorsComm,
		CPULoad:    s.CPULoad,
	})

	if m.CurrentBattery != -1 {
		s.Current = float64(m.CurrentBattery) / 100
		s.CurrentKnown = true
	}

	if m.VoltageBattery > 0 && m.VoltageBattery != math.MaxUint16 {
		d.updateVoltage(float64(m.VoltageBattery)/1000, now)

		if m.BatteryRemaining < 0 {
			s.RemainingPercent = -1
		} else {
			s.RemainingPercent = physics.Clamp(int(m.BatteryRemaining), 0, 100)
		}

		current := math.NaN()
		if s.CurrentKnown {
			current = s.Current
		}
		d.publisher.Publish(events.BatteryChanged{
			SystemID:         d.systemID,
			Voltage:          s.Voltage,
			FilteredVoltage:  s.FilteredVoltage,
			Current:          current,
			RemainingPercent: s.RemainingPercent,
			Time:             now,
		})
	}

	if s.RemainingPercent >= 0 && s.RemainingPercent < d.config.BatteryWarnPercent {
		d.startLowBatteryAlarm()
	} else {
		d.stopLowBatteryAlarm()
	}
}

// updateVoltage feeds one sample through the filters and raises the tick
// alert on a genuine downward crossing of the threshold
func (d *Dispatcher) updateVoltage(v float64, now time.Time) {
	s := &d.state
	f := &d.battery
	threshold := d.config.TickVoltage

	s.Voltage = v
	s.FilteredVoltage = f.filter(v)
	f.tick = f.tick*0.8 + 0.2*v
	s.TickVoltage = f.tick

	if f.tick > threshold {
		f.lastTick = f.tick
	}

	if f.start > 0 &&
		f.tick < threshold &&
		math.Abs(f.lastTick-f.tick) > tickMovement &&
		f.lowpass < threshold &&
		v > emptyCellVoltage &&
		v-tickMargin < threshold &&
		(f.lastWarning.IsZero() || now.Sub(f.lastWarning) > d.config.VoltageAlertCooldown) {

		d.announcer.Say(fmt.Sprintf("Low battery system %d: %.1f volts", d.systemID, f.lowpass), events.SeverityWarning)
		d.publisher.Publish(events.VoltageAlert{SystemID: d.systemID, Voltage: f.lowpass, Time: now})
		f.lastWarning = now
		f.lastTick = f.tick
	}

	if f.start == -1 && v > 0.1 {
		f.start = v
	}
}

func (d *Dispatcher) startLowBatteryAlarm() {
	if d.state.LowBatteryAlarm {
		return
	}
	d.state.LowBatteryAlarm = true
	d.announcer.Say(fmt.Sprintf("System %d has low battery", d.systemID), events.SeverityWarning)
	d.publisher.Publish(events.LowBatteryAlarm{SystemID: d.systemID, Active: true, RemainingPercent: d.state.RemainingPercent})
}

func (d *Dispatcher) stopLowBatteryAlarm() {
	if !d.state.LowBatteryAlarm {
		return
	}
	d.state.LowBatteryAlarm = false
	d.publisher.Publish(events.LowBatteryAlarm{SystemID: d.systemID, Active: false, RemainingPercent: d.state.RemainingPercent})
}

func (d *Dispatcher) handleBatteryStatus(m *common.MessageBatteryStatus) {
	// -1 means the autopilot does not integrate current
	if m.CurrentConsumed != -1 {
		d.state.ConsumedMAh = float64(m.CurrentConsumed)
	}
}
