package main

import (
	"fmt"
	"sync/atomic"

	"github.com/yegors/co-gcs/internal/calibration"
	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/internal/fleet"
)

// AxisSink is the part of the calibration controller fed by the radio
type AxisSink interface {
	SetAxisCount(n int)
	AxisValue(axis, value int)
}

// rcFeeder turns RC_CHANNELS of one vehicle into axis samples. With no
// system id given it locks onto the first vehicle that appears.
type rcFeeder struct {
	sink   AxisSink
	target atomic.Uint32
}

func newRCFeeder(sink AxisSink, systemID uint8) *rcFeeder {
	f := &rcFeeder{sink: sink}
	f.target.Store(uint32(systemID))
	return f
}

func (f *rcFeeder) Target() uint8 {
	return uint8(f.target.Load())
}

func (f *rcFeeder) handle(ev events.Event) {
	switch e := ev.(type) {
	case events.VehicleAdded:
		f.target.CompareAndSwap(0, uint32(e.SystemID))

	case events.RCChannels:
		if e.SystemID != f.Target() {
			return
		}
		count := 0
		for i, v := range e.Values {
			if v >= 0 {
				count = i + 1
			}
		}
		f.sink.SetAxisCount(count)
		for i, v := range e.Values[:count] {
			if v >= 0 {
				f.sink.AxisValue(i, v)
			}
		}
	}
}

// vehicleParams writes saved tables to the target vehicle's RC parameters
type vehicleParams struct {
	fleet  *fleet.Manager
	feeder *rcFeeder
}

func (p *vehicleParams) WriteCalibration(t *calibration.Table) error {
	target := p.feeder.Target()
	if target == 0 {
		return fmt.Errorf("no vehicle to write RC parameters to")
	}
	enc, err := p.fleet.Encoder(target)
	if err != nil {
		return err
	}
	return calibration.NewRCParamWriter(enc).WriteCalibration(t)
}
