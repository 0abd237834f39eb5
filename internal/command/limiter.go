package command

import (
	"math"
	"sync"
)

// Setpoint is one manual control sample
type Setpoint struct {
	Roll    float64
	Pitch   float64
	Yaw     float64
	Thrust  float64
	Buttons uint16
}

const (
	idleEvery   = 5  // calls skipped between idle sends
	repeatAfter = 10 // forces the call after a change to send again
)

// ManualControlLimiter drops a joystick stream of ~25 Hz to ~5 Hz while the
// sticks are still. A change is sent immediately and once more on the next
// call.
type ManualControlLimiter struct {
	mu    sync.Mutex
	last  Setpoint
	count int
}

func NewManualControlLimiter() *ManualControlLimiter {
	return &ManualControlLimiter{}
}

// Allow reports whether sp should be transmitted and records it if so
func (l *ManualControlLimiter) Allow(sp Setpoint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	send := false
	if l.count >= idleEvery {
		send = true
		l.count = 0
	} else {
		l.count++
		if l.changed(sp) {
			send = true
			l.count = repeatAfter
		}
	}

	if send {
		l.last = sp
	}
	return send
}

func (l *ManualControlLimiter) changed(sp Setpoint) bool {
	return axisChanged(sp.Roll, l.last.Roll) ||
		axisChanged(sp.Pitch, l.last.Pitch) ||
		axisChanged(sp.Yaw, l.last.Yaw) ||
		axisChanged(sp.Thrust, l.last.Thrust) ||
		sp.Buttons != l.last.Buttons
}

func axisChanged(v, last float64) bool {
	return !math.IsNaN(v) && v != last
}
