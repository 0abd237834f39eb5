// Package timesync maps vehicle timestamps onto the ground clock.
//
// Vehicles stamp messages either with a boot-relative microsecond counter or
// with Unix epoch microseconds. The Reconciler keeps one offset between the
// onboard counter and the ground clock and re-derives it when the vehicle
// reboots.
package timesync

import (
	"time"
)

// OnboardThreshold is 40 years in microseconds. Raw values below it are
// treated as boot-relative counters.
const OnboardThreshold uint64 = 1261440000000000

// DefaultSlack is the backward movement in microseconds tolerated before the
// offset is recomputed.
const DefaultSlack uint64 = 100

// Clock supplies ground time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Reconciler converts raw vehicle timestamps to ground time. It is not safe
// for concurrent use; callers serialize access per vehicle.
type Reconciler struct {
	clock Clock
	slack uint64

	offsetMs    int64  // ground ms minus onboard ms
	established bool   // offset has been set
	lastRaw     uint64 // highest onboard value accepted since the last reset
	resets      int    // offset recomputations after the first

	attitudeStamped bool
	lastAttitude    time.Time
}

// NewReconciler creates a reconciler. A zero slack selects DefaultSlack.
func NewReconciler(clock Clock, slack uint64) *Reconciler {
	if clock == nil {
		clock = SystemClock{}
	}
	if slack == 0 {
		slack = DefaultSlack
	}
	return &Reconciler{clock: clock, slack: slack}
}

// Reconcile converts a microsecond timestamp to ground time.
//
// When attitude-stamped mode is on and an attitude time is known, the value is
// ignored and the last attitude time is returned instead. That keeps loosely
// synchronized datasets aligned on boards without a usable clock, at the cost
// of accuracy and monotonicity for everything else.
func (r *Reconciler) Reconcile(raw uint64) time.Time {
	if r.attitudeStamped && !r.lastAttitude.IsZero() {
		return r.lastAttitude
	}

	switch {
	case raw == 0:
		return r.clock.Now()
	case raw < OnboardThreshold:
		if !r.established || raw+r.slack < r.lastRaw {
			if r.established {
				r.resets++
			}
			r.lastRaw = raw
			r.offsetMs = r.clock.Now().UnixMilli() - int64(raw/1000)
			r.established = true
		}
		if raw > r.lastRaw {
			r.lastRaw = raw
		}
		return time.UnixMilli(int64(raw/1000) + r.offsetMs)
	default:
		return time.UnixMilli(int64(raw / 1000))
	}
}

// ReconcileMillis converts a boot millisecond stamp such as time_boot_ms
func (r *Reconciler) ReconcileMillis(ms uint32) time.Time {
	return r.Reconcile(uint64(ms) * 1000)
}

// Reference converts a timestamp without attitude substitution and without
// reset detection. It shares the offset with Reconcile and only sets it when
// none exists yet. Attitude timestamps go through here.
func (r *Reconciler) Reference(raw uint64) time.Time {
	switch {
	case raw == 0:
		return r.clock.Now()
	case raw < OnboardThreshold:
		if !r.established {
			r.offsetMs = r.clock.Now().UnixMilli() - int64(raw/1000)
			r.established = true
		}
		return time.UnixMilli(int64(raw/1000) + r.offsetMs)
	default:
		return time.UnixMilli(int64(raw / 1000))
	}
}

// ReferenceMillis is Reference for millisecond stamps
func (r *Reconciler) ReferenceMillis(ms uint32) time.Time {
	return r.Reference(uint64(ms) * 1000)
}

// SetAttitudeStamped toggles the compatibility mode
func (r *Reconciler) SetAttitudeStamped(on bool) {
	r.attitudeStamped = on
}

// AttitudeStamped reports whether the compatibility mode is on
func (r *Reconciler) AttitudeStamped() bool {
	return r.attitudeStamped
}

// MarkAttitude records the time of the latest accepted attitude update
func (r *Reconciler) MarkAttitude(t time.Time) {
	r.lastAttitude = t
}

// Established reports whether an onboard offset exists
func (r *Reconciler) Established() bool { return r.established }

// Offset returns the onboard to ground offset
func (r *Reconciler) Offset() time.Duration {
	return time.Duration(r.offsetMs) * time.Millisecond
}

// Resets returns how often the offset was recomputed after a backward jump
func (r *Reconciler) Resets() int { return r.resets }
