package timesync

import (
	"testing"
	"time"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestReconciler() (*Reconciler, *manualClock) {
	clock := &manualClock{now: time.UnixMilli(1_700_000_000_000)}
	return NewReconciler(clock, 0), clock
}

func TestReconcileZeroReturnsGroundTime(t *testing.T) {
	r, clock := newTestReconciler()
	if got := r.Reconcile(0); !got.Equal(clock.now) {
		t.Fatalf("Reconcile(0) = %v, want %v", got, clock.now)
	}
	if r.Established() {
		t.Fatal("zero timestamp must not establish an offset")
	}
}

func TestReconcileEpochPassesThrough(t *testing.T) {
	r, _ := newTestReconciler()
	raw := uint64(1_650_000_000_123_456)
	want := time.UnixMilli(1_650_000_000_123)
	if got := r.Reconcile(raw); !got.Equal(want) {
		t.Fatalf("Reconcile(epoch) = %v, want %v", got, want)
	}
}

func TestReconcileOnboardEstablishesOffsetOnce(t *testing.T) {
	r, clock := newTestReconciler()
	start := clock.now

	first := r.Reconcile(5_000_000) // 5s after boot
	if !first.Equal(start) {
		t.Fatalf("first sample = %v, want %v", first, start)
	}

	// ground clock drifts but offset stays fixed
	clock.Advance(3 * time.Second)
	got := r.Reconcile(6_000_000)
	want := start.Add(time.Second)
	if !got.Equal(want) {
		t.Fatalf("second sample = %v, want %v", got, want)
	}
	if r.Resets() != 0 {
		t.Fatalf("resets = %d, want 0", r.Resets())
	}
}

func TestReconcileMonotonicForNonDecreasingInput(t *testing.T) {
	r, clock := newTestReconciler()
	var prev time.Time
	raw := uint64(1_000)
	for i := 0; i < 500; i++ {
		clock.Advance(time.Duration(i%7) * time.Millisecond)
		got := r.Reconcile(raw)
		if i > 0 && got.Before(prev) {
			t.Fatalf("step %d: %v before %v", i, got, prev)
		}
		prev = got
		raw += uint64(i%3) * 10_000
	}
}

func TestReconcileSmallBackwardJitterKeepsOffset(t *testing.T) {
	r, clock := newTestReconciler()
	r.Reconcile(10_000_000)
	offset := r.Offset()

	clock.Advance(time.Minute)
	r.Reconcile(10_000_000 - DefaultSlack + 1)
	if r.Offset() != offset || r.Resets() != 0 {
		t.Fatalf("offset changed on jitter within slack: %v -> %v", offset, r.Offset())
	}
}

func TestReconcileBackwardJumpRecomputesExactlyOnce(t *testing.T) {
	r, clock := newTestReconciler()
	r.Reconcile(60_000_000)
	r.Reconcile(61_000_000)

	// vehicle reboot
	clock.Advance(10 * time.Second)
	afterReboot := r.Reconcile(2_000_000)
	if !afterReboot.Equal(clock.now) {
		t.Fatalf("after reboot = %v, want %v", afterReboot, clock.now)
	}
	for raw := uint64(2_000_000); raw < 3_000_000; raw += 100_000 {
		r.Reconcile(raw)
	}
	if r.Resets() != 1 {
		t.Fatalf("resets = %d, want 1", r.Resets())
	}
}

func TestReferenceNeverRecomputes(t *testing.T) {
	r, clock := newTestReconciler()
	r.ReferenceMillis(60_000)
	offset := r.Offset()
	clock.Advance(time.Hour)
	r.ReferenceMillis(1_000)
	if r.Offset() != offset {
		t.Fatalf("reference changed offset: %v -> %v", offset, r.Offset())
	}
}

func TestAttitudeStampedSubstitutesLastAttitude(t *testing.T) {
	r, clock := newTestReconciler()
	attitudeAt := clock.now.Add(-2 * time.Second)

	// off by default
	if r.AttitudeStamped() {
		t.Fatal("attitude-stamped mode must default to off")
	}
	r.MarkAttitude(attitudeAt)
	if got := r.Reconcile(0); got.Equal(attitudeAt) {
		t.Fatal("substitution happened with mode disabled")
	}

	r.SetAttitudeStamped(true)
	for _, raw := range []uint64{0, 5_000_000, 1_650_000_000_000_000} {
		if got := r.Reconcile(raw); !got.Equal(attitudeAt) {
			t.Fatalf("Reconcile(%d) = %v, want attitude time %v", raw, got, attitudeAt)
		}
	}

	// reference path is unaffected
	if got := r.Reference(0); !got.Equal(clock.now) {
		t.Fatalf("Reference(0) = %v, want %v", got, clock.now)
	}
}
