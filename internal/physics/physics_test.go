package physics

import (
	"math"
	"testing"
	"time"
)

func TestNormalizeAngleRange(t *testing.T) {
	inputs := []float64{
		0, math.Pi, -math.Pi, 2 * math.Pi, -2 * math.Pi, 3 * math.Pi, -3 * math.Pi,
		1e-17, -1e-17, 7.5, -7.5, 1000.123, -1000.123, math.Pi + 1e-12, -math.Pi - 1e-12,
		1e9, -1e9,
	}
	for _, in := range inputs {
		got := NormalizeAngle(in)
		if !(got > -math.Pi && got <= math.Pi) {
			t.Errorf("NormalizeAngle(%v) = %v, outside (-π, π]", in, got)
		}
		if again := NormalizeAngle(got); again != got {
			t.Errorf("NormalizeAngle not idempotent for %v: %v then %v", in, got, again)
		}
	}
}

func TestNormalizeAngleValues(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{2 * math.Pi, 0},
	}
	for _, tt := range tests {
		if got := NormalizeAngle(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("NormalizeAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAngleNonFinite(t *testing.T) {
	for _, in := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := NormalizeAngle(in); !math.IsNaN(got) {
			t.Errorf("NormalizeAngle(%v) = %v, want NaN", in, got)
		}
	}
}

// eulerToQuaternion builds a ZYX quaternion for test inputs
func eulerToQuaternion(roll, pitch, yaw float64) (w, x, y, z float64) {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	w = cr*cp*cy + sr*sp*sy
	x = sr*cp*cy - cr*sp*sy
	y = cr*sp*cy + sr*cp*sy
	z = cr*cp*sy - sr*sp*cy
	return
}

func TestQuaternionToEulerRegular(t *testing.T) {
	tests := []struct{ roll, pitch, yaw float64 }{
		{0, 0, 0},
		{0.3, -0.2, 1.1},
		{-1.2, 0.7, -2.9},
		{0.01, 1.2, 3.0},
	}
	for _, tt := range tests {
		w, x, y, z := eulerToQuaternion(tt.roll, tt.pitch, tt.yaw)
		roll, pitch, yaw := QuaternionToEuler(w, x, y, z)
		if math.Abs(roll-tt.roll) > 1e-9 || math.Abs(pitch-tt.pitch) > 1e-9 || math.Abs(yaw-tt.yaw) > 1e-9 {
			t.Errorf("QuaternionToEuler(%v) = (%v, %v, %v)", tt, roll, pitch, yaw)
		}
	}
}

func TestQuaternionToEulerGimbalLockPositive(t *testing.T) {
	yawIn := 30 * DegToRad
	w, x, y, z := eulerToQuaternion(0, math.Pi/2, yawIn)
	roll, pitch, yaw := QuaternionToEuler(w, x, y, z)

	if roll != 0 {
		t.Fatalf("roll = %v, want 0 in gimbal lock", roll)
	}
	if math.Abs(pitch-math.Pi/2) > GimbalLockEp {
		t.Fatalf("pitch = %v, want ~π/2", pitch)
	}
	if math.Abs(yaw-yawIn) > 1e-6 {
		t.Fatalf("yaw = %v, want %v", yaw, yawIn)
	}
}

func TestQuaternionToEulerGimbalLockNegative(t *testing.T) {
	for _, eps := range []float64{0, 1e-4, -1e-4} {
		w, x, y, z := eulerToQuaternion(0.4, -math.Pi/2+eps, 0.8)
		roll, pitch, yaw := QuaternionToEuler(w, x, y, z)

		if roll != 0 {
			t.Fatalf("eps %v: roll = %v, want 0 in gimbal lock", eps, roll)
		}
		if math.Abs(pitch+math.Pi/2) > GimbalLockEp {
			t.Fatalf("eps %v: pitch = %v, want ~-π/2", eps, pitch)
		}
		m := QuaternionToDCM(w, x, y, z)
		want := NormalizeAngle(math.Atan2(m[1][2]-m[0][1], m[0][2]+m[1][1]))
		if yaw != want {
			t.Fatalf("eps %v: yaw = %v, want combined-term %v", eps, yaw, want)
		}
	}
}

func TestGroundSpeedAndValidity(t *testing.T) {
	if got := GroundSpeed(3, 4); got != 5 {
		t.Fatalf("GroundSpeed(3,4) = %v", got)
	}
	for _, v := range []float64{math.NaN(), math.Inf(1), 1000, -2000} {
		if ValidSpeed(v, 1000) {
			t.Errorf("ValidSpeed(%v) = true", v)
		}
	}
	if !ValidSpeed(-12.5, 1000) {
		t.Error("ValidSpeed(-12.5) = false")
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Fatal("Clamp int")
	}
	if Clamp(1.5, -1.0, 1.0) != 1.0 {
		t.Fatal("Clamp float")
	}
}

func TestMagneticVariationIsPlausible(t *testing.T) {
	// Zurich sits within a few degrees of zero declination
	d := CalculateMagneticVariation(47.4, 8.5, 400, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if math.IsNaN(d) || math.Abs(d) > 10 {
		t.Fatalf("declination = %v", d)
	}
}
