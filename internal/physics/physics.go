package physics

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
	"golang.org/x/exp/constraints"
)

// Constants
const (
	TwoPi        = 2 * math.Pi
	GimbalLockEp = 1e-3 // Pitch distance from ±90° treated as gimbal lock (rad)
	DegToRad     = math.Pi / 180
	RadToDeg     = 180 / math.Pi
)

// Clamp limits v to [lo, hi]
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NormalizeAngle maps an angle in radians into (-π, π].
// NaN and infinities have no meaningful angle and come back as NaN.
func NormalizeAngle(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return math.NaN()
	}
	if x > -math.Pi && x <= math.Pi {
		return x
	}

	x = math.Mod(x+math.Pi, TwoPi)
	if x <= 0 {
		x += TwoPi
	}
	x -= math.Pi
	if x <= -math.Pi {
		return math.Pi
	}
	return x
}

// NormalizeAngle32 is NormalizeAngle for float32 wire values
func NormalizeAngle32(x float32) float64 {
	return NormalizeAngle(float64(x))
}

// DCM is a row-major direction-cosine matrix
type DCM [3][3]float64

// QuaternionToDCM converts a unit quaternion (w, x, y, z) to a rotation matrix
func QuaternionToDCM(a, b, c, d float64) DCM {
	aSq, bSq, cSq, dSq := a*a, b*b, c*c, d*d

	var m DCM
	m[0][0] = aSq + bSq - cSq - dSq
	m[0][1] = 2 * (b*c - a*d)
	m[0][2] = 2 * (a*c + b*d)
	m[1][0] = 2 * (b*c + a*d)
	m[1][1] = aSq - bSq + cSq - dSq
	m[1][2] = 2 * (c*d - a*b)
	m[2][0] = 2 * (b*d - a*c)
	m[2][1] = 2 * (a*b + c*d)
	m[2][2] = aSq - bSq - cSq + dSq
	return m
}

// QuaternionToEuler extracts roll, pitch and yaw from a quaternion.
//
// Near ±90° pitch roll and yaw are not separable. In that band roll is forced
// to zero and yaw comes from the combined off-diagonal terms.
func QuaternionToEuler(w, x, y, z float64) (roll, pitch, yaw float64) {
	m := QuaternionToDCM(w, x, y, z)

	pitch = math.Asin(Clamp(-m[2][0], -1, 1))
	if math.Abs(pitch-math.Pi/2) < GimbalLockEp || math.Abs(pitch+math.Pi/2) < GimbalLockEp {
		roll = 0
		yaw = math.Atan2(m[1][2]-m[0][1], m[0][2]+m[1][1])
	} else {
		roll = math.Atan2(m[2][1], m[2][2])
		yaw = math.Atan2(m[1][0], m[0][0])
	}

	return NormalizeAngle(roll), NormalizeAngle(pitch), NormalizeAngle(yaw)
}

// GroundSpeed returns horizontal speed from north and east velocity
func GroundSpeed(vx, vy float64) float64 {
	return math.Sqrt(vx*vx + vy*vy)
}

// ValidSpeed rejects NaN, infinities and magnitudes at or above max
func ValidSpeed(v, max float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return math.Abs(v) < max
}

// CalculateMagneticVariation returns the magnetic declination in degrees
// (+East, -West) for a WGS84 position and date. altM is meters above the ellipsoid.
func CalculateMagneticVariation(lat, lon, altM float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(lat, lon, altM)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// outside the model validity window
		return 0.0
	}

	return mag.D()
}

// MagneticHeading converts a true yaw (rad) to a magnetic one using a declination in degrees
func MagneticHeading(trueYaw, declinationDeg float64) float64 {
	return NormalizeAngle(trueYaw - declinationDeg*DegToRad)
}
