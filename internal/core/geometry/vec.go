package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Helpers over mgl64.Vec3 shared by the tracking and ballistics subsystems.

// Finite reports whether every component of v is a finite number.
func Finite(v mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return false
		}
	}
	return true
}

// Lerp linearly interpolates between a and b. t is expected in [0,1];
// callers clamp before the call.
func Lerp(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// Clamp01 clamps t into [0,1].
func Clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// AngleBetween returns the angle in radians between two vectors. Returns
// math.Pi for degenerate (zero-length) input so that callers treat it as the
// worst case rather than a silent pass.
func AngleBetween(a, b mgl64.Vec3) float64 {
	la, lb := a.Len(), b.Len()
	if la == 0 || lb == 0 {
		return math.Pi
	}
	cos := a.Dot(b) / (la * lb)
	return math.Acos(mgl64.Clamp(cos, -1, 1))
}

// NearlyUnit reports whether v has length within tolerance of 1.
func NearlyUnit(v mgl64.Vec3, tolerance float64) bool {
	return math.Abs(v.Len()-1) <= tolerance
}

// RaySphere returns the distance along the ray (origin, dir) to the first
// intersection with the sphere (center, radius), and whether it intersects.
// dir must be unit length. Intersections behind the origin are ignored.
func RaySphere(origin, dir, center mgl64.Vec3, radius float64) (float64, bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t := -b - sq
	if t < 0 {
		t = -b + sq
	}
	if t < 0 {
		return 0, false
	}
	return t, true
}
