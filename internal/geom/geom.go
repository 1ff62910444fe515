package geom

import "math"

// #region vec3
// Vec3 is a point or direction in world space (meters).
type Vec3 struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
	Z float64 `json:"z" toml:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vec3) float64 {
	return a.Sub(b).Len()
}

// #endregion vec3

// #region quat
// Quat is a unit rotation quaternion.
type Quat struct {
	X, Y, Z, W float64
}

// Identity is the no-rotation quaternion.
var Identity = Quat{W: 1}

// YawQuat returns a rotation of angle radians about the world up (Y) axis.
func YawQuat(angle float64) Quat {
	half := angle / 2
	return Quat{Y: math.Sin(half), W: math.Cos(half)}
}

// Mul composes q then r (r applied after q).
func (q Quat) Mul(r Quat) Quat {
	return Quat{
		W: r.W*q.W - r.X*q.X - r.Y*q.Y - r.Z*q.Z,
		X: r.W*q.X + r.X*q.W + r.Y*q.Z - r.Z*q.Y,
		Y: r.W*q.Y - r.X*q.Z + r.Y*q.W + r.Z*q.X,
		Z: r.W*q.Z + r.X*q.Y - r.Y*q.X + r.Z*q.W,
	}
}

// #endregion quat

// #region pose
// Pose is a rigid transform: position plus orientation.
type Pose struct {
	Position Vec3
	Rotation Quat
}

// Rotated returns p with an extra yaw applied on top of its rotation.
func (p Pose) Rotated(yaw float64) Pose {
	p.Rotation = p.Rotation.Mul(YawQuat(yaw))
	return p
}

// #endregion pose

// #region clamp
// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion clamp
