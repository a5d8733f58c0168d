// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import "math"

// Vector3 is a three-axis value in the body frame.
type Vector3 struct {
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
	Z float64 `json:"z" cbor:"z"`
}

// EulerOrder is the rotation order of an Euler triple.
type EulerOrder string

// Supported rotation orders
const (
	OrderXYZ EulerOrder = "XYZ"
	OrderYXZ EulerOrder = "YXZ"
)

// Euler is a rotation in radians applied in Order.
type Euler struct {
	X     float64    `json:"x" cbor:"x"`
	Y     float64    `json:"y" cbor:"y"`
	Z     float64    `json:"z" cbor:"z"`
	Order EulerOrder `json:"order" cbor:"order"`
}

// Quaternion is a unit rotation with W as the scalar part.
type Quaternion struct {
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
	Z float64 `json:"z" cbor:"z"`
	W float64 `json:"w" cbor:"w"`
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

// Mul returns the Hamilton product q*b.
func (q Quaternion) Mul(b Quaternion) Quaternion {
	return Quaternion{
		X: q.X*b.W + q.W*b.X + q.Y*b.Z - q.Z*b.Y,
		Y: q.Y*b.W + q.W*b.Y + q.Z*b.X - q.X*b.Z,
		Z: q.Z*b.W + q.W*b.Z + q.X*b.Y - q.Y*b.X,
		W: q.W*b.W - q.X*b.X - q.Y*b.Y - q.Z*b.Z,
	}
}

// Length returns the quaternion norm.
func (q Quaternion) Length() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// QuaternionFromEuler builds the quaternion for e. Orders other than XYZ
// and YXZ are treated as XYZ.
func QuaternionFromEuler(e Euler) Quaternion {
	c1, s1 := math.Cos(e.X/2), math.Sin(e.X/2)
	c2, s2 := math.Cos(e.Y/2), math.Sin(e.Y/2)
	c3, s3 := math.Cos(e.Z/2), math.Sin(e.Z/2)

	q := Quaternion{
		X: s1*c2*c3 + c1*s2*s3,
		Y: c1*s2*c3 - s1*c2*s3,
	}
	if e.Order == OrderYXZ {
		q.Z = c1*c2*s3 - s1*s2*c3
		q.W = c1*c2*c3 + s1*s2*s3
	} else {
		q.Z = c1*c2*s3 + s1*s2*c3
		q.W = c1*c2*c3 - s1*s2*s3
	}
	return q
}

// EulerFromQuaternion extracts Euler angles in the given order from a unit quaternion.
func EulerFromQuaternion(q Quaternion, order EulerOrder) Euler {
	x2, y2, z2 := q.X+q.X, q.Y+q.Y, q.Z+q.Z
	xx, xy, xz := q.X*x2, q.X*y2, q.X*z2
	yy, yz, zz := q.Y*y2, q.Y*z2, q.Z*z2
	wx, wy, wz := q.W*x2, q.W*y2, q.W*z2

	m11, m12, m13 := 1-(yy+zz), xy-wz, xz+wy
	m21, m22, m23 := xy+wz, 1-(xx+zz), yz-wx
	m31, m32, m33 := xz-wy, yz+wx, 1-(xx+yy)

	e := Euler{Order: order}
	switch order {
	case OrderYXZ:
		e.X = math.Asin(-clamp(m23, -1, 1))
		if math.Abs(m23) < 0.9999999 {
			e.Y = math.Atan2(m13, m33)
			e.Z = math.Atan2(m21, m22)
		} else {
			e.Y = math.Atan2(-m31, m11)
		}
	default:
		e.Order = OrderXYZ
		e.Y = math.Asin(clamp(m13, -1, 1))
		if math.Abs(m13) < 0.9999999 {
			e.X = math.Atan2(-m23, m33)
			e.Z = math.Atan2(-m12, m11)
		} else {
			e.X = math.Atan2(m32, m22)
		}
	}
	return e
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
