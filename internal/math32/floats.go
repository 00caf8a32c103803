// Package math32 provides scalar float32 vector kernels.
// This is an internal package - external users should use the distance package.
package math32

import "math"

// Dot calculates the dot product of two vectors.
// Public for use by the distance package.
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}
	return ret
}

// SquaredL2 calculates the squared L2 distance.
// Public for use by the distance package.
func SquaredL2(a, b []float32) float32 {
	var distance float32
	for i := range a {
		distance += (a[i] - b[i]) * (a[i] - b[i])
	}
	return distance
}

// DotInt8 calculates the dot product of a float32 query against an int8 row.
func DotInt8(a []float32, b []int8) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * float32(b[i])
	}
	return ret
}

// SquaredL2Int8 calculates the squared L2 distance of a float32 query
// against an int8 row.
func SquaredL2Int8(a []float32, b []int8) float32 {
	var distance float32
	for i := range a {
		d := a[i] - float32(b[i])
		distance += d * d
	}
	return distance
}

// Sqrt returns the square root of x.
func Sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

// ScaleInPlace multiplies all elements of a by scalar.
//
// This is primarily used by distance normalization.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}
