// Package distance provides the public API for vector distance calculations.
// All metrics are expressed as distances: smaller is always better. Inner
// product is negated so that a single total order covers every metric.
package distance

import (
	"fmt"
	"slices"

	"github.com/hupe1980/cagra/internal/math32"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return math32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return math32.SquaredL2(a, b)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := math32.Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / math32.Sqrt(norm2)
	math32.ScaleInPlace(v, inv)
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricL2 Metric = iota
	MetricInnerProduct
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricInnerProduct:
		return "InnerProduct"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Func is a function type for distance calculation between float32 vectors.
type Func func(a, b []float32) float32

// FuncInt8 is a function type for distance calculation between a float32
// query and an int8 dataset row.
type FuncInt8 func(a []float32, b []int8) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricInnerProduct:
		return negatedDot, nil
	default:
		return nil, fmt.Errorf("unsupported metric for float32: %v", m)
	}
}

// ProviderInt8 returns the distance function for the given metric on int8 rows.
func ProviderInt8(m Metric) (FuncInt8, error) {
	switch m {
	case MetricL2:
		return math32.SquaredL2Int8, nil
	case MetricInnerProduct:
		return negatedDotInt8, nil
	default:
		return nil, fmt.Errorf("unsupported metric for int8: %v", m)
	}
}

func negatedDot(a, b []float32) float32 {
	return -math32.Dot(a, b)
}

func negatedDotInt8(a []float32, b []int8) float32 {
	return -math32.DotInt8(a, b)
}
