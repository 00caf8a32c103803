package cagra

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmptyQueryBatch is returned when Search receives no queries.
	ErrEmptyQueryBatch = errors.New("query batch is empty")

	// ErrIndexClosed is returned when operating on a closed index.
	ErrIndexClosed = errors.New("index is closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidITopK indicates an internal top-k size outside the supported
// range for the selected traversal strategy.
type ErrInvalidITopK struct {
	ITopKSize int
	Max       int
}

func (e *ErrInvalidITopK) Error() string {
	return fmt.Sprintf("invalid itopk size: %d exceeds maximum %d", e.ITopKSize, e.Max)
}

// ErrInvalidThreadGroupSize indicates a thread-group width that is not a
// power of two or lies outside [64, 1024].
type ErrInvalidThreadGroupSize struct {
	Size int
}

func (e *ErrInvalidThreadGroupSize) Error() string {
	return fmt.Sprintf("invalid thread group size: %d (must be a power of two in [64, 1024])", e.Size)
}

// ErrInvalidLoadBits indicates a load granularity that does not evenly
// divide the dataset row bit width.
type ErrInvalidLoadBits struct {
	LoadBits int
	RowBits  int
}

func (e *ErrInvalidLoadBits) Error() string {
	return fmt.Sprintf("invalid load granularity: %d bits does not divide row width %d bits", e.LoadBits, e.RowBits)
}

// ErrTopKTooLarge indicates a requested neighbor count the resolved plan
// cannot serve (k must not exceed the internal top-k size).
type ErrTopKTooLarge struct {
	TopK      int
	ITopKSize int
}

func (e *ErrTopKTooLarge) Error() string {
	return fmt.Sprintf("topk %d exceeds itopk size %d", e.TopK, e.ITopKSize)
}

// ErrInvalidParam indicates a search parameter value outside its valid
// range.
type ErrInvalidParam struct {
	Name  string
	Value int
}

func (e *ErrInvalidParam) Error() string {
	return fmt.Sprintf("invalid search parameter %s: %d", e.Name, e.Value)
}
