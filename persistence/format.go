package persistence

import "errors"

const (
	// MagicNumber identifies index snapshot files (ASCII: "CAG1").
	MagicNumber = 0x43414731
	// Version is the current file format version (v1.0.0).
	Version = 0x00010000

	// Element types
	DTypeFloat32 = 1
	DTypeInt8    = 2

	// Metric codes
	MetricCodeL2           = 1
	MetricCodeInnerProduct = 2
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrInvalidDType   = errors.New("invalid element type")
	ErrInvalidMetric  = errors.New("invalid metric code")
)

// FileHeader is the 64-byte header at the start of every snapshot file.
// Layout is fixed little-endian for mmap compatibility.
type FileHeader struct {
	Magic    uint32
	Version  uint32
	DType    uint8 // 1=float32, 2=int8
	Metric   uint8 // 1=L2, 2=inner product
	Padding1 [6]byte
	Count    uint64 // Number of rows
	Dim      uint32 // Elements per row
	Degree   uint32 // Graph out-degree
	Reserved [32]byte
}

func (h *FileHeader) validate() error {
	if h.Magic != MagicNumber {
		return ErrInvalidMagic
	}
	if h.Version != Version {
		return ErrInvalidVersion
	}
	if h.DType != DTypeFloat32 && h.DType != DTypeInt8 {
		return ErrInvalidDType
	}
	if h.Metric != MetricCodeL2 && h.Metric != MetricCodeInnerProduct {
		return ErrInvalidMetric
	}
	return nil
}
