package persistence

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

var (
	// ErrUnsupportedArchitecture is returned when running on an unsupported CPU architecture.
	ErrUnsupportedArchitecture = errors.New("unsupported architecture: only amd64 and arm64 are supported")

	// ErrBigEndian is returned when running on big-endian systems.
	ErrBigEndian = errors.New("big-endian systems are not supported")

	// ErrUnalignedAccess is returned when attempting unaligned memory access.
	ErrUnalignedAccess = errors.New("unaligned memory access detected")
)

// init performs startup validation of platform requirements.
func init() {
	if err := validatePlatform(); err != nil {
		panic(fmt.Sprintf("cagra/persistence: %v", err))
	}
}

// validatePlatform checks if the current platform supports the fixed
// little-endian layout and the unsafe slice reinterpretation.
func validatePlatform() error {
	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchitecture, arch)
	}

	if !isLittleEndian() {
		return ErrBigEndian
	}

	return nil
}

func isLittleEndian() bool {
	var test uint16 = 0x0001
	firstByte := *(*byte)(unsafe.Pointer(&test))
	return firstByte == 1
}

func validateFloat32SliceAlignment(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}

	ptr := uintptr(unsafe.Pointer(&vec[0]))
	if ptr%4 != 0 {
		return fmt.Errorf("%w: float32 slice at address 0x%x", ErrUnalignedAccess, ptr)
	}

	return nil
}

func validateUint32SliceAlignment(slice []uint32) error {
	if len(slice) == 0 {
		return nil
	}

	ptr := uintptr(unsafe.Pointer(&slice[0]))
	if ptr%4 != 0 {
		return fmt.Errorf("%w: uint32 slice at address 0x%x", ErrUnalignedAccess, ptr)
	}

	return nil
}

// PlatformInfo returns information about the current platform.
func PlatformInfo() string {
	endian := "little-endian"
	if !isLittleEndian() {
		endian = "big-endian"
	}
	return fmt.Sprintf("GOOS=%s GOARCH=%s endianness=%s", runtime.GOOS, runtime.GOARCH, endian)
}
