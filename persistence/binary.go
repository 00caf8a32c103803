// Package persistence implements the versioned binary snapshot format for
// index data: a fixed little-endian header, zstd-compressed dataset and
// graph sections, and a CRC32 trailer over everything before it.
package persistence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unsafe"
)

// BinaryWriter writes snapshot sections in the fixed binary layout.
type BinaryWriter struct {
	w         io.Writer
	byteOrder binary.ByteOrder
}

// NewBinaryWriter creates a new binary writer.
func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{
		w:         w,
		byteOrder: binary.LittleEndian, // Native on x86/ARM
	}
}

// WriteHeader writes the file header.
func (bw *BinaryWriter) WriteHeader(header *FileHeader) error {
	header.Magic = MagicNumber
	header.Version = Version
	return binary.Write(bw.w, bw.byteOrder, header)
}

// WriteSection compresses data and writes it length-prefixed.
func (bw *BinaryWriter) WriteSection(data []byte) error {
	packed := compress(data)
	if err := binary.Write(bw.w, bw.byteOrder, uint64(len(packed))); err != nil {
		return err
	}
	_, err := bw.w.Write(packed)
	return err
}

// WriteFloat32Section writes a float32 slice as one compressed section.
// Safety: validates alignment before the unsafe conversion.
func (bw *BinaryWriter) WriteFloat32Section(vec []float32) error {
	if len(vec) == 0 {
		return bw.WriteSection(nil)
	}
	if err := validateFloat32SliceAlignment(vec); err != nil {
		return err
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(vec)*4)
	return bw.WriteSection(byteSlice)
}

// WriteUint32Section writes a uint32 slice as one compressed section.
// Safety: validates alignment before the unsafe conversion.
func (bw *BinaryWriter) WriteUint32Section(slice []uint32) error {
	if len(slice) == 0 {
		return bw.WriteSection(nil)
	}
	if err := validateUint32SliceAlignment(slice); err != nil {
		return err
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*4)
	return bw.WriteSection(byteSlice)
}

// WriteInt8Section writes an int8 slice as one compressed section.
func (bw *BinaryWriter) WriteInt8Section(slice []int8) error {
	if len(slice) == 0 {
		return bw.WriteSection(nil)
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice))
	return bw.WriteSection(byteSlice)
}

// BinaryReader reads snapshot sections from the fixed binary layout.
type BinaryReader struct {
	r         io.Reader
	byteOrder binary.ByteOrder
}

// NewBinaryReader creates a new binary reader.
func NewBinaryReader(r io.Reader) *BinaryReader {
	return &BinaryReader{
		r:         r,
		byteOrder: binary.LittleEndian,
	}
}

// ReadHeader reads and validates the file header.
func (br *BinaryReader) ReadHeader() (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(br.r, br.byteOrder, &header); err != nil {
		return nil, err
	}
	if err := header.validate(); err != nil {
		if header.Magic != MagicNumber {
			return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
		}
		if header.Version != Version {
			return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
		}
		return nil, err
	}
	return &header, nil
}

// ReadSection reads one length-prefixed compressed section.
func (br *BinaryReader) ReadSection() ([]byte, error) {
	var packedLen uint64
	if err := binary.Read(br.r, br.byteOrder, &packedLen); err != nil {
		return nil, err
	}
	if packedLen == 0 {
		return nil, nil
	}
	packed := make([]byte, packedLen)
	if _, err := io.ReadFull(br.r, packed); err != nil {
		return nil, err
	}
	return decompress(packed)
}

// ReadFloat32Section reads one section and reinterprets it as float32s.
func (br *BinaryReader) ReadFloat32Section(count int) ([]float32, error) {
	data, err := br.readSectionExact(count * 4)
	if err != nil || count == 0 {
		return nil, err
	}
	vec := make([]float32, count)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), count*4), data)
	return vec, nil
}

// ReadUint32Section reads one section and reinterprets it as uint32s.
func (br *BinaryReader) ReadUint32Section(count int) ([]uint32, error) {
	data, err := br.readSectionExact(count * 4)
	if err != nil || count == 0 {
		return nil, err
	}
	slice := make([]uint32, count)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*4), data)
	return slice, nil
}

// ReadInt8Section reads one section and reinterprets it as int8s.
func (br *BinaryReader) ReadInt8Section(count int) ([]int8, error) {
	data, err := br.readSectionExact(count)
	if err != nil || count == 0 {
		return nil, err
	}
	slice := make([]int8, count)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count), data)
	return slice, nil
}

func (br *BinaryReader) readSectionExact(wantBytes int) ([]byte, error) {
	data, err := br.ReadSection()
	if err != nil {
		return nil, err
	}
	if len(data) != wantBytes {
		return nil, fmt.Errorf("section size mismatch: expected %d bytes, got %d", wantBytes, len(data))
	}
	return data, nil
}

// SaveToFile writes a snapshot atomically: the content goes to a temp file
// in the target directory which replaces the target by rename.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	// Match typical file permissions (best-effort).
	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	// Success: prevent deferred cleanup from removing the final file.
	tmpName = ""
	return nil
}

// LoadFromFile reads a snapshot through a buffered reader.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewReaderSize(f, 256*1024)
	return readFunc(buf)
}
