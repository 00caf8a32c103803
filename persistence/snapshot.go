package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Snapshot is the serialized form of an index: shape metadata plus the raw
// dataset and graph matrices. Exactly one of FloatData and Int8Data is set,
// matching DType.
type Snapshot struct {
	DType  uint8
	Metric uint8
	Count  int
	Dim    int
	Degree int

	FloatData []float32
	Int8Data  []int8
	GraphData []uint32
}

func (s *Snapshot) validate() error {
	switch s.DType {
	case DTypeFloat32:
		if len(s.FloatData) != s.Count*s.Dim {
			return fmt.Errorf("float data length %d does not match %d x %d", len(s.FloatData), s.Count, s.Dim)
		}
	case DTypeInt8:
		if len(s.Int8Data) != s.Count*s.Dim {
			return fmt.Errorf("int8 data length %d does not match %d x %d", len(s.Int8Data), s.Count, s.Dim)
		}
	default:
		return ErrInvalidDType
	}
	if len(s.GraphData) != s.Count*s.Degree {
		return fmt.Errorf("graph data length %d does not match %d x %d", len(s.GraphData), s.Count, s.Degree)
	}
	return nil
}

// Write serializes the snapshot: header, compressed dataset section,
// compressed graph section, CRC32 trailer over everything before it.
func Write(w io.Writer, s *Snapshot) error {
	if err := s.validate(); err != nil {
		return err
	}

	cw := NewChecksumWriter(w)
	bw := NewBinaryWriter(cw)

	header := FileHeader{
		DType:  s.DType,
		Metric: s.Metric,
		Count:  uint64(s.Count),
		Dim:    uint32(s.Dim),
		Degree: uint32(s.Degree),
	}
	if err := bw.WriteHeader(&header); err != nil {
		return err
	}

	switch s.DType {
	case DTypeFloat32:
		if err := bw.WriteFloat32Section(s.FloatData); err != nil {
			return err
		}
	case DTypeInt8:
		if err := bw.WriteInt8Section(s.Int8Data); err != nil {
			return err
		}
	}

	if err := bw.WriteUint32Section(s.GraphData); err != nil {
		return err
	}

	// Trailer bypasses the checksum writer: it covers, not includes, itself.
	return binary.Write(w, binary.LittleEndian, cw.Sum())
}

// Read deserializes and verifies a snapshot.
func Read(r io.Reader) (*Snapshot, error) {
	cr := NewChecksumReader(r)
	br := NewBinaryReader(cr)

	header, err := br.ReadHeader()
	if err != nil {
		return nil, err
	}

	s := &Snapshot{
		DType:  header.DType,
		Metric: header.Metric,
		Count:  int(header.Count),
		Dim:    int(header.Dim),
		Degree: int(header.Degree),
	}

	switch s.DType {
	case DTypeFloat32:
		s.FloatData, err = br.ReadFloat32Section(s.Count * s.Dim)
	case DTypeInt8:
		s.Int8Data, err = br.ReadInt8Section(s.Count * s.Dim)
	}
	if err != nil {
		return nil, err
	}

	s.GraphData, err = br.ReadUint32Section(s.Count * s.Degree)
	if err != nil {
		return nil, err
	}

	var expected uint32
	if err := binary.Read(r, binary.LittleEndian, &expected); err != nil {
		return nil, err
	}
	if err := cr.Verify(expected); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes the snapshot to filename atomically.
func Save(filename string, s *Snapshot) error {
	return SaveToFile(filename, func(w io.Writer) error {
		return Write(w, s)
	})
}

// Load reads and verifies the snapshot at filename.
func Load(filename string) (*Snapshot, error) {
	var s *Snapshot
	err := LoadFromFile(filename, func(r io.Reader) error {
		var err error
		s, err = Read(r)
		return err
	})
	return s, err
}
