package ivfflat

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/cagra/core"
	"github.com/hupe1980/cagra/distance"
	"github.com/hupe1980/cagra/persistence"
)

const (
	// fileMagic identifies IVF-flat snapshot files (ASCII: "IVF1").
	fileMagic   = 0x49564631
	fileVersion = 0x00010000
)

// fileHeader is the fixed little-endian header of an IVF-flat snapshot.
type fileHeader struct {
	Magic    uint32
	Version  uint32
	Metric   uint8 // persistence metric code
	Padding1 [7]byte
	Count    uint64
	Dim      uint32
	NLists   uint32
	Reserved [32]byte
}

// Write serializes the index: header and sections wrapped in a running
// CRC32, followed by the checksum trailer.
func (ix *Index) Write(w io.Writer) error {
	var metricCode uint8
	switch ix.metric {
	case distance.MetricL2:
		metricCode = persistence.MetricCodeL2
	case distance.MetricInnerProduct:
		metricCode = persistence.MetricCodeInnerProduct
	default:
		return fmt.Errorf("ivfflat: unsupported metric %v", ix.metric)
	}

	cw := persistence.NewChecksumWriter(w)

	header := fileHeader{
		Magic:   fileMagic,
		Version: fileVersion,
		Metric:  metricCode,
		Count:   uint64(ix.dataset.Len()),
		Dim:     uint32(ix.dataset.Dim()),
		NLists:  uint32(ix.nlist),
	}
	if err := binary.Write(cw, binary.LittleEndian, &header); err != nil {
		return err
	}

	// Inverted lists are flattened: per-list lengths then concatenated ids.
	lens := make([]uint32, ix.nlist)
	flat := make([]uint32, 0, ix.dataset.Len())
	for i, list := range ix.lists {
		lens[i] = uint32(len(list))
		flat = append(flat, list...)
	}

	bw := persistence.NewBinaryWriter(cw)
	if err := bw.WriteFloat32Section(ix.centroids); err != nil {
		return err
	}
	if err := bw.WriteUint32Section(lens); err != nil {
		return err
	}
	if err := bw.WriteUint32Section(flat); err != nil {
		return err
	}
	if err := bw.WriteFloat32Section(ix.dataset.Data()); err != nil {
		return err
	}

	// Trailer goes to the raw writer so it is excluded from the sum.
	return binary.Write(w, binary.LittleEndian, cw.Sum())
}

// Read deserializes an index written by Write and verifies its checksum.
func Read(r io.Reader) (*Index, error) {
	cr := persistence.NewChecksumReader(r)

	var header fileHeader
	if err := binary.Read(cr, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != fileMagic {
		return nil, fmt.Errorf("%w: got 0x%08x", persistence.ErrInvalidMagic, header.Magic)
	}
	if header.Version != fileVersion {
		return nil, fmt.Errorf("%w: got 0x%08x", persistence.ErrInvalidVersion, header.Version)
	}

	var metric distance.Metric
	switch header.Metric {
	case persistence.MetricCodeL2:
		metric = distance.MetricL2
	case persistence.MetricCodeInnerProduct:
		metric = distance.MetricInnerProduct
	default:
		return nil, persistence.ErrInvalidMetric
	}

	count := int(header.Count)
	dim := int(header.Dim)
	nlist := int(header.NLists)
	if count <= 0 || dim <= 0 || nlist <= 0 {
		return nil, fmt.Errorf("ivfflat: invalid snapshot shape count=%d dim=%d nlists=%d", count, dim, nlist)
	}

	br := persistence.NewBinaryReader(cr)

	centroids, err := br.ReadFloat32Section(nlist * dim)
	if err != nil {
		return nil, err
	}
	lens, err := br.ReadUint32Section(nlist)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, l := range lens {
		total += int(l)
	}
	if total != count {
		return nil, fmt.Errorf("ivfflat: list lengths sum to %d, expected %d", total, count)
	}
	flat, err := br.ReadUint32Section(total)
	if err != nil {
		return nil, err
	}
	data, err := br.ReadFloat32Section(count * dim)
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

	dataset, err := core.NewFloatDataset(data, dim)
	if err != nil {
		return nil, err
	}

	lists := make([][]uint32, nlist)
	off := 0
	for i, l := range lens {
		lists[i] = flat[off : off+int(l)]
		off += int(l)
	}

	return &Index{
		dataset:   dataset,
		metric:    metric,
		nlist:     nlist,
		centroids: centroids,
		lists:     lists,
	}, nil
}

// Save writes the index snapshot to filename atomically.
func (ix *Index) Save(filename string) error {
	return persistence.SaveToFile(filename, ix.Write)
}

// Load reads a snapshot file written by Save.
func Load(filename string) (*Index, error) {
	var ix *Index
	err := persistence.LoadFromFile(filename, func(r io.Reader) error {
		var readErr error
		ix, readErr = Read(r)
		return readErr
	})
	return ix, err
}
