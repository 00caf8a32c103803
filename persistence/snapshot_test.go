package persistence

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(t *testing.T, n, dim, degree int) *Snapshot {
	t.Helper()

	rng := rand.New(rand.NewSource(42))

	data := make([]float32, n*dim)
	for i := range data {
		data[i] = rng.Float32()
	}
	graph := make([]uint32, n*degree)
	for i := range graph {
		graph[i] = uint32(rng.Intn(n))
	}

	return &Snapshot{
		DType:     DTypeFloat32,
		Metric:    MetricCodeL2,
		Count:     n,
		Dim:       dim,
		Degree:    degree,
		FloatData: data,
		GraphData: graph,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := testSnapshot(t, 100, 8, 4)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))

	got, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, s.DType, got.DType)
	assert.Equal(t, s.Metric, got.Metric)
	assert.Equal(t, s.Count, got.Count)
	assert.Equal(t, s.Dim, got.Dim)
	assert.Equal(t, s.Degree, got.Degree)
	assert.Equal(t, s.FloatData, got.FloatData)
	assert.Equal(t, s.GraphData, got.GraphData)
}

func TestSnapshotRoundTripInt8(t *testing.T) {
	n, dim, degree := 50, 16, 8
	rng := rand.New(rand.NewSource(7))

	data := make([]int8, n*dim)
	for i := range data {
		data[i] = int8(rng.Intn(256) - 128)
	}
	graph := make([]uint32, n*degree)
	for i := range graph {
		graph[i] = uint32(rng.Intn(n))
	}

	s := &Snapshot{
		DType:     DTypeInt8,
		Metric:    MetricCodeInnerProduct,
		Count:     n,
		Dim:       dim,
		Degree:    degree,
		Int8Data:  data,
		GraphData: graph,
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.Int8Data, got.Int8Data)
	assert.Equal(t, s.GraphData, got.GraphData)
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	s := testSnapshot(t, 64, 4, 8)
	path := filepath.Join(t.TempDir(), "index.cagra")

	require.NoError(t, Save(path, s))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.FloatData, got.FloatData)
	assert.Equal(t, s.GraphData, got.GraphData)
}

func TestSnapshotCorruptionDetected(t *testing.T) {
	s := testSnapshot(t, 32, 4, 4)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))

	// Flip a byte inside the compressed payload region.
	raw := buf.Bytes()
	raw[80] ^= 0xff

	_, err := Read(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestSnapshotChecksumMismatch(t *testing.T) {
	s := testSnapshot(t, 32, 4, 4)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))

	// Flip a header byte that is not validated structurally.
	raw := buf.Bytes()
	raw[40] ^= 0x01 // inside Reserved

	_, err := Read(bytes.NewReader(raw))
	require.Error(t, err)
	assert.True(t, IsChecksumMismatch(err))
}

func TestSnapshotInvalidMagic(t *testing.T) {
	raw := make([]byte, 128)
	_, err := Read(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestSnapshotInvalidShape(t *testing.T) {
	s := testSnapshot(t, 10, 4, 4)
	s.FloatData = s.FloatData[:len(s.FloatData)-1]

	var buf bytes.Buffer
	assert.Error(t, Write(&buf, s))
}

func TestSnapshotValidateDType(t *testing.T) {
	s := testSnapshot(t, 10, 4, 4)
	s.DType = 9

	var buf bytes.Buffer
	assert.ErrorIs(t, Write(&buf, s), ErrInvalidDType)
}
