package cagra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/cagra/blobstore"
	"github.com/hupe1980/cagra/core"
	"github.com/hupe1980/cagra/distance"
	"github.com/hupe1980/cagra/persistence"
	"github.com/hupe1980/cagra/resource"
)

// snapshot captures the index content in its serialized form.
func (idx *Index) snapshot() (*persistence.Snapshot, error) {
	s := &persistence.Snapshot{
		Count:     idx.dataset.Len(),
		Dim:       idx.dataset.Dim(),
		Degree:    idx.graph.Degree(),
		GraphData: idx.graph.Data(),
	}

	switch m := idx.metric; m {
	case distance.MetricL2:
		s.Metric = persistence.MetricCodeL2
	case distance.MetricInnerProduct:
		s.Metric = persistence.MetricCodeInnerProduct
	default:
		return nil, fmt.Errorf("cagra: unsupported metric %v", m)
	}

	switch d := idx.dataset.(type) {
	case *core.FloatDataset:
		s.DType = persistence.DTypeFloat32
		s.FloatData = d.Data()
	case *core.Int8Dataset:
		s.DType = persistence.DTypeInt8
		s.Int8Data = d.Data()
	default:
		return nil, fmt.Errorf("cagra: dataset type %T cannot be snapshotted", idx.dataset)
	}

	return s, nil
}

func restore(s *persistence.Snapshot) (core.Dataset, *core.Graph, distance.Metric, error) {
	var metric distance.Metric
	switch s.Metric {
	case persistence.MetricCodeL2:
		metric = distance.MetricL2
	case persistence.MetricCodeInnerProduct:
		metric = distance.MetricInnerProduct
	default:
		return nil, nil, 0, persistence.ErrInvalidMetric
	}

	var (
		dataset core.Dataset
		err     error
	)
	switch s.DType {
	case persistence.DTypeFloat32:
		dataset, err = core.NewFloatDataset(s.FloatData, s.Dim)
	case persistence.DTypeInt8:
		dataset, err = core.NewInt8Dataset(s.Int8Data, s.Dim)
	default:
		return nil, nil, 0, persistence.ErrInvalidDType
	}
	if err != nil {
		return nil, nil, 0, err
	}

	graph, err := core.NewGraph(s.GraphData, s.Degree)
	if err != nil {
		return nil, nil, 0, err
	}

	return dataset, graph, metric, nil
}

// Save writes the index snapshot to filename atomically. Snapshot IO is
// throttled when a resource controller with an IO limit is configured.
func (idx *Index) Save(ctx context.Context, filename string) error {
	start := time.Now()
	var written int64

	err := idx.save(ctx, filename, &written)

	idx.opts.metricsCollector.RecordSnapshot(written, time.Since(start), err)
	idx.opts.logger.LogSnapshot(ctx, filename, err)
	return err
}

func (idx *Index) save(ctx context.Context, filename string, written *int64) error {
	if idx.closed.Load() {
		return ErrIndexClosed
	}

	s, err := idx.snapshot()
	if err != nil {
		return err
	}

	return persistence.SaveToFile(filename, func(w io.Writer) error {
		cw := &countingWriter{w: w}
		var out io.Writer = cw
		if rc := idx.opts.controller; rc != nil {
			out = resource.NewRateLimitedWriter(ctx, cw, rc)
		}
		err := persistence.Write(out, s)
		*written = cw.n
		return err
	})
}

// SaveToStore serializes the index and uploads it to the blob store under
// name.
func (idx *Index) SaveToStore(ctx context.Context, store blobstore.Store, name string) error {
	start := time.Now()

	data, err := idx.marshal()
	if err == nil {
		err = store.Put(ctx, name, data)
	}

	idx.opts.metricsCollector.RecordSnapshot(int64(len(data)), time.Since(start), err)
	idx.opts.logger.LogSnapshot(ctx, name, err)
	return err
}

func (idx *Index) marshal() ([]byte, error) {
	if idx.closed.Load() {
		return nil, ErrIndexClosed
	}
	s, err := idx.snapshot()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := persistence.Write(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads a snapshot file and reconstructs the index.
func Load(ctx context.Context, filename string, optFns ...Option) (*Index, error) {
	_ = ctx
	s, err := persistence.Load(filename)
	if err != nil {
		return nil, err
	}
	dataset, graph, metric, err := restore(s)
	if err != nil {
		return nil, err
	}
	return New(dataset, graph, metric, optFns...)
}

// LoadFromStore downloads a snapshot from the blob store and reconstructs
// the index.
func LoadFromStore(ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*Index, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return nil, err
	}

	s, err := persistence.Read(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	dataset, graph, metric, err := restore(s)
	if err != nil {
		return nil, err
	}
	return New(dataset, graph, metric, optFns...)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
