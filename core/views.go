// Package core holds the borrowed data views shared by the index packages.
//
// A view never owns its backing storage: the dataset and graph are supplied
// by a build or persistence collaborator and stay immutable for the lifetime
// of every search that reads them.
package core

import (
	"fmt"

	"github.com/hupe1980/cagra/distance"
)

// InvalidID marks an unused result slot. It is outside the valid node id
// range [0, N) for any dataset this module supports.
const InvalidID uint32 = 0xffffffff

// Dataset is a non-owning, row-major view over N vectors of Dim elements.
type Dataset interface {
	// Len returns the number of rows.
	Len() int

	// Dim returns the number of elements per row.
	Dim() int

	// ElemBits returns the storage width of one element in bits.
	ElemBits() int

	// Scorer returns a per-query distance function over row ids.
	// The query slice must stay unchanged while the scorer is in use.
	Scorer(m distance.Metric, query []float32) (func(id uint32) float32, error)
}

// FloatDataset is a Dataset over float32 rows.
type FloatDataset struct {
	data []float32
	n    int
	dim  int
}

// NewFloatDataset wraps a row-major float32 matrix.
// len(data) must be a multiple of dim.
func NewFloatDataset(data []float32, dim int) (*FloatDataset, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("core: invalid dimension %d", dim)
	}
	if len(data)%dim != 0 {
		return nil, fmt.Errorf("core: data length %d is not a multiple of dim %d", len(data), dim)
	}
	return &FloatDataset{data: data, n: len(data) / dim, dim: dim}, nil
}

func (d *FloatDataset) Len() int      { return d.n }
func (d *FloatDataset) Dim() int      { return d.dim }
func (d *FloatDataset) ElemBits() int { return 32 }

// Row returns the i-th vector. The slice aliases the backing storage and
// must be treated as read-only.
func (d *FloatDataset) Row(i uint32) []float32 {
	return d.data[int(i)*d.dim : int(i+1)*d.dim]
}

// Data returns the backing row-major matrix, read-only.
func (d *FloatDataset) Data() []float32 { return d.data }

func (d *FloatDataset) Scorer(m distance.Metric, query []float32) (func(id uint32) float32, error) {
	if len(query) != d.dim {
		return nil, fmt.Errorf("core: query dimension %d does not match dataset dimension %d", len(query), d.dim)
	}
	distFunc, err := distance.Provider(m)
	if err != nil {
		return nil, err
	}
	return func(id uint32) float32 {
		return distFunc(query, d.Row(id))
	}, nil
}

// Int8Dataset is a Dataset over int8 rows. Queries remain float32; the
// conversion happens inside the distance kernel.
type Int8Dataset struct {
	data []int8
	n    int
	dim  int
}

// NewInt8Dataset wraps a row-major int8 matrix.
// len(data) must be a multiple of dim.
func NewInt8Dataset(data []int8, dim int) (*Int8Dataset, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("core: invalid dimension %d", dim)
	}
	if len(data)%dim != 0 {
		return nil, fmt.Errorf("core: data length %d is not a multiple of dim %d", len(data), dim)
	}
	return &Int8Dataset{data: data, n: len(data) / dim, dim: dim}, nil
}

func (d *Int8Dataset) Len() int      { return d.n }
func (d *Int8Dataset) Dim() int      { return d.dim }
func (d *Int8Dataset) ElemBits() int { return 8 }

// Row returns the i-th vector, read-only.
func (d *Int8Dataset) Row(i uint32) []int8 {
	return d.data[int(i)*d.dim : int(i+1)*d.dim]
}

// Data returns the backing row-major matrix, read-only.
func (d *Int8Dataset) Data() []int8 { return d.data }

func (d *Int8Dataset) Scorer(m distance.Metric, query []float32) (func(id uint32) float32, error) {
	if len(query) != d.dim {
		return nil, fmt.Errorf("core: query dimension %d does not match dataset dimension %d", len(query), d.dim)
	}
	distFunc, err := distance.ProviderInt8(m)
	if err != nil {
		return nil, err
	}
	return func(id uint32) float32 {
		return distFunc(query, d.Row(id))
	}, nil
}

// Graph is a non-owning view over a fixed-degree proximity graph: N rows of
// Degree neighbor ids each.
type Graph struct {
	neighbors []uint32
	n         int
	degree    int
}

// NewGraph wraps a row-major neighbor matrix.
// len(neighbors) must be a multiple of degree.
func NewGraph(neighbors []uint32, degree int) (*Graph, error) {
	if degree <= 0 {
		return nil, fmt.Errorf("core: invalid graph degree %d", degree)
	}
	if len(neighbors)%degree != 0 {
		return nil, fmt.Errorf("core: neighbor length %d is not a multiple of degree %d", len(neighbors), degree)
	}
	return &Graph{neighbors: neighbors, n: len(neighbors) / degree, degree: degree}, nil
}

// Len returns the number of graph rows.
func (g *Graph) Len() int { return g.n }

// Degree returns the uniform out-degree.
func (g *Graph) Degree() int { return g.degree }

// Neighbors returns the neighbor ids of node i. The slice aliases the
// backing storage and must be treated as read-only.
func (g *Graph) Neighbors(i uint32) []uint32 {
	return g.neighbors[int(i)*g.degree : int(i+1)*g.degree]
}

// Data returns the backing row-major neighbor matrix, read-only.
func (g *Graph) Data() []uint32 { return g.neighbors }
