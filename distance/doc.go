// Package distance implements vector distance metrics shared by the graph
// and IVF-flat indexes.
//
// The search core is agnostic to the metric beyond requiring a total order
// by distance, so similarity metrics (inner product) are exposed negated.
package distance
