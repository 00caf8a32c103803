// Package kmeans trains the coarse quantizer behind the IVF-flat index.
package kmeans

import (
	"math"
	"math/rand"
	"sort"

	"github.com/hupe1980/cagra/distance"
)

// Train runs Lloyd's algorithm over the row-major vectors and returns k
// flattened centroids (k * dim). The rng drives centroid initialization and
// empty-cluster reseeding, so training is deterministic for a fixed seed.
func Train(vectors []float32, dim, k int, metric distance.Metric, maxIter int, rng *rand.Rand) ([]float32, error) {
	n := len(vectors) / dim
	if n < k {
		return nil, nil // Not enough vectors to cluster
	}

	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	centroids := make([]float32, k*dim)
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		copy(centroids[i*dim:(i+1)*dim], vectors[perm[i]*dim:(perm[i]+1)*dim])
	}

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		changed := false

		// Assignment step
		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			bestCluster := -1
			minDist := float32(math.MaxFloat32)
			for j := 0; j < k; j++ {
				d := distFunc(vec, centroids[j*dim:(j+1)*dim])
				if d < minDist {
					minDist = d
					bestCluster = j
				}
			}
			if assignments[i] != bestCluster {
				assignments[i] = bestCluster
				changed = true
			}
		}

		if !changed {
			break
		}

		// Update step
		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < n; i++ {
			cluster := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[cluster*dim+d] += vec[d]
			}
			counts[cluster]++
		}
		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1.0 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				// Reseed empty clusters from a random point.
				idx := rng.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	return centroids, nil
}

// Assign finds the closest centroid for a vector.
func Assign(vec []float32, centroids []float32, dim int, metric distance.Metric) (int, error) {
	distFunc, err := distance.Provider(metric)
	if err != nil {
		return -1, err
	}

	k := len(centroids) / dim
	bestCluster := -1
	minDist := float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := distFunc(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			bestCluster = j
		}
	}
	return bestCluster, nil
}

type centroidDist struct {
	id   int
	dist float32
}

// Closest returns the indices of the n closest centroids to the query.
func Closest(query []float32, centroids []float32, dim, n int, metric distance.Metric) ([]int, error) {
	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	k := len(centroids) / dim
	if n > k {
		n = k
	}

	dists := make([]centroidDist, k)
	for i := 0; i < k; i++ {
		dists[i] = centroidDist{id: i, dist: distFunc(query, centroids[i*dim:(i+1)*dim])}
	}
	sort.Slice(dists, func(i, j int) bool {
		if dists[i].dist != dists[j].dist {
			return dists[i].dist < dists[j].dist
		}
		return dists[i].id < dists[j].id
	})

	result := make([]int, n)
	for i := 0; i < n; i++ {
		result[i] = dists[i].id
	}
	return result, nil
}
