package ivf

import (
	"math"
	"math/rand"
	"sort"

	"github.com/papercomputeco/docquery/pkg/vector"
)

// train runs Lloyd's algorithm over prepared vectors and returns k centroids.
// Similarity is the inner product, which for cosine corpora operates on
// normalized vectors. The rng is seeded so training is reproducible.
func train(vectors [][]float32, k, maxIter int, seed int64) [][]float32 {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}
	dim := len(vectors[0])
	rng := rand.New(rand.NewSource(seed))

	centroids := make([][]float32, k)
	for i, p := range rng.Perm(n)[:k] {
		centroids[i] = append([]float32(nil), vectors[p]...)
	}

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	sums := make([][]float32, k)
	for i := range sums {
		sums[i] = make([]float32, dim)
	}
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearest(v, centroids)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		for j := range sums {
			clear(sums[j])
			counts[j] = 0
		}
		for i, v := range vectors {
			c := assignments[i]
			for d, f := range v {
				sums[c][d] += f
			}
			counts[c]++
		}

		for j := range centroids {
			if counts[j] == 0 {
				// Re-seed an empty cluster from a random point.
				copy(centroids[j], vectors[rng.Intn(n)])
				continue
			}
			scale := 1 / float32(counts[j])
			for d := range centroids[j] {
				centroids[j][d] = sums[j][d] * scale
			}
		}
	}

	return centroids
}

// nearest returns the index of the centroid most similar to v.
func nearest(v []float32, centroids [][]float32) int {
	best := -1
	bestScore := float32(math.Inf(-1))
	for j, c := range centroids {
		if s := vector.Dot(v, c); s > bestScore {
			best, bestScore = j, s
		}
	}
	return best
}

// closest returns the indices of the n centroids most similar to v.
func closest(v []float32, centroids [][]float32, n int) []int {
	type scored struct {
		id    int
		score float32
	}

	all := make([]scored, len(centroids))
	for j, c := range centroids {
		all[j] = scored{id: j, score: vector.Dot(v, c)}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	if n > len(all) {
		n = len(all)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = all[i].id
	}
	return out
}
