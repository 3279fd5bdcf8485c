package clustering

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"CommentTrends/internal/config"
	"CommentTrends/internal/domain"
)

// dataset is a read-only set of points k-means can partition.
type dataset interface {
	Len() int
	Dim() int
	// SqNorm returns the squared L2 norm of row i.
	SqNorm(i int) float64
	// Dot returns the inner product of row i with a dense vector.
	Dot(i int, dense []float64) float64
	// AddTo accumulates row i into acc.
	AddTo(i int, acc []float64)
	// Key identifies identical rows.
	Key(i int) string
}

type sparseVec struct {
	idx []int
	val []float64
}

func (v *sparseVec) sortByIndex() {
	sort.Sort(byIndex{v})
}

func (v *sparseVec) normalize() {
	var sum float64
	for _, x := range v.val {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v.val {
		v.val[i] /= norm
	}
}

type byIndex struct{ v *sparseVec }

func (b byIndex) Len() int           { return len(b.v.idx) }
func (b byIndex) Less(i, j int) bool { return b.v.idx[i] < b.v.idx[j] }
func (b byIndex) Swap(i, j int) {
	b.v.idx[i], b.v.idx[j] = b.v.idx[j], b.v.idx[i]
	b.v.val[i], b.v.val[j] = b.v.val[j], b.v.val[i]
}

type sparseRows struct {
	dim  int
	rows []sparseVec
}

func (s sparseRows) Len() int { return len(s.rows) }
func (s sparseRows) Dim() int { return s.dim }

func (s sparseRows) SqNorm(i int) float64 {
	var sum float64
	for _, x := range s.rows[i].val {
		sum += x * x
	}
	return sum
}

func (s sparseRows) Dot(i int, dense []float64) float64 {
	var sum float64
	row := s.rows[i]
	for k, j := range row.idx {
		sum += row.val[k] * dense[j]
	}
	return sum
}

func (s sparseRows) AddTo(i int, acc []float64) {
	row := s.rows[i]
	for k, j := range row.idx {
		acc[j] += row.val[k]
	}
}

func (s sparseRows) Key(i int) string {
	row := s.rows[i]
	var b strings.Builder
	for k, j := range row.idx {
		b.WriteString(strconv.Itoa(j))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(row.val[k], 'g', -1, 64))
		b.WriteByte(';')
	}
	return b.String()
}

type denseRows [][]float64

func (d denseRows) Len() int { return len(d) }

func (d denseRows) Dim() int {
	if len(d) == 0 {
		return 0
	}
	return len(d[0])
}

func (d denseRows) SqNorm(i int) float64 {
	var sum float64
	for _, x := range d[i] {
		sum += x * x
	}
	return sum
}

func (d denseRows) Dot(i int, dense []float64) float64 {
	var sum float64
	for j, x := range d[i] {
		sum += x * dense[j]
	}
	return sum
}

func (d denseRows) AddTo(i int, acc []float64) {
	for j, x := range d[i] {
		acc[j] += x
	}
}

func (d denseRows) Key(i int) string {
	var b strings.Builder
	for _, x := range d[i] {
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		b.WriteByte(';')
	}
	return b.String()
}

// KMeans partitions points with Lloyd iterations from k-means++ seeds.
type KMeans struct {
	Seed    uint64
	NInit   int
	MaxIter int
}

// KMeansFromConfig copies the k-means settings out of clustering config.
func KMeansFromConfig(cfg config.ClusteringConfig) KMeans {
	return KMeans{Seed: cfg.RandomSeed(), NInit: cfg.NInit, MaxIter: cfg.MaxIter}
}

// Fit is the best of NInit k-means runs.
type Fit struct {
	Labels    []int
	Centroids [][]float64
	Inertia   float64
}

// Fit runs NInit attempts and keeps the one with the lowest inertia.
// Every cluster id in [0, k) is used by at least one point.
func (km KMeans) Fit(ctx context.Context, data dataset, k int) (Fit, error) {
	n := data.Len()
	if k <= 0 {
		return Fit{}, fmt.Errorf("n_clusters must be positive, got %d", k)
	}
	if n == 0 {
		return Fit{}, &domain.InsufficientDataError{Reason: "no documents to cluster"}
	}

	distinct := map[string]struct{}{}
	for i := 0; i < n && len(distinct) < k; i++ {
		distinct[data.Key(i)] = struct{}{}
	}
	if len(distinct) < k {
		return Fit{}, &domain.InsufficientDataError{
			Reason: fmt.Sprintf("%d distinct documents for %d clusters", len(distinct), k),
		}
	}

	attempts := km.NInit
	if attempts < 1 {
		attempts = 1
	}
	maxIter := km.MaxIter
	if maxIter < 1 {
		maxIter = 300
	}

	var best Fit
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Fit{}, err
		}
		rng := rand.New(rand.NewPCG(km.Seed, uint64(attempt)))
		fit, err := lloyd(ctx, data, k, maxIter, rng)
		if err != nil {
			return Fit{}, err
		}
		if attempt == 0 || fit.Inertia < best.Inertia {
			best = fit
		}
	}
	return best, nil
}

func lloyd(ctx context.Context, data dataset, k, maxIter int, rng *rand.Rand) (Fit, error) {
	n, dim := data.Len(), data.Dim()
	norms := make([]float64, n)
	for i := range norms {
		norms[i] = data.SqNorm(i)
	}

	centroids := seedPlusPlus(data, norms, k, rng)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	dists := make([]float64, n)

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return Fit{}, err
		}

		cNorms := centroidNorms(centroids)
		changed := false
		for i := 0; i < n; i++ {
			bestC, bestD := 0, math.Inf(1)
			for c := range centroids {
				d := sqDist(data, i, norms[i], centroids[c], cNorms[c])
				if d < bestD {
					bestC, bestD = c, d
				}
			}
			if labels[i] != bestC {
				labels[i] = bestC
				changed = true
			}
			dists[i] = bestD
		}

		if fillEmpty(labels, dists, k) {
			changed = true
		}
		centroids = recompute(data, labels, k, dim)

		if !changed {
			break
		}
	}

	cNorms := centroidNorms(centroids)
	var inertia float64
	for i := 0; i < n; i++ {
		inertia += sqDist(data, i, norms[i], centroids[labels[i]], cNorms[labels[i]])
	}
	return Fit{Labels: labels, Centroids: centroids, Inertia: inertia}, nil
}

// seedPlusPlus picks k initial centroids with D² sampling.
func seedPlusPlus(data dataset, norms []float64, k int, rng *rand.Rand) [][]float64 {
	n, dim := data.Len(), data.Dim()
	centroids := make([][]float64, 0, k)

	first := make([]float64, dim)
	data.AddTo(rng.IntN(n), first)
	centroids = append(centroids, first)

	closest := make([]float64, n)
	for i := range closest {
		closest[i] = math.Inf(1)
	}

	for len(centroids) < k {
		last := centroids[len(centroids)-1]
		lastNorm := dot(last, last)
		var total float64
		for i := 0; i < n; i++ {
			if d := sqDist(data, i, norms[i], last, lastNorm); d < closest[i] {
				closest[i] = d
			}
			total += closest[i]
		}

		pick := -1
		if total > 0 {
			target := rng.Float64() * total
			var acc float64
			for i := 0; i < n; i++ {
				acc += closest[i]
				if acc >= target && closest[i] > 0 {
					pick = i
					break
				}
			}
		}
		if pick < 0 {
			for i := n - 1; i >= 0; i-- {
				if closest[i] > 0 {
					pick = i
					break
				}
			}
		}
		if pick < 0 {
			pick = rng.IntN(n)
		}

		next := make([]float64, dim)
		data.AddTo(pick, next)
		centroids = append(centroids, next)
	}
	return centroids
}

// fillEmpty moves the point farthest from its centroid into each empty
// cluster, taking only from clusters with more than one member.
func fillEmpty(labels []int, dists []float64, k int) bool {
	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}

	moved := false
	for c := 0; c < k; c++ {
		if sizes[c] > 0 {
			continue
		}
		far, farD := -1, -1.0
		for i, l := range labels {
			if sizes[l] > 1 && dists[i] > farD {
				far, farD = i, dists[i]
			}
		}
		if far < 0 {
			continue
		}
		sizes[labels[far]]--
		labels[far] = c
		sizes[c] = 1
		dists[far] = 0
		moved = true
	}
	return moved
}

func recompute(data dataset, labels []int, k, dim int) [][]float64 {
	centroids := make([][]float64, k)
	sizes := make([]int, k)
	for c := range centroids {
		centroids[c] = make([]float64, dim)
	}
	for i, l := range labels {
		data.AddTo(i, centroids[l])
		sizes[l]++
	}
	for c := range centroids {
		if sizes[c] == 0 {
			continue
		}
		inv := 1 / float64(sizes[c])
		for j := range centroids[c] {
			centroids[c][j] *= inv
		}
	}
	return centroids
}

func centroidNorms(centroids [][]float64) []float64 {
	out := make([]float64, len(centroids))
	for c, v := range centroids {
		out[c] = dot(v, v)
	}
	return out
}

func sqDist(data dataset, i int, rowNorm float64, centroid []float64, centroidNorm float64) float64 {
	d := rowNorm - 2*data.Dot(i, centroid) + centroidNorm
	if d < 0 {
		return 0
	}
	return d
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
