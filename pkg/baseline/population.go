// Package baseline maintains running distributional summaries over named
// metric streams. Extractors normalize against snapshots of these
// populations, and the reporting layer exports their summaries.
//
// Appends use Welford's incremental update, so mean and variance stay
// numerically stable at O(1) cost per observation. Percentiles are exact:
// they come from a maintained sorted copy of the observations, which is
// fine at the expected population sizes (hundreds to low thousands).
package baseline

import (
	"math"
	"sort"
	"sync"
)

// Standard population names observed by the scoring pipeline.
const (
	PopEmbeddingNorms   = "embedding_norms"
	PopDetectionLatency = "detection_latency_ms"
	PopDriftScores      = "drift_score"
	PopCompositeScores  = "composite_score"
)

// DefaultOutlierZ is the |z| threshold beyond which an observation is
// classified as an outlier, unless policy overrides it.
const DefaultOutlierZ = 3.0

// Population is an append-only stream of scalar observations with
// incrementally maintained summary statistics. Appends are serialized;
// readers take immutable snapshots and never observe a half-applied
// update.
type Population struct {
	mu     sync.RWMutex
	name   string
	sorted []float64 // ascending order, one entry per observation
	count  int
	mean   float64
	m2     float64 // sum of squared deviations (Welford)
	min    float64
	max    float64
}

// NewPopulation creates an empty named population.
func NewPopulation(name string) *Population {
	return &Population{name: name}
}

// Name returns the metric stream name.
func (p *Population) Name() string { return p.name }

// Append records one observation.
func (p *Population) Append(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	delta := v - p.mean
	p.mean += delta / float64(p.count)
	p.m2 += delta * (v - p.mean)

	if p.count == 1 {
		p.min, p.max = v, v
	} else {
		if v < p.min {
			p.min = v
		}
		if v > p.max {
			p.max = v
		}
	}

	i := sort.SearchFloat64s(p.sorted, v)
	p.sorted = append(p.sorted, 0)
	copy(p.sorted[i+1:], p.sorted[i:])
	p.sorted[i] = v
}

// Reset discards all observations, e.g. on a reference-window rollover.
func (p *Population) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sorted = nil
	p.count = 0
	p.mean = 0
	p.m2 = 0
	p.min = 0
	p.max = 0
}

// Len returns the number of observations.
func (p *Population) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.count
}

// Snapshot returns an immutable view of the population as of the latest
// completed append. Snapshots are safe to use concurrently with appends.
func (p *Population) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sorted := make([]float64, len(p.sorted))
	copy(sorted, p.sorted)

	var variance float64
	if p.count > 1 {
		variance = p.m2 / float64(p.count-1)
	}

	return Snapshot{
		Population: p.name,
		Count:      p.count,
		Mean:       p.mean,
		Variance:   variance,
		StdDev:     math.Sqrt(variance),
		Min:        p.min,
		Max:        p.max,
		sorted:     sorted,
	}
}

// Snapshot is a point-in-time summary of a population. All query methods
// on an empty snapshot fail with EmptyPopulationError rather than
// returning NaN.
type Snapshot struct {
	Population string
	Count      int
	Mean       float64
	Variance   float64 // sample variance
	StdDev     float64
	Min        float64
	Max        float64

	sorted []float64
}

func (s Snapshot) empty() error {
	if s.Count == 0 {
		return &EmptyPopulationError{Population: s.Population}
	}
	return nil
}

// Percentile returns the value at rank r (e.g. 25, 50, 95) using linear
// interpolation between order statistics. A single-observation population
// returns that observation for every rank.
func (s Snapshot) Percentile(r float64) (float64, error) {
	if err := s.empty(); err != nil {
		return 0, err
	}
	if r <= 0 {
		return s.sorted[0], nil
	}
	if r >= 100 {
		return s.sorted[len(s.sorted)-1], nil
	}

	k := float64(len(s.sorted)-1) * r / 100
	f := int(math.Floor(k))
	c := f + 1
	if c >= len(s.sorted) {
		return s.sorted[len(s.sorted)-1], nil
	}
	return s.sorted[f]*(float64(c)-k) + s.sorted[c]*(k-float64(f)), nil
}

// Median is the 50th percentile.
func (s Snapshot) Median() (float64, error) {
	return s.Percentile(50)
}

// ZScore returns how many standard deviations x sits from the mean.
// A zero-spread population yields z = 0 for any x.
func (s Snapshot) ZScore(x float64) (float64, error) {
	if err := s.empty(); err != nil {
		return 0, err
	}
	if s.StdDev == 0 {
		return 0, nil
	}
	return (x - s.Mean) / s.StdDev, nil
}

// IsOutlier classifies x against the |z| threshold and returns the
// computed z-score alongside the classification.
func (s Snapshot) IsOutlier(x, zThreshold float64) (bool, float64, error) {
	z, err := s.ZScore(x)
	if err != nil {
		return false, 0, err
	}
	return math.Abs(z) > zThreshold, z, nil
}

// Values returns the sorted observations. The returned slice is owned by
// the snapshot and must not be modified.
func (s Snapshot) Values() []float64 {
	return s.sorted
}
