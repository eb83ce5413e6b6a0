package baseline

import (
	"math"
	"math/rand"
	"sync"
	"testing"
)

const relTol = 1e-9

func relClose(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= relTol*scale
}

func TestEmptyPopulation(t *testing.T) {
	snap := NewPopulation("empty").Snapshot()

	if _, err := snap.Percentile(50); !IsEmptyPopulation(err) {
		t.Fatalf("expected EmptyPopulationError, got %v", err)
	}
	if _, err := snap.ZScore(1.0); !IsEmptyPopulation(err) {
		t.Fatalf("expected EmptyPopulationError, got %v", err)
	}
	if _, err := snap.Report(DefaultOutlierZ); !IsEmptyPopulation(err) {
		t.Fatalf("expected EmptyPopulationError, got %v", err)
	}
}

func TestSingleObservation(t *testing.T) {
	p := NewPopulation("single")
	p.Append(42.0)
	snap := p.Snapshot()

	if snap.StdDev != 0 {
		t.Errorf("stddev of single observation should be 0, got %f", snap.StdDev)
	}
	for _, rank := range []float64{25, 50, 75, 90, 95, 99} {
		v, err := snap.Percentile(rank)
		if err != nil {
			t.Fatalf("p%.0f: %v", rank, err)
		}
		if v != 42.0 {
			t.Errorf("p%.0f of single observation should be 42, got %f", rank, v)
		}
	}
}

func TestLatencyScenario(t *testing.T) {
	// Population of latencies [30,35,40,45,50]: mean=40, median=40,
	// p95 interpolated between 45 and 50.
	p := NewPopulation(PopDetectionLatency)
	for _, v := range []float64{30, 35, 40, 45, 50} {
		p.Append(v)
	}
	snap := p.Snapshot()

	if !relClose(snap.Mean, 40) {
		t.Errorf("mean = %f, want 40", snap.Mean)
	}
	median, err := snap.Median()
	if err != nil {
		t.Fatal(err)
	}
	if !relClose(median, 40) {
		t.Errorf("median = %f, want 40", median)
	}
	p95, err := snap.Percentile(95)
	if err != nil {
		t.Fatal(err)
	}
	if p95 <= 45 || p95 >= 50 {
		t.Errorf("p95 = %f, want interpolated in (45, 50)", p95)
	}
	// k = 4*0.95 = 3.8 -> 45*0.2 + 50*0.8 = 49
	if !relClose(p95, 49) {
		t.Errorf("p95 = %f, want 49", p95)
	}
}

func TestPercentilesMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := NewPopulation("random")
	for i := 0; i < 500; i++ {
		p.Append(rng.NormFloat64()*10 + 100)
	}
	snap := p.Snapshot()

	prev := math.Inf(-1)
	for _, rank := range []float64{50, 75, 90, 95, 99} {
		v, err := snap.Percentile(rank)
		if err != nil {
			t.Fatal(err)
		}
		if v < prev {
			t.Errorf("p%.0f = %f < previous percentile %f", rank, v, prev)
		}
		prev = v
	}
}

func TestMedianExactForOddSizes(t *testing.T) {
	p := NewPopulation("odd")
	for _, v := range []float64{9, 1, 7, 3, 5} {
		p.Append(v)
	}
	median, err := p.Snapshot().Median()
	if err != nil {
		t.Fatal(err)
	}
	if median != 5 {
		t.Errorf("median = %f, want exact middle value 5", median)
	}
}

func TestIncrementalMatchesReplay(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := NewPopulation("replay")
	var values []float64
	for i := 0; i < 2000; i++ {
		v := rng.ExpFloat64() * 250
		values = append(values, v)
		p.Append(v)
	}
	snap := p.Snapshot()

	// Recompute mean/variance from scratch.
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	variance := sq / float64(len(values)-1)

	if !relClose(snap.Mean, mean) {
		t.Errorf("incremental mean %.12f != replayed mean %.12f", snap.Mean, mean)
	}
	if !relClose(snap.Variance, variance) {
		t.Errorf("incremental variance %.12f != replayed variance %.12f", snap.Variance, variance)
	}
}

func TestOutlierClassification(t *testing.T) {
	p := NewPopulation("outliers")
	for i := 0; i < 100; i++ {
		p.Append(10.0 + float64(i%5)) // tight band 10..14
	}
	p.Append(500.0)
	snap := p.Snapshot()

	isOut, z, err := snap.IsOutlier(500.0, DefaultOutlierZ)
	if err != nil {
		t.Fatal(err)
	}
	if !isOut {
		t.Errorf("500 should be an outlier, z = %f", z)
	}
	isOut, _, err = snap.IsOutlier(12.0, DefaultOutlierZ)
	if err != nil {
		t.Fatal(err)
	}
	if isOut {
		t.Error("in-band value misclassified as outlier")
	}

	report, err := snap.Report(DefaultOutlierZ)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Outliers) == 0 {
		t.Error("report should flag the planted outlier")
	}
	for _, o := range report.Outliers {
		if math.Abs(o.ZScore) <= DefaultOutlierZ {
			t.Errorf("reported outlier %f has |z| %f within threshold", o.Value, o.ZScore)
		}
	}
}

func TestReportFieldConsistency(t *testing.T) {
	p := NewPopulation(PopDriftScores)
	for _, v := range []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8} {
		p.Append(v)
	}
	report, err := p.Snapshot().Report(DefaultOutlierZ)
	if err != nil {
		t.Fatal(err)
	}

	if report.Median != report.P50 {
		t.Error("median must equal p50")
	}
	if !relClose(report.IQR, report.P75-report.P25) {
		t.Error("iqr must equal p75-p25")
	}
	if !relClose(report.Range, report.Max-report.Min) {
		t.Error("range must equal max-min")
	}
	if report.P50 > report.P75 || report.P75 > report.P90 || report.P90 > report.P95 || report.P95 > report.P99 {
		t.Error("percentiles must be non-decreasing")
	}
}

func TestCompareCohensD(t *testing.T) {
	left := NewPopulation("reference")
	right := NewPopulation("current")
	for i := 0; i < 50; i++ {
		left.Append(100 + float64(i%10))
		right.Append(140 + float64(i%10))
	}

	c, err := Compare(left.Snapshot(), right.Snapshot(), DefaultOutlierZ)
	if err != nil {
		t.Fatal(err)
	}
	if c.MeanDiff >= 0 {
		t.Errorf("left mean should be below right mean, diff = %f", c.MeanDiff)
	}
	if c.CohensD >= 0 {
		t.Errorf("Cohen's d should be negative, got %f", c.CohensD)
	}
	if math.Abs(c.CohensD) < 2 {
		t.Errorf("shift of 40 against stddev ~3 should be a large effect, d = %f", c.CohensD)
	}
}

func TestConcurrentAppendsAndSnapshots(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 500; i++ {
				tr.Observe(PopEmbeddingNorms, rng.Float64()*10)
				if i%50 == 0 {
					if snap, ok := tr.SnapshotOf(PopEmbeddingNorms); ok && snap.Count > 0 {
						if _, err := snap.Percentile(90); err != nil {
							t.Errorf("snapshot query failed mid-append: %v", err)
							return
						}
					}
				}
			}
		}(int64(w))
	}
	wg.Wait()

	snap, ok := tr.SnapshotOf(PopEmbeddingNorms)
	if !ok || snap.Count != 8*500 {
		t.Fatalf("expected 4000 observations, got %d", snap.Count)
	}
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker()
	tr.Observe("window", 1)
	tr.Observe("window", 2)
	tr.Reset("window")

	snap, ok := tr.SnapshotOf("window")
	if !ok {
		t.Fatal("population should still exist after reset")
	}
	if snap.Count != 0 {
		t.Errorf("reset population should be empty, got %d observations", snap.Count)
	}
}
