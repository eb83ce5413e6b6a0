package baseline

import (
	"math"
	"time"
)

// Outlier is a flagged observation with its z-score against the
// population it belongs to.
type Outlier struct {
	Value  float64 `json:"value"`
	ZScore float64 `json:"z_score"`
}

// Report is the exportable summary for one population. The field set is
// the compatibility contract for downstream monitoring consumers.
type Report struct {
	Population string    `json:"population"`
	Timestamp  time.Time `json:"timestamp"`
	Count      int       `json:"count"`
	Mean       float64   `json:"mean"`
	Median     float64   `json:"median"`
	StdDev     float64   `json:"stdev"`
	Variance   float64   `json:"variance"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Range      float64   `json:"range"`
	P25        float64   `json:"p25"`
	P50        float64   `json:"p50"`
	P75        float64   `json:"p75"`
	P90        float64   `json:"p90"`
	P95        float64   `json:"p95"`
	P99        float64   `json:"p99"`
	IQR        float64   `json:"iqr"`
	CV         float64   `json:"cv"` // coefficient of variation, percent
	Outliers   []Outlier `json:"outliers"`
}

// Report builds the full exportable summary of the snapshot, flagging
// every observation with |z| beyond zThreshold.
func (s Snapshot) Report(zThreshold float64) (Report, error) {
	if err := s.empty(); err != nil {
		return Report{}, err
	}

	r := Report{
		Population: s.Population,
		Timestamp:  time.Now().UTC(),
		Count:      s.Count,
		Mean:       s.Mean,
		StdDev:     s.StdDev,
		Variance:   s.Variance,
		Min:        s.Min,
		Max:        s.Max,
		Range:      s.Max - s.Min,
		Outliers:   []Outlier{},
	}

	// Ranks are exact on a snapshot, so these cannot fail past the empty
	// check above.
	r.P25, _ = s.Percentile(25)
	r.P50, _ = s.Percentile(50)
	r.P75, _ = s.Percentile(75)
	r.P90, _ = s.Percentile(90)
	r.P95, _ = s.Percentile(95)
	r.P99, _ = s.Percentile(99)
	r.Median = r.P50
	r.IQR = r.P75 - r.P25

	if r.Mean != 0 {
		r.CV = r.StdDev / r.Mean * 100
	}

	if s.StdDev > 0 {
		for _, v := range s.sorted {
			z := (v - s.Mean) / s.StdDev
			if math.Abs(z) > zThreshold {
				r.Outliers = append(r.Outliers, Outlier{Value: v, ZScore: z})
			}
		}
	}

	return r, nil
}

// Comparison describes how two populations differ. Cohen's d gives the
// standardized effect size of the mean difference.
type Comparison struct {
	Left       Report  `json:"left"`
	Right      Report  `json:"right"`
	MeanDiff   float64 `json:"mean_diff"`
	MedianDiff float64 `json:"median_diff"`
	StdDevDiff float64 `json:"stdev_diff"`
	RangeDiff  float64 `json:"range_diff"`
	CohensD    float64 `json:"cohens_d"`
}

// Compare builds a two-population comparison, used to quantify drift
// between a reference window and the current window.
func Compare(left, right Snapshot, zThreshold float64) (Comparison, error) {
	lr, err := left.Report(zThreshold)
	if err != nil {
		return Comparison{}, err
	}
	rr, err := right.Report(zThreshold)
	if err != nil {
		return Comparison{}, err
	}

	c := Comparison{
		Left:       lr,
		Right:      rr,
		MeanDiff:   lr.Mean - rr.Mean,
		MedianDiff: lr.Median - rr.Median,
		StdDevDiff: lr.StdDev - rr.StdDev,
		RangeDiff:  lr.Range - rr.Range,
	}

	pooled := math.Sqrt((lr.StdDev*lr.StdDev + rr.StdDev*rr.StdDev) / 2)
	if pooled > 0 {
		c.CohensD = (lr.Mean - rr.Mean) / pooled
	}

	return c, nil
}
