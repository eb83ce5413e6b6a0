package detect

import (
	"sync"
	"time"
)

// ScanReport aggregates the outcome of one corpus pass.
type ScanReport struct {
	mu sync.Mutex

	Total         int `json:"total_scanned"`
	Clean         int `json:"clean"`
	Suspicious    int `json:"suspicious"`
	Quarantined   int `json:"quarantined"`
	Indeterminate int `json:"indeterminate"`

	MinScore float64 `json:"min_score"`
	MaxScore float64 `json:"max_score"`
	AvgScore float64 `json:"avg_score"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	sum float64
}

func newScanReport() *ScanReport {
	return &ScanReport{StartedAt: time.Now().UTC()}
}

func (r *ScanReport) add(v *Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()

	score := v.Composite.Final
	if r.Total == 0 || score < r.MinScore {
		r.MinScore = score
	}
	if score > r.MaxScore {
		r.MaxScore = score
	}
	r.sum += score
	r.Total++

	switch v.Decision {
	case DecisionClean:
		r.Clean++
	case DecisionSuspicious:
		r.Suspicious++
	case DecisionQuarantine:
		r.Quarantined++
	}
}

func (r *ScanReport) addIndeterminate() {
	r.mu.Lock()
	r.Indeterminate++
	r.mu.Unlock()
}

func (r *ScanReport) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Total > 0 {
		r.AvgScore = r.sum / float64(r.Total)
	}
	r.FinishedAt = time.Now().UTC()
}

// DetectionRate is the fraction of scored documents flagged suspicious
// or quarantined.
func (r *ScanReport) DetectionRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Total == 0 {
		return 0
	}
	return float64(r.Suspicious+r.Quarantined) / float64(r.Total)
}
