package baseline

import "sync"

// Tracker owns every named population observed during a run. Populations
// are created lazily on first observation.
type Tracker struct {
	mu   sync.RWMutex
	pops map[string]*Population
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{pops: make(map[string]*Population)}
}

// Population returns the named population, creating it if needed.
func (t *Tracker) Population(name string) *Population {
	t.mu.RLock()
	p, ok := t.pops[name]
	t.mu.RUnlock()
	if ok {
		return p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok = t.pops[name]; ok {
		return p
	}
	p = NewPopulation(name)
	t.pops[name] = p
	return p
}

// Observe appends one value to the named population.
func (t *Tracker) Observe(name string, v float64) {
	t.Population(name).Append(v)
}

// SnapshotOf returns a consistent snapshot of the named population.
// The second return is false when the population has never been observed.
func (t *Tracker) SnapshotOf(name string) (Snapshot, bool) {
	t.mu.RLock()
	p, ok := t.pops[name]
	t.mu.RUnlock()
	if !ok {
		return Snapshot{Population: name}, false
	}
	return p.Snapshot(), true
}

// Names returns every population name seen so far.
func (t *Tracker) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.pops))
	for name := range t.pops {
		names = append(names, name)
	}
	return names
}

// Reset clears the named population, e.g. at a reference-window rollover.
func (t *Tracker) Reset(name string) {
	t.mu.RLock()
	p, ok := t.pops[name]
	t.mu.RUnlock()
	if ok {
		p.Reset()
	}
}
