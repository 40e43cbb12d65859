package counting

import "sync"

// Aggregator keeps running totals per label and per direction. Reads are
// safe from any goroutine.
type Aggregator struct {
	mu         sync.RWMutex
	labels     map[string]int
	directions map[string]int
	total      int
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		labels:     make(map[string]int),
		directions: make(map[string]int),
	}
}

// Add counts one crossing.
func (a *Aggregator) Add(ev CrossingEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.labels[ev.Label]++
	if ev.Direction != "" {
		a.directions[ev.Direction]++
	}
	a.total++
}

// Restore seeds the totals from persisted per-label counts, replacing
// whatever was counted before.
func (a *Aggregator) Restore(labels map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.labels = make(map[string]int, len(labels))
	a.directions = make(map[string]int)
	a.total = 0
	for label, n := range labels {
		a.labels[label] = n
		a.total += n
	}
}

// Count returns the total for one label.
func (a *Aggregator) Count(label string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.labels[label]
}

// Totals returns a copy of the per-label totals.
func (a *Aggregator) Totals() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyCounts(a.labels)
}

// Directions returns a copy of the per-direction totals counted since start
// or the last Restore.
func (a *Aggregator) Directions() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyCounts(a.directions)
}

// Total returns the number of crossings.
func (a *Aggregator) Total() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.total
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
