// Package results collects keyword matches produced during a crawl.
package results

import (
	"sync"

	"github.com/amosWeiskopf/linktrace/internal/models"
)

// Aggregator is an append-only, goroutine-safe list of results.
type Aggregator struct {
	mu      sync.RWMutex
	results []models.Result
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add appends r.
func (a *Aggregator) Add(r models.Result) {
	a.mu.Lock()
	a.results = append(a.results, r)
	a.mu.Unlock()
}

// Len returns the number of results collected so far.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.results)
}

// Snapshot returns a copy of the results in insertion order.
func (a *Aggregator) Snapshot() []models.Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.Result, len(a.results))
	copy(out, a.results)
	return out
}

// Records converts the results to export rows.
func (a *Aggregator) Records() []models.Record {
	snap := a.Snapshot()
	out := make([]models.Record, 0, len(snap))
	for _, r := range snap {
		out = append(out, r.Record())
	}
	return out
}
