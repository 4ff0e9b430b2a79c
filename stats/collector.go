package stats

import (
	"encoding/json"
	"sync"

	"github.com/parallax-ai/forkcache/providers"
)

// Collector accumulates per-call stats within one session. Recording is
// append-only and order-independent; a mutex guards concurrent appends from
// parallel branches of a single fork. Collectors are not meant to be shared
// across sessions.
type Collector struct {
	mu      sync.Mutex
	entries []CacheStats
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends an already-normalized stats record.
func (c *Collector) Add(s CacheStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, s)
}

// Record parses a raw usage payload and appends the result.
func (c *Collector) Record(raw json.RawMessage, provider providers.Provider, model string) CacheStats {
	s := Parse(raw, provider, model)
	c.Add(s)
	return s
}

// Aggregate returns the summed view of everything recorded so far.
func (c *Collector) Aggregate() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Aggregate(c.entries)
}

// Individual returns a copy of every recorded entry in insertion order.
func (c *Collector) Individual() []CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CacheStats, len(c.entries))
	copy(out, c.entries)
	return out
}

// Count returns the number of recorded entries.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all recorded entries.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}
