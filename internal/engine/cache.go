package engine

import (
	"slices"
	"sync"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// detectionCache holds at most one detection result per window for the
// current record generation. Entries from an older generation are never
// returned; reset drops everything when a new record set is loaded.
type detectionCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	last    []model.Anomaly
	lastGen uint64
}

type cacheEntry struct {
	anomalies  []model.Anomaly
	generation uint64
}

func newDetectionCache() *detectionCache {
	return &detectionCache{entries: make(map[string]cacheEntry)}
}

// get returns the cached anomalies for key if they belong to gen.
func (c *detectionCache) get(key string, gen uint64) ([]model.Anomaly, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.generation != gen {
		return nil, false
	}
	return e.anomalies, true
}

// set stores anomalies for key and records them as the latest result.
func (c *detectionCache) set(key string, anomalies []model.Anomaly, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{anomalies: anomalies, generation: gen}
	c.last = anomalies
	c.lastGen = gen
}

// latest returns the most recently stored result of generation gen.
func (c *detectionCache) latest(gen uint64) []model.Anomaly {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastGen != gen {
		return nil
	}
	return c.last
}

// find looks id up in the latest result of generation gen, then in every
// other cached window of that generation in key order.
func (c *detectionCache) find(id string, gen uint64) (model.Anomaly, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastGen == gen {
		for _, a := range c.last {
			if a.ID == id {
				return a, true
			}
		}
	}
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if e.generation == gen {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, a := range c.entries[k].anomalies {
			if a.ID == id {
				return a, true
			}
		}
	}
	return model.Anomaly{}, false
}

func (c *detectionCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
	c.last = nil
	c.lastGen = 0
}

func (c *detectionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
