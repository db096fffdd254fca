package trace

import (
	"fmt"
	"sort"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// CacheConfig holds trace cache configuration parameters.
type CacheConfig struct {
	// Sets is the number of sets. Start PCs map to sets by modulo.
	Sets int
	// Ways is the associativity.
	Ways int
}

// DefaultCacheConfig returns a 64-set, 4-way trace cache.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Sets: 64,
		Ways: 4,
	}
}

// Validate checks the geometry.
func (c CacheConfig) Validate() error {
	if c.Sets <= 0 {
		return fmt.Errorf("trace cache sets must be > 0")
	}
	if c.Ways <= 0 {
		return fmt.Errorf("trace cache ways must be > 0")
	}
	return nil
}

// CacheStatistics holds trace cache statistics.
type CacheStatistics struct {
	Hits          uint64
	Misses        uint64
	Inserts       uint64
	Evictions     uint64
	Invalidations uint64
}

// Cache maps start PCs to traces. Tags and LRU state are kept in an Akita
// cache directory with one-word blocks, so each block holds exactly one
// start PC.
type Cache struct {
	config CacheConfig

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Trace storage - indexed by (setID * ways + wayID)
	traces []*Trace

	stats CacheStatistics
}

// NewCache creates an empty trace cache.
func NewCache(config CacheConfig) *Cache {
	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			config.Sets,
			config.Ways,
			1,
			akitacache.NewLRUVictimFinder(),
		),
		traces: make([]*Trace, config.Sets*config.Ways),
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() CacheConfig {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStatistics {
	return c.stats
}

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Ways + block.WayID
}

// Lookup returns the trace starting at pc and marks it most recently used.
func (c *Cache) Lookup(pc uint16) (*Trace, bool) {
	block := c.directory.Lookup(0, uint64(pc))
	if block == nil || !block.IsValid {
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	c.directory.Visit(block)
	return c.traces[c.blockIndex(block)], true
}

// Contains reports whether a trace starts at pc without touching LRU
// state or statistics.
func (c *Cache) Contains(pc uint16) bool {
	block := c.directory.Lookup(0, uint64(pc))
	return block != nil && block.IsValid
}

// Insert stores t, replacing any trace with the same start PC. When the
// set is full the least recently used trace is evicted.
func (c *Cache) Insert(t *Trace) {
	addr := uint64(t.PC())
	c.stats.Inserts++

	block := c.directory.Lookup(0, addr)
	if block == nil || !block.IsValid {
		block = c.directory.FindVictim(addr)
		if block.IsValid {
			c.stats.Evictions++
		}
		block.Tag = addr
		block.IsValid = true
	}

	c.traces[c.blockIndex(block)] = t
	c.directory.Visit(block)
}

// Clear drops every trace.
func (c *Cache) Clear() {
	if c.Len() > 0 {
		c.stats.Invalidations++
	}
	c.directory.Reset()
	clear(c.traces)
}

// Len returns the number of cached traces.
func (c *Cache) Len() int {
	n := 0
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				n++
			}
		}
	}
	return n
}

// Traces returns every cached trace ordered by start PC.
func (c *Cache) Traces() []*Trace {
	var traces []*Trace
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				traces = append(traces, c.traces[c.blockIndex(block)])
			}
		}
	}
	sort.Slice(traces, func(i, j int) bool { return traces[i].PC() < traces[j].PC() })
	return traces
}
