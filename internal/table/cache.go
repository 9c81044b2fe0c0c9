package table

import "sync"

// Cache is the process-local mapping from declared output-table name to the
// most recently produced Table. Entries are overwritten, never merged. The
// cache lives for exactly one pipeline run.
//
// A single mutex guards the map: extract jobs in a concurrent ready batch
// write while stage jobs read, and the executor serializes nothing else.
type Cache struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewCache creates an empty table cache.
func NewCache() *Cache {
	return &Cache{tables: make(map[string]*Table)}
}

// Put stores a table under the given name, replacing any previous entry.
func (c *Cache) Put(name string, t *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[name] = t
}

// Get returns the table stored under name, or false if none exists.
func (c *Cache) Get(name string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// Len returns the number of cached tables.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}
