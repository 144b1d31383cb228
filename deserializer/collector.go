package deserializer

import (
	"sync"

	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

// Collector receives the rows of a deserialized batch in order. A non-nil
// error stops the batch.
type Collector interface {
	Collect(row *rowdata.GenericRowData) error
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(row *rowdata.GenericRowData) error

func (f CollectorFunc) Collect(row *rowdata.GenericRowData) error { return f(row) }

// ListCollector accumulates rows in memory. It is safe for concurrent use.
type ListCollector struct {
	mu   sync.Mutex
	rows []*rowdata.GenericRowData
}

func (c *ListCollector) Collect(row *rowdata.GenericRowData) error {
	c.mu.Lock()
	c.rows = append(c.rows, row)
	c.mu.Unlock()
	return nil
}

// Rows returns a copy of the collected rows.
func (c *ListCollector) Rows() []*rowdata.GenericRowData {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*rowdata.GenericRowData, len(c.rows))
	copy(out, c.rows)
	return out
}

func (c *ListCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

func (c *ListCollector) Reset() {
	c.mu.Lock()
	c.rows = nil
	c.mu.Unlock()
}
