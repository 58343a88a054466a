// Package metrics counts scheduler and transport activity. Counters are
// monotonic for the lifetime of the process; nothing is exported off-box.
package metrics

import "sync/atomic"

// Collector accumulates activity counters. The zero value is ready to use
// and all methods are safe for concurrent use.
type Collector struct {
	ticks             atomic.Int64
	promotions        atomic.Int64
	dispatches        atomic.Int64
	successes         atomic.Int64
	failures          atomic.Int64
	duplicatesDropped atomic.Int64
	sendErrors        atomic.Int64
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Ticks             int64 `json:"ticks"`
	Promotions        int64 `json:"promotions"`
	Dispatches        int64 `json:"dispatches"`
	Successes         int64 `json:"successes"`
	Failures          int64 `json:"failures"`
	DuplicatesDropped int64 `json:"duplicatesDropped"`
	SendErrors        int64 `json:"sendErrors"`
}

func (c *Collector) Tick()             { c.ticks.Add(1) }
func (c *Collector) Promoted(n int)    { c.promotions.Add(int64(n)) }
func (c *Collector) Dispatched()       { c.dispatches.Add(1) }
func (c *Collector) Succeeded()        { c.successes.Add(1) }
func (c *Collector) Failed()           { c.failures.Add(1) }
func (c *Collector) DuplicateDropped() { c.duplicatesDropped.Add(1) }
func (c *Collector) SendFailed()       { c.sendErrors.Add(1) }

// Snapshot returns a copy of the current counter values.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Ticks:             c.ticks.Load(),
		Promotions:        c.promotions.Load(),
		Dispatches:        c.dispatches.Load(),
		Successes:         c.successes.Load(),
		Failures:          c.failures.Load(),
		DuplicatesDropped: c.duplicatesDropped.Load(),
		SendErrors:        c.sendErrors.Load(),
	}
}
