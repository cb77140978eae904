package remover

import "sync"

// taskCounter tracks outstanding deletion tasks for one request.
//
// It starts holding a dispatch guard so tasks that finish synchronously during
// dispatch cannot complete the request early; releasing the guard is the last
// step of dispatch.
type taskCounter struct {
	mu      sync.Mutex
	pending int
	total   int
}

func (c *taskCounter) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = 1
	c.total = 0
}

// add records one dispatched task.
func (c *taskCounter) add() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending++
	c.total++
}

// release retires one task (or the guard) and reports whether nothing is
// outstanding any more.
func (c *taskCounter) release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == 0 {
		panic("remover: pending task counter released below zero")
	}
	c.pending--
	return c.pending == 0
}

// snapshot returns (outstanding, dispatched).
func (c *taskCounter) snapshot() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, c.total
}
