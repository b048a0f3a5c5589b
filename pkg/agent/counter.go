package agent

import "sync"

// Counter is a visible counter with local echo: a user-initiated action is
// applied immediately, before any server round trip, and the count adopts the
// server's authoritative value whenever one arrives.
type Counter struct {
	mu    sync.Mutex
	value int64
}

// Increment applies the optimistic local update and returns the new value.
func (c *Counter) Increment() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Reconcile replaces the local value with the server's authoritative one.
func (c *Counter) Reconcile(server int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = server
	return c.value
}

// Value returns the current count as the user should see it.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
