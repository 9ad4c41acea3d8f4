package gateway

import "sync"

// Continuation resumes a request that was parked while a refresh was in
// flight. It receives the new access credential, or the refresh failure.
type Continuation func(access string, err error)

// Coordinator is the single-flight refresh state: one refreshing flag and a
// wait-list of continuations. It performs no I/O; the caller that wins Join
// runs the refresh and reports the outcome through Finish.
type Coordinator struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []Continuation
}

// Join either makes the caller the refresher (leader=true, cont is not
// retained) or parks cont until the in-flight refresh finishes.
func (c *Coordinator) Join(cont Continuation) (leader bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshing {
		c.waiters = append(c.waiters, cont)
		return false
	}
	c.refreshing = true
	return true
}

// Finish hands the refresh outcome to every parked continuation in arrival
// order, including any parked while draining, then clears the refreshing
// flag. Only the leader calls Finish.
func (c *Coordinator) Finish(access string, err error) {
	for {
		c.mu.Lock()
		waiters := c.waiters
		c.waiters = nil
		if len(waiters) == 0 {
			c.refreshing = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		for _, w := range waiters {
			w(access, err)
		}
	}
}

// Refreshing reports whether a refresh is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending returns the number of parked continuations.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
