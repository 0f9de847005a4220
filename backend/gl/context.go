package gl

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/agpu/backend"
)

// glContext runs jobs one at a time on the goroutine that owns the
// context.
type glContext struct {
	jobs chan func()
	done chan struct{}
	ran  atomic.Uint64

	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

func newContext() *glContext {
	c := &glContext{
		jobs: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *glContext) run() {
	defer close(c.done)
	for job := range c.jobs {
		c.ran.Add(1)
		job()
	}
}

// post schedules job after all earlier jobs without waiting for it.
func (c *glContext) post(job func()) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return backend.ErrDeviceLost
	}
	c.jobs <- job
	return nil
}

// do runs job on the context goroutine and waits for it.
func (c *glContext) do(job func()) error {
	finished := make(chan struct{})
	if err := c.post(func() {
		defer close(finished)
		job()
	}); err != nil {
		return err
	}
	<-finished
	return nil
}

// stop runs the pending jobs and ends the context goroutine.
func (c *glContext) stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		close(c.jobs)
		c.mu.Unlock()
		<-c.done
	})
}
