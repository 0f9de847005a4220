package agpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/agpu/backend"
)

// Fence is a monotonically increasing completion counter on the device
// queue. Values signaled must increase.
type Fence struct {
	dev   *Device
	fence backend.Fence

	mu       sync.Mutex
	last     uint64
	released atomic.Bool
}

// CreateFence creates a fence with a completed value of 0.
func (d *Device) CreateFence() (*Fence, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	f, err := d.bd.CreateFence()
	if err != nil {
		return nil, translate("create fence", err)
	}
	d.live.Add(1)
	return &Fence{dev: d, fence: f}, nil
}

func (f *Fence) checkAlive() error {
	if f.released.Load() {
		return fmt.Errorf("%w: fence released", ErrInvalidOperation)
	}
	return f.dev.checkOpen()
}

// Signal sets the fence to value once all work submitted before the call
// has completed.
func (f *Fence) Signal(value uint64) error {
	if err := f.checkAlive(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if value <= f.last {
		return fmt.Errorf("%w: fence value %d not above %d", ErrInvalidParameter, value, f.last)
	}
	if err := f.dev.bd.Queue().Signal(f.fence, value); err != nil {
		return translate("signal fence", err)
	}
	f.last = value
	Logger().Debug("agpu: fence signaled", "value", value)
	return nil
}

// CompletedValue returns the highest value the fence has reached.
func (f *Fence) CompletedValue() uint64 {
	if f.released.Load() {
		return 0
	}
	return f.fence.CompletedValue()
}

// Wait blocks until the fence reaches value. Waiting for a value that was
// never signaled is an error rather than a deadlock.
func (f *Fence) Wait(value uint64) error {
	if err := f.checkAlive(); err != nil {
		return err
	}
	f.mu.Lock()
	last := f.last
	f.mu.Unlock()
	if value > last {
		return fmt.Errorf("%w: wait for %d, last signaled %d", ErrInvalidOperation, value, last)
	}
	return translate("wait fence", f.fence.Wait(value))
}

// Release destroys the fence. Further calls fail with ErrInvalidOperation.
func (f *Fence) Release() {
	if f.released.Swap(true) {
		return
	}
	f.fence.Destroy()
	f.dev.live.Add(-1)
}
