package gl

import (
	"slices"
	"sync"

	"github.com/gogpu/agpu/backend"
)

// fence is signaled by the context goroutine.
type fence struct {
	dev *Device

	mu    sync.Mutex
	cond  *sync.Cond
	value uint64
	lost  bool
}

func newFence(d *Device) *fence {
	f := &fence{dev: d}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Wait blocks until the fence reaches value or the device is destroyed.
func (f *fence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.value < value && !f.lost {
		f.cond.Wait()
	}
	if f.value >= value {
		return nil
	}
	return backend.ErrDeviceLost
}

// Destroy detaches the fence from the device.
func (f *fence) Destroy() {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fences = slices.DeleteFunc(d.fences, func(g *fence) bool { return g == f })
}

func (f *fence) signal(value uint64) {
	f.mu.Lock()
	if value > f.value {
		f.value = value
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fence) lose() {
	f.mu.Lock()
	f.lost = true
	f.mu.Unlock()
	f.cond.Broadcast()
}
