package wgpu

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/agpu/backend"
)

// mark is a fence value that is reached when the hal queue has completed
// submission index.
type mark struct {
	value uint64
	index uint64
}

type fence struct {
	dev *Device

	mu    sync.Mutex
	value uint64
	marks []mark
	lost  bool
}

var _ backend.Fence = (*fence)(nil)

func (f *fence) mark(value, index uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lost {
		return backend.ErrDeviceLost
	}
	f.marks = append(f.marks, mark{value: value, index: index})
	return nil
}

// advance applies every mark whose submission has completed.
func (f *fence) advance(completed uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = slices.DeleteFunc(f.marks, func(m mark) bool {
		if m.index > completed {
			return false
		}
		f.value = max(f.value, m.value)
		return true
	})
}

func (f *fence) CompletedValue() uint64 {
	f.advance(f.dev.rawQueue.PollCompleted())
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Wait returns once value is reached. Pending values are waited for by
// idling the device; a value that was never signaled is an error.
func (f *fence) Wait(value uint64) error {
	if f.CompletedValue() >= value {
		return nil
	}
	f.mu.Lock()
	if f.lost {
		f.mu.Unlock()
		return backend.ErrDeviceLost
	}
	var index uint64
	pending := false
	for _, m := range f.marks {
		if m.value >= value {
			index, pending = m.index, true
			break
		}
	}
	f.mu.Unlock()
	if !pending {
		return fmt.Errorf("wgpu: wait for %d: never signaled: %w", value, backend.ErrInvalidState)
	}
	if err := f.dev.WaitIdle(); err != nil {
		return err
	}
	f.advance(index)
	return nil
}

// Destroy detaches the fence from the device.
func (f *fence) Destroy() {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fences = slices.DeleteFunc(d.fences, func(g *fence) bool { return g == f })
}

func (f *fence) lose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost = true
}
