package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/agpu/backend"
)

// queue submits command buffers to the hal queue and records, for every
// fence signal, the submission index it waits for.
type queue struct {
	dev *Device

	mu   sync.Mutex
	last uint64
}

var _ backend.Queue = (*queue)(nil)

// Submit hands the command buffers of closed lists to the hal queue in
// one batch.
func (q *queue) Submit(lists ...backend.CommandList) error {
	cbs := make([]hal.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		c, ok := l.(*commandList)
		if !ok || c.dev != q.dev {
			return fmt.Errorf("wgpu: submit foreign list %T: %w", l, backend.ErrCommandList)
		}
		cb, err := c.submittable()
		if err != nil {
			return err
		}
		cbs = append(cbs, cb)
	}

	q.dev.mu.Lock()
	destroyed := q.dev.destroyed
	q.dev.mu.Unlock()
	if destroyed {
		return backend.ErrDeviceLost
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	idx, err := q.dev.rawQueue.Submit(cbs)
	if err != nil {
		return fmt.Errorf("wgpu: submit: %w", translate(err))
	}
	q.last = max(q.last, idx)
	return nil
}

// Signal marks value as reached once the latest submission completes.
func (q *queue) Signal(f backend.Fence, value uint64) error {
	fc, ok := f.(*fence)
	if !ok || fc.dev != q.dev {
		return fmt.Errorf("wgpu: signal foreign fence %T: %w", f, backend.ErrInvalidResource)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return fc.mark(value, q.last)
}
