package gl

import (
	"fmt"
	"sync"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// commandList records copies as context jobs. Barriers are dropped.
type commandList struct {
	dev   *Device
	label string

	mu        sync.Mutex
	recording bool
	closed    bool
	jobs      []func()
	err       error
}

var _ backend.CommandList = (*commandList)(nil)

func (c *commandList) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording, c.closed = true, false
	c.jobs, c.err = nil, nil
	return nil
}

// add validates and records one job; the first failure is kept for Close.
func (c *commandList) add(op string, build func() (func(), error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	if !c.recording {
		c.err = fmt.Errorf("gl: %s on %q outside recording: %w", op, c.label, backend.ErrCommandList)
		return
	}
	job, err := build()
	if err != nil {
		c.err = fmt.Errorf("gl: %s on %q: %w", op, c.label, err)
		return
	}
	c.jobs = append(c.jobs, job)
}

// Barrier only checks that the list is recording.
func (c *commandList) Barrier(...backend.Barrier) {
	c.add("barrier", func() (func(), error) { return func() {}, nil })
}

func (c *commandList) CopyBuffer(dst backend.Resource, dstOffset uint64, src backend.Resource, srcOffset, size uint64) {
	c.add("copy buffer", func() (func(), error) {
		d, err := c.dev.lookup(dst)
		if err != nil {
			return nil, err
		}
		s, err := c.dev.lookup(src)
		if err != nil {
			return nil, err
		}
		if d.texture || s.texture {
			return nil, backend.ErrInvalidResource
		}
		if dstOffset > d.size || size > d.size-dstOffset || srcOffset > s.size || size > s.size-srcOffset {
			return nil, backend.ErrOutOfRange
		}
		return func() {
			copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
		}, nil
	})
}

func (c *commandList) textureCopy(op string, tex backend.Resource, loc backend.TextureLocation, buf backend.Resource, layout gpucore.Footprint, upload bool) {
	c.add(op, func() (func(), error) {
		b, err := c.dev.lookup(buf)
		if err != nil {
			return nil, err
		}
		if b.texture {
			return nil, backend.ErrInvalidResource
		}
		if layout.RowPitch%UnpackAlignment != 0 {
			return nil, fmt.Errorf("row pitch %d: %w", layout.RowPitch, backend.ErrOutOfRange)
		}
		t, err := c.dev.checkTexture(tex, loc, layout, int(b.size))
		if err != nil {
			return nil, err
		}
		return func() { copyRows(t, loc, layout, b.data, upload) }, nil
	})
}

func (c *commandList) CopyBufferToTexture(dst backend.Resource, loc backend.TextureLocation, src backend.Resource, layout gpucore.Footprint) {
	c.textureCopy("copy buffer to texture", dst, loc, src, layout, true)
}

func (c *commandList) CopyTextureToBuffer(dst backend.Resource, layout gpucore.Footprint, src backend.Resource, loc backend.TextureLocation) {
	c.textureCopy("copy texture to buffer", src, loc, dst, layout, false)
}

func (c *commandList) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return fmt.Errorf("gl: close %q: not recording: %w", c.label, backend.ErrCommandList)
	}
	c.recording, c.closed = false, true
	return c.err
}

func (c *commandList) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs, c.recording, c.closed = nil, false, false
}

// queue submits to the device context.
type queue struct{ dev *Device }

// Submit posts the jobs of every list to the context in order.
func (q queue) Submit(lists ...backend.CommandList) error {
	var jobs []func()
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok || cl.dev != q.dev {
			return fmt.Errorf("gl: submit foreign command list %T: %w", l, backend.ErrCommandList)
		}
		cl.mu.Lock()
		ready := cl.closed && cl.err == nil
		jobs = append(jobs, cl.jobs...)
		cl.mu.Unlock()
		if !ready {
			return fmt.Errorf("gl: submit %q: list not closed cleanly: %w", cl.label, backend.ErrCommandList)
		}
	}
	return q.dev.ctx.post(func() {
		for _, job := range jobs {
			job()
		}
	})
}

// Signal sets f to value once earlier jobs have run, like glFenceSync.
func (q queue) Signal(f backend.Fence, value uint64) error {
	fc, ok := f.(*fence)
	if !ok || fc.dev != q.dev {
		return fmt.Errorf("gl: signal foreign fence %T: %w", f, backend.ErrInvalidResource)
	}
	return q.dev.ctx.post(func() { fc.signal(value) })
}
