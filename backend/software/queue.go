package software

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// queue validates submissions synchronously and executes them in order on
// a dedicated goroutine.
type queue struct {
	dev  *Device
	jobs chan func()
	done chan struct{}

	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

func newQueue(d *Device) *queue {
	q := &queue{
		dev:  d,
		jobs: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.done)
	for job := range q.jobs {
		job()
	}
}

// enqueue schedules job after all earlier work.
func (q *queue) enqueue(job func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return backend.ErrDeviceLost
	}
	q.jobs <- job
	return nil
}

// stop drains pending work and ends the queue goroutine.
func (q *queue) stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.jobs)
		q.mu.Unlock()
		<-q.done
	})
}

// Submit validates every list against the tracked resource states and
// schedules execution. Nothing is executed or tracked if any list fails.
func (q *queue) Submit(lists ...backend.CommandList) error {
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed {
		return backend.ErrDeviceLost
	}
	if err := d.failSubmit; err != nil {
		d.failSubmit = nil
		return fmt.Errorf("software: submit: %w", err)
	}

	cls := make([]*commandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok || cl.dev != d {
			return fmt.Errorf("software: submit foreign command list %T: %w", l, backend.ErrCommandList)
		}
		cls = append(cls, cl)
	}

	pending := make(map[*resource][]backend.State)
	stateOf := func(r *resource) []backend.State {
		s, ok := pending[r]
		if !ok {
			s = slices.Clone(r.states)
			pending[r] = s
		}
		return s
	}

	var batches [][]op
	for _, cl := range cls {
		cl.mu.Lock()
		ops, state, recErr := slices.Clone(cl.ops), cl.state, cl.err
		cl.mu.Unlock()

		if state != listClosed || recErr != nil {
			return fmt.Errorf("software: submit %q: list not closed cleanly: %w", cl.label, backend.ErrCommandList)
		}
		for i := range ops {
			if err := validateOp(&ops[i], stateOf); err != nil {
				return fmt.Errorf("software: submit %q command %d: %w", cl.label, i, err)
			}
		}
		batches = append(batches, ops)
	}

	for r, states := range pending {
		r.states = states
	}
	for i, cl := range cls {
		d.submitCount++
		sub := Submission{Seq: d.submitCount, List: cl.label}
		for j := range batches[i] {
			sub.Commands = append(sub.Commands, batches[i][j].command())
		}
		d.submissions = append(d.submissions, sub)
	}

	return q.enqueue(func() {
		for _, ops := range batches {
			for i := range ops {
				execute(&ops[i])
			}
		}
	})
}

// Signal sets f to value after all earlier submissions.
func (q *queue) Signal(f backend.Fence, value uint64) error {
	fc, ok := f.(*fence)
	if !ok || fc.dev != q.dev {
		return fmt.Errorf("software: signal foreign fence %T: %w", f, backend.ErrInvalidResource)
	}
	return q.enqueue(func() { fc.signal(value) })
}

func validateOp(o *op, stateOf func(*resource) []backend.State) error {
	for _, r := range []*resource{o.dst, o.src} {
		if r != nil && r.destroyed.Load() {
			return fmt.Errorf("resource %q destroyed: %w", r.label, backend.ErrInvalidResource)
		}
	}

	switch o.kind {
	case CommandBarrier:
		states := stateOf(o.dst)
		for _, i := range o.dst.stateIndices(o.barrier.Subresource) {
			if states[i] != o.barrier.Before {
				return fmt.Errorf("barrier on %q expects %s, resource is %s: %w",
					o.dst.label, stateString(o.barrier.Before), stateString(states[i]), backend.ErrInvalidState)
			}
			states[i] = o.barrier.After
		}
	case CommandCopyBuffer:
		if s := stateOf(o.src)[0]; !canCopyFrom(s, false) {
			return copyStateError(o.src, s, "source")
		}
		if s := stateOf(o.dst)[0]; !canCopyTo(s, false) {
			return copyStateError(o.dst, s, "destination")
		}
	case CommandCopyBufferToTexture:
		if s := stateOf(o.src)[0]; !canCopyFrom(s, false) {
			return copyStateError(o.src, s, "source")
		}
		if s := stateOf(o.dst)[o.dst.subIndex(o.loc.MipLevel, o.loc.ArrayLayer)]; !canCopyTo(s, true) {
			return copyStateError(o.dst, s, "destination")
		}
	case CommandCopyTextureToBuffer:
		if s := stateOf(o.src)[o.src.subIndex(o.loc.MipLevel, o.loc.ArrayLayer)]; !canCopyFrom(s, true) {
			return copyStateError(o.src, s, "source")
		}
		if s := stateOf(o.dst)[0]; !canCopyTo(s, false) {
			return copyStateError(o.dst, s, "destination")
		}
	}
	return nil
}

// canCopyFrom reports whether a resource in state s may be read by a copy.
// Buffers in the common state are promoted implicitly.
func canCopyFrom(s backend.State, texture bool) bool {
	return s&StateCopySource != 0 || (!texture && s == StateCommon)
}

// canCopyTo reports whether a resource in state s may be written by a copy.
func canCopyTo(s backend.State, texture bool) bool {
	return s == StateCopyDest || (!texture && s == StateCommon)
}

func copyStateError(r *resource, s backend.State, role string) error {
	return fmt.Errorf("copy %s %q in state %s: %w", role, r.label, stateString(s), backend.ErrInvalidState)
}

func execute(o *op) {
	switch o.kind {
	case CommandCopyBuffer:
		copy(o.dst.data[o.dstOffset:o.dstOffset+o.size], o.src.data[o.srcOffset:o.srcOffset+o.size])
	case CommandCopyBufferToTexture:
		walkTextureCopy(o.dst, o.loc, o.layout, func(texOff, bufOff, n uint64, sub []byte) {
			copy(sub[texOff:texOff+n], o.src.data[bufOff:bufOff+n])
		})
	case CommandCopyTextureToBuffer:
		walkTextureCopy(o.src, o.loc, o.layout, func(texOff, bufOff, n uint64, sub []byte) {
			copy(o.dst.data[bufOff:bufOff+n], sub[texOff:texOff+n])
		})
	}
}

// walkTextureCopy calls fn for every block row of a region, with the row
// offsets inside the subresource and inside the buffer footprint.
func walkTextureCopy(tex *resource, loc backend.TextureLocation, layout gpucore.Footprint, fn func(texOff, bufOff, n uint64, sub []byte)) {
	sub := tex.subs[tex.subIndex(loc.MipLevel, loc.ArrayLayer)]
	level := tex.levelFootprint(loc.MipLevel)
	fi := tex.format

	x := uint64(loc.Origin.X/fi.BlockWidth) * uint64(fi.BlockBytes)
	y := uint64(loc.Origin.Y / fi.BlockHeight)
	for z := range uint64(layout.Extent.DepthOrArrayLayers) {
		for row := range uint64(layout.Rows) {
			texOff := (uint64(loc.Origin.Z)+z)*level.SlicePitch + (y+row)*level.RowPitch + x
			bufOff := layout.Offset + z*layout.SlicePitch + row*layout.RowPitch
			fn(texOff, bufOff, layout.RowBytes, sub)
		}
	}
}
