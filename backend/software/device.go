package software

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// Stats describe device memory and queue activity.
type Stats struct {
	Budget      uint64
	Allocated   uint64
	Buffers     int
	Textures    int
	Submissions uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Software[%d/%d bytes, %d buffers, %d textures, %d submissions]",
		s.Allocated, s.Budget, s.Buffers, s.Textures, s.Submissions)
}

// Device is an explicit in-memory device.
//
// Device is safe for concurrent use.
type Device struct {
	opts Options
	q    *queue

	mu          sync.Mutex
	allocated   uint64
	buffers     int
	textures    int
	nextID      uint64
	fences      []*fence
	failSubmit  error
	submissions []Submission
	submitCount uint64
	destroyed   bool
}

var _ backend.Device = (*Device)(nil)

// New creates a device.
func New(opts Options) *Device {
	opts.normalize()
	d := &Device{opts: opts}
	d.q = newQueue(d)
	return d
}

// Name returns the device label.
func (d *Device) Name() string { return d.opts.Label }

// Variant returns backend.Explicit.
func (d *Device) Variant() backend.Variant { return backend.Explicit }

// Limits returns the copy alignments the device enforces.
func (d *Device) Limits() backend.Limits {
	return backend.Limits{
		RowPitchAlignment:  d.opts.RowPitchAlignment,
		PlacementAlignment: d.opts.PlacementAlignment,
		MaxBufferSize:      d.opts.MemoryBudget,
	}
}

// Mapper returns the D3D12-style state mapper.
func (d *Device) Mapper() backend.StateMapper { return Mapper{} }

// AdapterInfo reports a software adapter.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "agpu software", Type: gpucontext.AdapterTypeSoftware}
}

// reserve charges size bytes against the budget. d.mu must be held.
func (d *Device) reserve(size uint64) error {
	if d.destroyed {
		return backend.ErrDeviceLost
	}
	if size > d.opts.MemoryBudget-d.allocated {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			backend.ErrOutOfMemory, size, d.allocated, d.opts.MemoryBudget)
	}
	d.allocated += size
	d.nextID++
	return nil
}

// CreateBuffer allocates a buffer in the state desc.InitialState.
func (d *Device) CreateBuffer(desc *backend.BufferDescriptor) (backend.Resource, error) {
	if desc == nil || desc.Size == 0 || !desc.Heap.Valid() {
		return nil, fmt.Errorf("software: invalid buffer descriptor: %w", backend.ErrInvalidResource)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reserve(desc.Size); err != nil {
		return nil, err
	}
	d.buffers++
	return &resource{
		dev:    d,
		id:     d.nextID,
		label:  desc.Label,
		heap:   desc.Heap,
		size:   desc.Size,
		data:   make([]byte, desc.Size),
		states: []backend.State{desc.InitialState},
	}, nil
}

// CreateTexture allocates a device-local texture with every subresource in
// desc.InitialState.
func (d *Device) CreateTexture(desc *backend.TextureDescriptor) (backend.Resource, error) {
	if err := validateTexture(desc); err != nil {
		return nil, err
	}
	fi, _ := gpucore.LookupFormat(desc.Format)
	size := textureBytes(desc, fi)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reserve(size); err != nil {
		return nil, err
	}
	d.textures++

	r := &resource{
		dev:     d,
		id:      d.nextID,
		label:   desc.Label,
		heap:    desc.Heap,
		size:    size,
		texture: true,
		desc:    *desc,
		format:  fi,
	}
	n := int(desc.MipLevels * r.arrayLayers())
	r.subs = make([][]byte, n)
	r.states = make([]backend.State, n)
	for layer := range r.arrayLayers() {
		for level := range desc.MipLevels {
			r.subs[r.subIndex(level, layer)] = make([]byte, r.levelFootprint(level).Size())
		}
	}
	for i := range r.states {
		r.states[i] = desc.InitialState
	}
	return r, nil
}

func validateTexture(desc *backend.TextureDescriptor) error {
	if desc == nil {
		return fmt.Errorf("software: nil texture descriptor: %w", backend.ErrInvalidResource)
	}
	if _, ok := gpucore.LookupFormat(desc.Format); !ok {
		return fmt.Errorf("software: texture format %v: %w", desc.Format, backend.ErrInvalidResource)
	}
	if desc.Heap != gpucore.HeapDeviceLocal {
		return fmt.Errorf("software: textures must be device-local, got %v: %w", desc.Heap, backend.ErrInvalidResource)
	}
	s := desc.Size
	if s.Width == 0 || s.Height == 0 || s.DepthOrArrayLayers == 0 || desc.MipLevels == 0 {
		return fmt.Errorf("software: empty texture %+v: %w", s, backend.ErrInvalidResource)
	}
	if desc.Type == gpucore.TextureType1D && s.Height != 1 {
		return fmt.Errorf("software: 1D texture with height %d: %w", s.Height, backend.ErrInvalidResource)
	}
	if desc.Type == gpucore.TextureTypeCube && (s.DepthOrArrayLayers%6 != 0 || s.Width != s.Height) {
		return fmt.Errorf("software: cube texture %+v: %w", s, backend.ErrInvalidResource)
	}
	return nil
}

// lookup resolves a resource of this device. d.mu need not be held.
func (d *Device) lookup(r backend.Resource) (*resource, error) {
	res, ok := r.(*resource)
	if !ok || res == nil || res.dev != d {
		return nil, fmt.Errorf("software: foreign resource %T: %w", r, backend.ErrInvalidResource)
	}
	if res.destroyed.Load() {
		return nil, fmt.Errorf("software: resource %q destroyed: %w", res.label, backend.ErrInvalidResource)
	}
	return res, nil
}

func (d *Device) destroyResource(r *resource) {
	if r.destroyed.Swap(true) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocated -= r.size
	if r.texture {
		d.textures--
	} else {
		d.buffers--
	}
}

// Map returns the bytes of a host-heap buffer. Device-local memory and
// textures are not mappable.
func (d *Device) Map(buf backend.Resource, offset, size uint64) ([]byte, error) {
	r, err := d.lookup(buf)
	if err != nil {
		return nil, err
	}
	if r.texture || r.heap == gpucore.HeapDeviceLocal {
		return nil, fmt.Errorf("software: map %q in %v: %w", r.label, r.heap, backend.ErrNotMappable)
	}
	if offset > r.size || size > r.size-offset {
		return nil, fmt.Errorf("software: map [%d, +%d) of %d bytes: %w", offset, size, r.size, backend.ErrOutOfRange)
	}

	d.mu.Lock()
	r.mapped++
	d.mu.Unlock()
	return r.data[offset : offset+size : offset+size], nil
}

// Unmap ends one mapping of buf.
func (d *Device) Unmap(buf backend.Resource) error {
	r, err := d.lookup(buf)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.mapped == 0 {
		return fmt.Errorf("software: unmap %q: not mapped: %w", r.label, backend.ErrInvalidState)
	}
	r.mapped--
	return nil
}

// CreateCommandList returns an idle command list; call Reset to record.
func (d *Device) CreateCommandList(label string) (backend.CommandList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, backend.ErrDeviceLost
	}
	return &commandList{dev: d, label: label}, nil
}

// CreateFence returns a fence at value 0.
func (d *Device) CreateFence() (backend.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, backend.ErrDeviceLost
	}
	f := newFence(d)
	d.fences = append(d.fences, f)
	return f, nil
}

// Queue returns the single device queue.
func (d *Device) Queue() backend.Queue { return d.q }

// WaitIdle blocks until the queue has drained.
func (d *Device) WaitIdle() error {
	done := make(chan struct{})
	if err := d.q.enqueue(func() { close(done) }); err != nil {
		return err
	}
	<-done
	return nil
}

// Destroy stops the queue and fails all pending fence waits.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	fences := d.fences
	d.fences = nil
	d.mu.Unlock()

	d.q.stop()
	for _, f := range fences {
		f.lose()
	}
}

// FailNextSubmit makes the next Submit return err without executing.
func (d *Device) FailNextSubmit(err error) {
	if err == nil {
		err = errors.New("injected failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSubmit = err
}

// Submissions returns the log of accepted command lists in execution order.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.submissions)
}

// ResetSubmissions clears the submission log.
func (d *Device) ResetSubmissions() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submissions = nil
}

// ResourceState returns the tracked state of a subresource, as of the
// last accepted submission.
func (d *Device) ResourceState(res backend.Resource, sub backend.Subresource) (backend.State, error) {
	r, err := d.lookup(res)
	if err != nil {
		return 0, err
	}
	if !r.validSub(sub) {
		return 0, fmt.Errorf("software: subresource %+v of %q: %w", sub, r.label, backend.ErrOutOfRange)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := r.stateIndices(sub)
	s := r.states[idx[0]]
	for _, i := range idx[1:] {
		if r.states[i] != s {
			return 0, fmt.Errorf("software: %q subresources disagree: %w", r.label, backend.ErrInvalidState)
		}
	}
	return s, nil
}

// Stats returns a snapshot of memory and queue counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Budget:      d.opts.MemoryBudget,
		Allocated:   d.allocated,
		Buffers:     d.buffers,
		Textures:    d.textures,
		Submissions: d.submitCount,
	}
}
