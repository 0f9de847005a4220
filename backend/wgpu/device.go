package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// Device is an explicit device on a hal adapter.
type Device struct {
	opts     Options
	instance hal.Instance
	adapter  hal.ExposedAdapter
	raw      hal.Device
	rawQueue hal.Queue
	q        *queue

	mu        sync.Mutex
	allocated uint64
	objects   int
	fences    []*fence
	destroyed bool
}

var _ backend.Device = (*Device)(nil)

// Name returns the device label.
func (d *Device) Name() string { return d.opts.Label }

// Variant returns backend.Explicit.
func (d *Device) Variant() backend.Variant { return backend.Explicit }

// Limits reports the adapter copy alignments. Texture data offsets are
// aligned to at least 16 bytes, the largest block size.
func (d *Device) Limits() backend.Limits {
	caps := d.adapter.Capabilities
	limits := backend.Limits{
		RowPitchAlignment:  max(caps.AlignmentsMask.BufferCopyPitch, 1),
		PlacementAlignment: max(caps.AlignmentsMask.BufferCopyOffset, 16),
		MaxBufferSize:      caps.Limits.MaxBufferSize,
	}
	if b := d.opts.MemoryBudget; b > 0 && (limits.MaxBufferSize == 0 || b < limits.MaxBufferSize) {
		limits.MaxBufferSize = b
	}
	return limits
}

// Mapper returns the usage-mask mapper.
func (d *Device) Mapper() backend.StateMapper { return Mapper{} }

// AdapterInfo describes the opened adapter.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	info := d.adapter.Info
	return gpucontext.AdapterInfo{Name: info.Name, Type: adapterType(info.DeviceType)}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// HAL returns the hal device and queue for interop.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.raw, d.rawQueue }

// Objects returns the number of live buffers and textures.
func (d *Device) Objects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.objects
}

func (d *Device) reserve(size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return backend.ErrDeviceLost
	}
	if b := d.opts.MemoryBudget; b > 0 && size > b-d.allocated {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use", backend.ErrOutOfMemory, size, d.allocated, b)
	}
	d.allocated += size
	d.objects++
	return nil
}

func (d *Device) unreserve(size uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocated -= size
	d.objects--
}

// heapUsage is the hal usage a buffer in heap is created with. Host heaps
// add their map and copy usages to the allowed ones, so an upload buffer
// can still be bound as a vertex or uniform source.
func heapUsage(heap gpucore.HeapKind, usage gpucore.BufferUsage) gputypes.BufferUsage {
	allowed := bufferUsage(usage)
	switch heap {
	case gpucore.HeapHostUpload:
		return gputypes.BufferUsage(StateUpload) | allowed
	case gpucore.HeapHostReadback:
		return gputypes.BufferUsage(StateReadback) | allowed
	case gpucore.HeapHostVisible:
		return gputypes.BufferUsage(StateShared) | allowed
	default:
		return allowed
	}
}

// CreateBuffer creates a hal buffer. The initial state needs no barrier
// because hal buffers start in the usage they were created with.
func (d *Device) CreateBuffer(desc *backend.BufferDescriptor) (backend.Resource, error) {
	if desc == nil || desc.Size == 0 || !desc.Heap.Valid() {
		return nil, fmt.Errorf("wgpu: invalid buffer descriptor: %w", backend.ErrInvalidResource)
	}
	if err := d.reserve(desc.Size); err != nil {
		return nil, err
	}
	raw, err := d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: heapUsage(desc.Heap, desc.Usage),
	})
	if err != nil {
		d.unreserve(desc.Size)
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, translate(err))
	}
	return &resource{dev: d, label: desc.Label, heap: desc.Heap, size: desc.Size, buf: raw}, nil
}

// CreateTexture creates a hal texture. Only device-local textures exist
// on wgpu.
func (d *Device) CreateTexture(desc *backend.TextureDescriptor) (backend.Resource, error) {
	if desc == nil {
		return nil, fmt.Errorf("wgpu: nil texture descriptor: %w", backend.ErrInvalidResource)
	}
	fi, ok := gpucore.LookupFormat(desc.Format)
	s := desc.Size
	if !ok || s.Width == 0 || s.Height == 0 || s.DepthOrArrayLayers == 0 || desc.MipLevels == 0 {
		return nil, fmt.Errorf("wgpu: invalid texture %q %v %+v: %w", desc.Label, desc.Format, s, backend.ErrInvalidResource)
	}
	if desc.Heap != gpucore.HeapDeviceLocal {
		return nil, fmt.Errorf("wgpu: texture %q in %v heap: %w", desc.Label, desc.Heap, backend.ErrNotMappable)
	}
	size := textureSize(desc, fi)
	if err := d.reserve(size); err != nil {
		return nil, err
	}
	raw, err := d.raw.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: s.Width, Height: s.Height, DepthOrArrayLayers: s.DepthOrArrayLayers},
		MipLevelCount: desc.MipLevels,
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     desc.Type.Dimension(),
		Format:        desc.Format,
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		d.unreserve(size)
		return nil, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, translate(err))
	}
	return &resource{dev: d, label: desc.Label, heap: desc.Heap, size: size, tex: raw, desc: *desc, format: fi}, nil
}

func (d *Device) lookup(r backend.Resource) (*resource, error) {
	res, ok := r.(*resource)
	if !ok || res == nil || res.dev != d {
		return nil, fmt.Errorf("wgpu: foreign resource %T: %w", r, backend.ErrInvalidResource)
	}
	if !res.alive() {
		return nil, fmt.Errorf("wgpu: %q destroyed: %w", res.label, backend.ErrInvalidResource)
	}
	return res, nil
}

// Map maps a range of a host-heap buffer.
func (d *Device) Map(buf backend.Resource, offset, size uint64) ([]byte, error) {
	r, err := d.lookup(buf)
	if err != nil {
		return nil, err
	}
	if r.isTexture() || r.heap == gpucore.HeapDeviceLocal {
		return nil, fmt.Errorf("wgpu: map %q: %w", r.label, backend.ErrNotMappable)
	}
	if offset > r.size || size > r.size-offset {
		return nil, fmt.Errorf("wgpu: map [%d, +%d) of %d bytes: %w", offset, size, r.size, backend.ErrOutOfRange)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if size == 0 {
		r.mapped++
		return []byte{}, nil
	}
	m, err := d.raw.MapBuffer(r.buf, offset, size)
	if err != nil {
		return nil, fmt.Errorf("wgpu: map %q: %w", r.label, translate(err))
	}
	r.mapped++
	return unsafe.Slice((*byte)(m.Ptr), size), nil
}

// Unmap ends one mapping of buf; the hal buffer is unmapped with the last.
func (d *Device) Unmap(buf backend.Resource) error {
	r, err := d.lookup(buf)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapped == 0 {
		return fmt.Errorf("wgpu: unmap %q: not mapped: %w", r.label, backend.ErrInvalidState)
	}
	r.mapped--
	if r.mapped > 0 {
		return nil
	}
	if err := d.raw.UnmapBuffer(r.buf); err != nil {
		return fmt.Errorf("wgpu: unmap %q: %w", r.label, translate(err))
	}
	return nil
}

// CreateCommandList creates a list backed by a hal command encoder.
func (d *Device) CreateCommandList(label string) (backend.CommandList, error) {
	d.mu.Lock()
	destroyed := d.destroyed
	d.mu.Unlock()
	if destroyed {
		return nil, backend.ErrDeviceLost
	}
	enc, err := d.raw.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: command encoder %q: %w", label, translate(err))
	}
	return &commandList{dev: d, label: label, enc: enc}, nil
}

// CreateFence returns a fence at value 0.
func (d *Device) CreateFence() (backend.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, backend.ErrDeviceLost
	}
	f := &fence{dev: d}
	d.fences = append(d.fences, f)
	return f, nil
}

// Queue returns the device queue.
func (d *Device) Queue() backend.Queue { return d.q }

// WaitIdle blocks until the hal device is idle.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	destroyed := d.destroyed
	d.mu.Unlock()
	if destroyed {
		return backend.ErrDeviceLost
	}
	if err := d.raw.WaitIdle(); err != nil {
		return fmt.Errorf("wgpu: wait idle: %w", translate(err))
	}
	return nil
}

// Destroy waits for pending work, releases the hal device and fails
// fence waits.
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

	_ = d.raw.WaitIdle()
	for _, f := range fences {
		f.lose()
	}
	d.raw.Destroy()
	d.instance.Destroy()
}

// translate maps hal errors onto backend errors.
func translate(err error) error {
	switch {
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return fmt.Errorf("%w: %w", backend.ErrOutOfMemory, err)
	case errors.Is(err, hal.ErrDeviceLost):
		return fmt.Errorf("%w: %w", backend.ErrDeviceLost, err)
	case errors.Is(err, hal.ErrInvalidMapRange):
		return fmt.Errorf("%w: %w", backend.ErrOutOfRange, err)
	}
	return err
}
