package gl

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// Device is an implicit device.
//
// Device is safe for concurrent use; all work is serialized on its context.
type Device struct {
	opts Options
	ctx  *glContext

	mu        sync.Mutex
	allocated uint64
	objects   int
	fences    []*fence
	destroyed bool
}

var (
	_ backend.Device          = (*Device)(nil)
	_ backend.TextureAccessor = (*Device)(nil)
)

// New creates a device and starts its context goroutine.
func New(opts Options) *Device {
	if opts.Label == "" {
		opts.Label = "gl"
	}
	return &Device{opts: opts, ctx: newContext()}
}

// Name returns the device label.
func (d *Device) Name() string { return d.opts.Label }

// Variant returns backend.Implicit.
func (d *Device) Variant() backend.Variant { return backend.Implicit }

// Limits reports the unpack alignment for recorded texture copies.
func (d *Device) Limits() backend.Limits {
	return backend.Limits{
		RowPitchAlignment:  UnpackAlignment,
		PlacementAlignment: UnpackAlignment,
		MaxBufferSize:      d.opts.MemoryBudget,
	}
}

// Mapper returns a mapper that reports a single state.
func (d *Device) Mapper() backend.StateMapper { return Mapper{} }

// AdapterInfo reports a software adapter.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "agpu gl", Type: gpucontext.AdapterTypeSoftware}
}

// Jobs returns the number of jobs the context has started.
func (d *Device) Jobs() uint64 { return d.ctx.ran.Load() }

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

// create allocates storage for o on the context.
func (d *Device) create(o *object, alloc func()) (backend.Resource, error) {
	if err := d.reserve(o.size); err != nil {
		return nil, err
	}
	if err := d.ctx.do(alloc); err != nil {
		d.unreserve(o.size)
		return nil, err
	}
	return o, nil
}

// CreateBuffer allocates a buffer; the initial state is ignored.
func (d *Device) CreateBuffer(desc *backend.BufferDescriptor) (backend.Resource, error) {
	if desc == nil || desc.Size == 0 || !desc.Heap.Valid() {
		return nil, fmt.Errorf("gl: invalid buffer descriptor: %w", backend.ErrInvalidResource)
	}
	o := &object{dev: d, label: desc.Label, heap: desc.Heap, size: desc.Size}
	return d.create(o, func() { o.data = make([]byte, desc.Size) })
}

// CreateTexture allocates a texture in any heap.
func (d *Device) CreateTexture(desc *backend.TextureDescriptor) (backend.Resource, error) {
	if desc == nil {
		return nil, fmt.Errorf("gl: nil texture descriptor: %w", backend.ErrInvalidResource)
	}
	fi, ok := gpucore.LookupFormat(desc.Format)
	s := desc.Size
	if !ok || s.Width == 0 || s.Height == 0 || s.DepthOrArrayLayers == 0 || desc.MipLevels == 0 {
		return nil, fmt.Errorf("gl: invalid texture %q %v %+v: %w", desc.Label, desc.Format, s, backend.ErrInvalidResource)
	}
	o := &object{
		dev:     d,
		label:   desc.Label,
		heap:    desc.Heap,
		size:    textureSize(desc, fi),
		texture: true,
		desc:    *desc,
		format:  fi,
	}
	return d.create(o, func() {
		o.subs = make([][]byte, desc.MipLevels*o.arrayLayers())
		for layer := range o.arrayLayers() {
			for level := range desc.MipLevels {
				fp := gpucore.FootprintFor(fi, o.levelExtent(level), 1)
				o.subs[gpucore.SubresourceIndex(level, layer, desc.MipLevels)] = make([]byte, fp.Size())
			}
		}
	})
}

func (d *Device) lookup(r backend.Resource) (*object, error) {
	o, ok := r.(*object)
	if !ok || o == nil || o.dev != d {
		return nil, fmt.Errorf("gl: foreign resource %T: %w", r, backend.ErrInvalidResource)
	}
	if o.deleted.Load() {
		return nil, fmt.Errorf("gl: %q deleted: %w", o.label, backend.ErrInvalidResource)
	}
	return o, nil
}

func (d *Device) deleteObject(o *object) {
	if o.deleted.Swap(true) {
		return
	}
	d.unreserve(o.size)
	// Storage is dropped once jobs already referring to it have run.
	_ = d.ctx.post(func() {
		o.data, o.subs = nil, nil
	})
}

// Map maps a range of a buffer in any heap, like glMapBufferRange after
// the context has finished pending work on it.
func (d *Device) Map(buf backend.Resource, offset, size uint64) ([]byte, error) {
	o, err := d.lookup(buf)
	if err != nil {
		return nil, err
	}
	if o.texture {
		return nil, fmt.Errorf("gl: map texture %q: %w", o.label, backend.ErrNotMappable)
	}
	if offset > o.size || size > o.size-offset {
		return nil, fmt.Errorf("gl: map [%d, +%d) of %d bytes: %w", offset, size, o.size, backend.ErrOutOfRange)
	}
	var p []byte
	err = d.ctx.do(func() {
		o.mapped++
		p = o.data[offset : offset+size : offset+size]
	})
	return p, err
}

// Unmap ends one mapping of buf.
func (d *Device) Unmap(buf backend.Resource) error {
	o, err := d.lookup(buf)
	if err != nil {
		return err
	}
	var unmapErr error
	err = d.ctx.do(func() {
		if o.mapped == 0 {
			unmapErr = fmt.Errorf("gl: unmap %q: not mapped: %w", o.label, backend.ErrInvalidState)
			return
		}
		o.mapped--
	})
	if err != nil {
		return err
	}
	return unmapErr
}

// checkTexture validates a texture region against layout and data.
func (d *Device) checkTexture(res backend.Resource, loc backend.TextureLocation, layout gpucore.Footprint, n int) (*object, error) {
	o, err := d.lookup(res)
	if err != nil {
		return nil, err
	}
	if !o.texture {
		return nil, fmt.Errorf("gl: %q is not a texture: %w", o.label, backend.ErrInvalidResource)
	}
	if loc.MipLevel >= o.desc.MipLevels || loc.ArrayLayer >= o.arrayLayers() {
		return nil, fmt.Errorf("gl: %q has no subresource (%d, %d): %w", o.label, loc.MipLevel, loc.ArrayLayer, backend.ErrOutOfRange)
	}
	level := o.levelExtent(loc.MipLevel)
	region := gpucore.Region3D{Origin: loc.Origin, Extent: layout.Extent}
	if region.Empty() || !region.Within(level) || !region.BlockAligned(o.format, level) {
		return nil, fmt.Errorf("gl: region %+v of %q level %d: %w", region, o.label, loc.MipLevel, backend.ErrOutOfRange)
	}
	want := gpucore.FootprintFor(o.format, layout.Extent, 1)
	if layout.RowBytes != want.RowBytes || layout.Rows != want.Rows || layout.RowPitch < layout.RowBytes {
		return nil, fmt.Errorf("gl: layout %+v for region %+v: %w", layout, region, backend.ErrOutOfRange)
	}
	minSlice, ok := layout.MinSlicePitch()
	if !ok || layout.Extent.DepthOrArrayLayers > 1 && layout.SlicePitch < minSlice {
		return nil, fmt.Errorf("gl: slice pitch %d for %d rows of %d: %w", layout.SlicePitch, layout.Rows, layout.RowPitch, backend.ErrOutOfRange)
	}
	span, ok := layout.Span()
	if !ok || layout.Offset > uint64(n) || span > uint64(n)-layout.Offset {
		return nil, fmt.Errorf("gl: %d bytes for a %d byte layout: %w", n, span, backend.ErrOutOfRange)
	}
	return o, nil
}

// WriteTexture uploads a region from data laid out as layout, like
// glTexSubImage3D with GL_UNPACK_ROW_LENGTH set from the row pitch.
func (d *Device) WriteTexture(dst backend.Resource, loc backend.TextureLocation, layout gpucore.Footprint, data []byte) error {
	o, err := d.checkTexture(dst, loc, layout, len(data))
	if err != nil {
		return err
	}
	return d.ctx.do(func() { copyRows(o, loc, layout, data, true) })
}

// ReadTexture reads a region into data laid out as layout.
func (d *Device) ReadTexture(src backend.Resource, loc backend.TextureLocation, layout gpucore.Footprint, data []byte) error {
	o, err := d.checkTexture(src, loc, layout, len(data))
	if err != nil {
		return err
	}
	return d.ctx.do(func() { copyRows(o, loc, layout, data, false) })
}

// CreateCommandList returns an idle command list.
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

// Queue returns the context queue.
func (d *Device) Queue() backend.Queue { return queue{d} }

// WaitIdle blocks until every job posted so far has run, like glFinish.
func (d *Device) WaitIdle() error {
	return d.ctx.do(func() {})
}

// Destroy runs the pending jobs, stops the context and fails fence waits.
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

	d.ctx.stop()
	for _, f := range fences {
		f.lose()
	}
}

// Mapper is the StateMapper of GL devices. Every usage maps to state 0.
type Mapper struct{}

// BufferState returns 0.
func (Mapper) BufferState(gpucore.HeapKind, gpucore.BufferUsage) backend.State { return 0 }

// TextureState returns 0.
func (Mapper) TextureState(gpucore.HeapKind, gpucore.TextureUsage) backend.State { return 0 }
