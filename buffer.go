package agpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
	"github.com/gogpu/agpu/internal/transfer"
)

// bufferCopyAlignment is the offset and size granularity of buffer copies.
const bufferCopyAlignment = 4

// BufferDescription describes a buffer to create.
type BufferDescription struct {
	Label string
	Size  uint64
	Heap  gpucore.HeapKind

	// AllowedUsages are every usage the buffer may be put in.
	AllowedUsages gpucore.BufferUsage

	// MainUsage is the usage the buffer rests in between operations. It
	// must be a subset of AllowedUsages. Zero selects AllowedUsages
	// without the copy usages.
	MainUsage gpucore.BufferUsage

	MappingFlags gpucore.MappingFlags
}

// BufferMapState represents the mapping state of a buffer.
type BufferMapState int

const (
	// BufferMapStateUnmapped means the buffer is not mapped.
	BufferMapStateUnmapped BufferMapState = iota
	// BufferMapStateMapped means the buffer is mapped.
	BufferMapStateMapped
)

// String returns the string representation of BufferMapState.
func (s BufferMapState) String() string {
	switch s {
	case BufferMapStateUnmapped:
		return "Unmapped"
	case BufferMapStateMapped:
		return "Mapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Buffer is a reference-counted GPU buffer.
//
// Buffer is safe for concurrent use. Transfers on one buffer are
// serialized. While a mapping from Map is live, UploadData and ReadData
// fail unless the buffer was created with MapPersistent; persistent
// mappings stay valid across transfers, which then go through the mapping
// itself on CPU-reachable heaps.
type Buffer struct {
	dev  *Device
	res  backend.Resource
	desc BufferDescription

	refs     atomic.Int32
	released atomic.Bool

	mu       sync.Mutex
	usage    gpucore.BufferUsage
	mapState BufferMapState
	mapping  []byte
}

// CreateBuffer creates a buffer in desc.MainUsage, filled with initialData
// if given. Initial data does not require MapDynamicStorage.
func (d *Device) CreateBuffer(desc *BufferDescription, initialData []byte) (*Buffer, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: nil buffer description", ErrInvalidParameter)
	}
	bd := *desc
	if bd.MainUsage == 0 {
		bd.MainUsage = bd.AllowedUsages &^ (gpucore.BufferUsageCopySource | gpucore.BufferUsageCopyDestination)
		if bd.MainUsage == 0 {
			bd.MainUsage = bd.AllowedUsages
		}
	}
	switch {
	case bd.Size == 0:
		return nil, fmt.Errorf("%w: buffer %q has size 0", ErrInvalidParameter, bd.Label)
	case !bd.Heap.Valid():
		return nil, fmt.Errorf("%w: buffer %q heap %v", ErrInvalidParameter, bd.Label, bd.Heap)
	case bd.MainUsage == 0 && bd.Heap == gpucore.HeapDeviceLocal:
		return nil, fmt.Errorf("%w: device-local buffer %q without usage", ErrInvalidParameter, bd.Label)
	case !bd.AllowedUsages.Contains(bd.MainUsage):
		return nil, fmt.Errorf("%w: main usage %v outside allowed %v", ErrInvalidParameter, bd.MainUsage, bd.AllowedUsages)
	case uint64(len(initialData)) > bd.Size:
		return nil, fmt.Errorf("%w: %d bytes of initial data for %d byte buffer", ErrOutOfBounds, len(initialData), bd.Size)
	}

	state, err := mapState(func(m backend.StateMapper) backend.State {
		return m.BufferState(bd.Heap, bd.MainUsage)
	}, d.bd.Mapper())
	if err != nil {
		return nil, fmt.Errorf("%w: buffer %q: %w", ErrInvalidParameter, bd.Label, err)
	}
	res, err := d.bd.CreateBuffer(&backend.BufferDescriptor{
		Label:        bd.Label,
		Size:         bd.Size,
		Heap:         bd.Heap,
		Usage:        bd.AllowedUsages | gpucore.BufferUsageCopySource | gpucore.BufferUsageCopyDestination,
		InitialState: state,
	})
	if err != nil {
		return nil, translate("create buffer "+bd.Label, err)
	}
	b := &Buffer{dev: d, res: res, desc: bd, usage: bd.MainUsage}
	b.refs.Store(1)
	d.live.Add(1)

	if len(initialData) > 0 {
		b.mu.Lock()
		err = b.write(0, initialData)
		b.mu.Unlock()
		if err != nil {
			b.Release()
			return nil, err
		}
	}
	return b, nil
}

// Description returns the description the buffer was created with.
func (b *Buffer) Description() BufferDescription { return b.desc }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Usage returns the usage the buffer is currently in.
func (b *Buffer) Usage() gpucore.BufferUsage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage
}

// MapState returns the current mapping state.
func (b *Buffer) MapState() BufferMapState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mapState
}

// Retain adds a reference.
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release drops a reference. The native buffer is destroyed with the
// last one.
func (b *Buffer) Release() {
	if b.refs.Add(-1) != 0 || b.released.Swap(true) {
		return
	}
	b.mu.Lock()
	if b.mapState == BufferMapStateMapped {
		if err := b.dev.bd.Unmap(b.res); err != nil {
			Logger().Warn("agpu: unmap on release failed", "label", b.desc.Label, "err", err)
		}
		b.mapState, b.mapping = BufferMapStateUnmapped, nil
	}
	b.mu.Unlock()
	b.res.Destroy()
	b.dev.live.Add(-1)
}

func (b *Buffer) checkAlive() error {
	if b.released.Load() {
		return fmt.Errorf("%w: buffer %q released", ErrInvalidOperation, b.desc.Label)
	}
	return b.dev.checkOpen()
}

// directWrite reports whether the CPU can write the buffer memory.
func (b *Buffer) directWrite() bool {
	return !b.dev.explicit() || b.desc.Heap.CPUWritable()
}

// directRead reports whether the CPU can read the buffer memory.
func (b *Buffer) directRead() bool {
	return !b.dev.explicit() || b.desc.Heap.CPUReadable()
}

// Map maps the whole buffer for CPU access. Reading requires MapRead and a
// CPU-readable heap; writing requires MapWrite and a CPU-writable heap.
func (b *Buffer) Map(access gpucore.MapAccess) ([]byte, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	if access.Reads() && (!b.desc.MappingFlags.Has(gpucore.MapRead) || !b.directRead()) {
		return nil, fmt.Errorf("%w: buffer %q is not readable from the CPU", ErrUnsupported, b.desc.Label)
	}
	if access.Writes() && (!b.desc.MappingFlags.Has(gpucore.MapWrite) || !b.directWrite()) {
		return nil, fmt.Errorf("%w: buffer %q is not writable from the CPU", ErrUnsupported, b.desc.Label)
	}
	if !access.Reads() && !access.Writes() {
		return nil, fmt.Errorf("%w: map access %v", ErrInvalidParameter, access)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mapState == BufferMapStateMapped {
		return nil, fmt.Errorf("%w: buffer %q already mapped", ErrInvalidOperation, b.desc.Label)
	}
	p, err := b.dev.bd.Map(b.res, 0, b.desc.Size)
	if err != nil {
		return nil, translate("map "+b.desc.Label, err)
	}
	b.mapState, b.mapping = BufferMapStateMapped, p
	return p, nil
}

// Unmap ends the mapping returned by Map.
func (b *Buffer) Unmap() error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mapState != BufferMapStateMapped {
		return fmt.Errorf("%w: buffer %q not mapped", ErrInvalidOperation, b.desc.Label)
	}
	if err := b.dev.bd.Unmap(b.res); err != nil {
		return translate("unmap "+b.desc.Label, err)
	}
	b.mapState, b.mapping = BufferMapStateUnmapped, nil
	return nil
}

// checkMapped rejects transfers while a non-persistent mapping is live.
// b.mu must be held.
func (b *Buffer) checkMapped() error {
	if b.mapState == BufferMapStateMapped && !b.desc.MappingFlags.Has(gpucore.MapPersistent) {
		return fmt.Errorf("%w: buffer %q is mapped", ErrInvalidOperation, b.desc.Label)
	}
	return nil
}

// checkRange validates [offset, offset+n) against the buffer.
func (b *Buffer) checkRange(offset uint64, n int) error {
	if offset > b.desc.Size || uint64(n) > b.desc.Size-offset {
		return fmt.Errorf("%w: [%d, +%d) of %d byte buffer %q", ErrOutOfBounds, offset, n, b.desc.Size, b.desc.Label)
	}
	return nil
}

// UploadData writes data at offset. The buffer must have been created with
// MapDynamicStorage. Device-local buffers are written through the upload
// staging buffer; the call returns once the GPU copy has completed.
func (b *Buffer) UploadData(offset uint64, data []byte) error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	if !b.desc.MappingFlags.Has(gpucore.MapDynamicStorage) {
		return fmt.Errorf("%w: buffer %q lacks dynamic storage", ErrUnsupported, b.desc.Label)
	}
	if err := b.checkRange(offset, len(data)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(offset, data)
}

// write performs an upload. b.mu must be held.
func (b *Buffer) write(offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := b.checkMapped(); err != nil {
		return err
	}
	n := uint64(len(data))
	if b.directWrite() && b.mapping != nil {
		copy(b.mapping[offset:offset+n], data)
		return nil
	}
	if b.directWrite() {
		p, err := b.dev.bd.Map(b.res, offset, n)
		if err != nil {
			return translate("map "+b.desc.Label, err)
		}
		copy(p, data)
		return translate("unmap "+b.desc.Label, b.dev.bd.Unmap(b.res))
	}

	heap := b.desc.Heap
	err := b.dev.xfer.WithUploadListDo(n, bufferCopyAlignment, func(l *transfer.List) error {
		copy(l.Staging().Bytes(), data)
		if err := l.Begin(); err != nil {
			return err
		}
		if err := l.TransitionBuffer(b.res, heap, b.usage, gpucore.BufferUsageCopyDestination); err != nil {
			return err
		}
		if err := l.CopyFromStaging(b.res, offset, n); err != nil {
			return err
		}
		if err := l.TransitionBuffer(b.res, heap, gpucore.BufferUsageCopyDestination, b.desc.MainUsage); err != nil {
			return err
		}
		return l.SubmitAndWait()
	})
	if err != nil {
		return translate("upload to "+b.desc.Label, err)
	}
	b.usage = b.desc.MainUsage
	return nil
}

// ReadData fills data with the buffer contents at offset. The buffer must
// have been created with MapRead. Device-local buffers are read through
// the readback staging buffer.
func (b *Buffer) ReadData(offset uint64, data []byte) error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	if !b.desc.MappingFlags.Has(gpucore.MapRead) {
		return fmt.Errorf("%w: buffer %q lacks read mapping", ErrUnsupported, b.desc.Label)
	}
	if err := b.checkRange(offset, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkMapped(); err != nil {
		return err
	}
	n := uint64(len(data))
	if b.directRead() && b.mapping != nil {
		copy(data, b.mapping[offset:offset+n])
		return nil
	}
	if b.directRead() {
		p, err := b.dev.bd.Map(b.res, offset, n)
		if err != nil {
			return translate("map "+b.desc.Label, err)
		}
		copy(data, p)
		return translate("unmap "+b.desc.Label, b.dev.bd.Unmap(b.res))
	}

	heap := b.desc.Heap
	err := b.dev.xfer.WithReadbackListDo(n, bufferCopyAlignment, func(l *transfer.List) error {
		if err := l.Begin(); err != nil {
			return err
		}
		if err := l.TransitionBuffer(b.res, heap, b.usage, gpucore.BufferUsageCopySource); err != nil {
			return err
		}
		if err := l.CopyToStaging(b.res, offset, n); err != nil {
			return err
		}
		if err := l.TransitionBuffer(b.res, heap, gpucore.BufferUsageCopySource, b.desc.MainUsage); err != nil {
			return err
		}
		if err := l.SubmitAndWait(); err != nil {
			return err
		}
		copy(data, l.Staging().Bytes())
		return nil
	})
	if err != nil {
		return translate("read back "+b.desc.Label, err)
	}
	b.usage = b.desc.MainUsage
	return nil
}
