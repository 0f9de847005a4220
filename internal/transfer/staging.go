package transfer

import (
	"fmt"
	"math"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// StagingPool is one persistently mapped host buffer that grows on demand
// and never shrinks.
//
// StagingPool is not safe for concurrent use; the owning List's role lock
// serializes access.
type StagingPool struct {
	dev     backend.Device
	role    Role
	heap    gpucore.HeapKind
	usage   gpucore.BufferUsage
	initial uint64

	res      backend.Resource
	mem      []byte
	capacity uint64
	grows    int
}

// NewStagingPool returns an empty pool for role. Nothing is allocated until
// the first EnsureCapacity. An initial capacity of 0 selects
// DefaultInitialCapacity.
func NewStagingPool(dev backend.Device, role Role, initial uint64) (*StagingPool, error) {
	heap, usage, ok := role.stagingHeap()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoStaging, role)
	}
	if initial == 0 {
		initial = DefaultInitialCapacity
	}
	return &StagingPool{
		dev:     dev,
		role:    role,
		heap:    heap,
		usage:   usage,
		initial: initial,
	}, nil
}

// EnsureCapacity makes the pool hold at least size bytes rounded up to
// alignment. A replacement buffer is max(initial, next power of two) bytes.
// On failure the previous buffer stays installed and usable.
func (p *StagingPool) EnsureCapacity(size, alignment uint64) error {
	required := gpucore.AlignUp(size, alignment)
	if required < size || required > math.MaxUint64/2+1 {
		return fmt.Errorf("%w: %d bytes for %v staging", backend.ErrOutOfMemory, size, p.role)
	}
	if p.res != nil && required <= p.capacity {
		return nil
	}

	capacity := max(gpucore.NextPowerOfTwo(required), p.initial)
	res, err := p.dev.CreateBuffer(&backend.BufferDescriptor{
		Label:        p.role.String() + " staging",
		Size:         capacity,
		Heap:         p.heap,
		Usage:        p.usage,
		InitialState: p.dev.Mapper().BufferState(p.heap, p.usage),
	})
	if err != nil {
		return fmt.Errorf("transfer: allocate %d byte %v staging: %w", capacity, p.role, err)
	}
	mem, err := p.dev.Map(res, 0, capacity)
	if err != nil {
		res.Destroy()
		return fmt.Errorf("transfer: map %v staging: %w", p.role, err)
	}

	old := p.res
	p.res, p.mem, p.capacity = res, mem, capacity
	p.grows++
	if old != nil {
		p.releaseBuffer(old)
	}
	slogger().Debug("transfer: staging grown",
		"role", p.role.String(), "capacity", capacity, "requested", size)
	return nil
}

func (p *StagingPool) releaseBuffer(res backend.Resource) {
	if err := p.dev.Unmap(res); err != nil {
		slogger().Warn("transfer: unmap staging", "role", p.role.String(), "err", err)
	}
	res.Destroy()
}

// Bytes returns the mapped staging memory, Capacity bytes long.
func (p *StagingPool) Bytes() []byte { return p.mem }

// Capacity returns the current buffer size, 0 before the first allocation.
func (p *StagingPool) Capacity() uint64 { return p.capacity }

// Resource returns the current staging buffer.
func (p *StagingPool) Resource() backend.Resource { return p.res }

// Grows returns how many buffers the pool has allocated.
func (p *StagingPool) Grows() int { return p.grows }

// Release unmaps and frees the buffer.
func (p *StagingPool) Release() {
	if p.res != nil {
		p.releaseBuffer(p.res)
	}
	p.res, p.mem, p.capacity = nil, nil, 0
}
