package backend

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/agpu/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrOutOfMemory is returned when an allocation cannot be satisfied.
	ErrOutOfMemory = errors.New("backend: out of memory")

	// ErrDeviceLost is returned after the device stopped accepting work.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrInvalidResource is returned for nil, foreign or destroyed resources.
	ErrInvalidResource = errors.New("backend: invalid resource")

	// ErrNotMappable is returned when mapping memory the CPU cannot reach.
	ErrNotMappable = errors.New("backend: resource is not mappable")

	// ErrInvalidState is returned when a command finds a resource in a
	// state other than the one it requires.
	ErrInvalidState = errors.New("backend: invalid resource state")

	// ErrOutOfRange is returned when a copy or mapping exceeds a resource.
	ErrOutOfRange = errors.New("backend: range out of bounds")

	// ErrCommandList is returned when a command list is used out of order.
	ErrCommandList = errors.New("backend: command list misuse")
)

// Backend names.
const (
	BackendWGPU     = "wgpu"
	BackendSoftware = "software"
	BackendGL       = "gl"
)

// Backend opens devices of one native API.
type Backend interface {
	// Name returns the backend identifier (e.g., "software", "wgpu").
	Name() string

	// Open creates a device.
	Open(cfg Config) (Device, error)
}

// Config carries the settings shared by all backends. Zero values select
// backend defaults.
type Config struct {
	// Label names the device in logs.
	Label string

	// MemoryBudget caps the bytes a device may allocate.
	MemoryBudget uint64

	// Adapter selects a native sub-backend, such as "vulkan" for wgpu.
	Adapter string
}

// Variant tells whether a device needs explicit barriers and staging.
type Variant uint8

// Device variants.
const (
	// Explicit devices track hardware states and need staged transfers.
	Explicit Variant = iota

	// Implicit devices synchronize internally and expose all memory.
	Implicit
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case Explicit:
		return "Explicit"
	case Implicit:
		return "Implicit"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// State is an opaque hardware resource state produced by a StateMapper.
type State uint64

// Limits are device constants the transfer layer has to honor.
type Limits struct {
	// RowPitchAlignment is the byte alignment of texture rows in buffers.
	RowPitchAlignment uint64

	// PlacementAlignment is the byte alignment of texture data offsets.
	PlacementAlignment uint64

	// MaxBufferSize is the largest buffer the device can allocate.
	MaxBufferSize uint64
}

// Resource is a buffer or texture owned by a device.
type Resource interface {
	// Label returns the debug label given at creation.
	Label() string

	// Destroy frees the resource. It is safe to call more than once.
	Destroy()
}

// BufferDescriptor describes a buffer.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Heap  gpucore.HeapKind

	// Usage is the set of usages the buffer may ever be put in.
	Usage gpucore.BufferUsage

	// InitialState is the state the buffer is created in.
	InitialState State
}

// TextureDescriptor describes a texture.
type TextureDescriptor struct {
	Label  string
	Type   gpucore.TextureType
	Format gputypes.TextureFormat

	// Size holds the level 0 extent. DepthOrArrayLayers is the depth of
	// 3D textures and the layer count of every other type.
	Size gputypes.Extent3D

	MipLevels   uint32
	SampleCount uint32
	Heap        gpucore.HeapKind

	// Usage is the set of usages the texture may ever be put in.
	Usage gpucore.TextureUsage

	// InitialState is the state every subresource is created in.
	InitialState State
}

// Subresource selects one mip level of one array layer, or all of them.
type Subresource struct {
	MipLevel   uint32
	ArrayLayer uint32
	All        bool
}

// AllSubresources selects every subresource; buffers always use it.
var AllSubresources = Subresource{All: true}

// Barrier transitions a resource between two states.
type Barrier struct {
	Resource    Resource
	Before      State
	After       State
	Subresource Subresource
}

// TextureLocation addresses a texel inside one subresource.
type TextureLocation struct {
	MipLevel   uint32
	ArrayLayer uint32
	Origin     gputypes.Origin3D
}

// StateMapper translates a (heap, usage) pair into a hardware state.
// Implementations are pure and panic on pairs they cannot express.
type StateMapper interface {
	BufferState(heap gpucore.HeapKind, usage gpucore.BufferUsage) State
	TextureState(heap gpucore.HeapKind, usage gpucore.TextureUsage) State
}

// Device is a native GPU device.
type Device interface {
	Name() string
	Variant() Variant
	Limits() Limits
	Mapper() StateMapper
	AdapterInfo() gpucontext.AdapterInfo

	CreateBuffer(desc *BufferDescriptor) (Resource, error)
	CreateTexture(desc *TextureDescriptor) (Resource, error)

	// Map returns CPU access to size bytes of a buffer starting at offset.
	// The slice stays valid until Unmap.
	Map(buf Resource, offset, size uint64) ([]byte, error)
	Unmap(buf Resource) error

	CreateCommandList(label string) (CommandList, error)
	CreateFence() (Fence, error)
	Queue() Queue

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Destroy releases the device. Resources must be destroyed first.
	Destroy()
}

// CommandList records GPU commands. Recording methods never fail; the
// first recording error is reported by Close.
type CommandList interface {
	// Reset discards recorded commands and starts a new recording.
	Reset() error

	Barrier(barriers ...Barrier)
	CopyBuffer(dst Resource, dstOffset uint64, src Resource, srcOffset, size uint64)
	CopyBufferToTexture(dst Resource, loc TextureLocation, src Resource, layout gpucore.Footprint)
	CopyTextureToBuffer(dst Resource, layout gpucore.Footprint, src Resource, loc TextureLocation)

	// Close ends the recording.
	Close() error

	Destroy()
}

// Queue executes command lists in submission order.
type Queue interface {
	Submit(lists ...CommandList) error

	// Signal sets f to value once all previously submitted work completes.
	Signal(f Fence, value uint64) error
}

// Fence is a monotonically increasing completion counter.
type Fence interface {
	CompletedValue() uint64

	// Wait blocks until the fence reaches value.
	Wait(value uint64) error

	Destroy()
}

// TextureAccessor is implemented by implicit devices that move texture
// data without command lists. Layout describes data in the caller's buffer.
type TextureAccessor interface {
	WriteTexture(dst Resource, loc TextureLocation, layout gpucore.Footprint, data []byte) error
	ReadTexture(src Resource, loc TextureLocation, layout gpucore.Footprint, data []byte) error
}
