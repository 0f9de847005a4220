package software

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// Hardware resource states.
const (
	StateCommon                  backend.State = 0
	StateVertexAndConstantBuffer backend.State = 0x1
	StateIndexBuffer             backend.State = 0x2
	StateRenderTarget            backend.State = 0x4
	StateUnorderedAccess         backend.State = 0x8
	StateDepthWrite              backend.State = 0x10
	StateDepthRead               backend.State = 0x20
	StateNonPixelShaderResource  backend.State = 0x40
	StatePixelShaderResource     backend.State = 0x80
	StateIndirectArgument        backend.State = 0x200
	StateCopyDest                backend.State = 0x400
	StateCopySource              backend.State = 0x800

	StateGenericRead = StateVertexAndConstantBuffer | StateIndexBuffer |
		StateNonPixelShaderResource | StatePixelShaderResource |
		StateIndirectArgument | StateCopySource
	StatePresent        = StateCommon
	StateShaderResource = StateNonPixelShaderResource | StatePixelShaderResource
)

// Mapper is the StateMapper of software devices.
type Mapper struct{}

var bufferReadStates = map[gpucore.BufferUsage]backend.State{
	gpucore.BufferUsageCopySource:      StateCopySource,
	gpucore.BufferUsageVertex:          StateVertexAndConstantBuffer,
	gpucore.BufferUsageUniform:         StateVertexAndConstantBuffer,
	gpucore.BufferUsageIndex:           StateIndexBuffer,
	gpucore.BufferUsageReadOnlyStorage: StateShaderResource,
	gpucore.BufferUsageIndirect:        StateIndirectArgument,
	gpucore.BufferUsageGeneric:         StateGenericRead,
}

var bufferWriteStates = map[gpucore.BufferUsage]backend.State{
	gpucore.BufferUsageCopyDestination: StateCopyDest,
	gpucore.BufferUsageStorage:         StateUnorderedAccess,
}

// BufferState maps a buffer usage. Host heaps have a fixed state whatever
// the usage; device-local buffers combine read-only usages and require
// write usages to stand alone.
func (Mapper) BufferState(heap gpucore.HeapKind, usage gpucore.BufferUsage) backend.State {
	switch heap {
	case gpucore.HeapHostUpload:
		return StateGenericRead
	case gpucore.HeapHostReadback:
		return StateCopyDest
	case gpucore.HeapHostVisible:
		return StateCommon
	case gpucore.HeapDeviceLocal:
	default:
		panic(fmt.Sprintf("software: BufferState: invalid heap %v", heap))
	}

	if s, ok := bufferWriteStates[usage]; ok {
		return s
	}
	if usage == gpucore.BufferUsageNone {
		panic("software: BufferState: empty usage for device-local buffer")
	}
	var state backend.State
	for rest := usage; rest != 0; {
		bit := gpucore.BufferUsage(1) << bits.TrailingZeros32(uint32(rest))
		rest &^= bit
		s, ok := bufferReadStates[bit]
		if !ok {
			panic(fmt.Sprintf("software: BufferState: usage %v cannot be combined", usage))
		}
		state |= s
	}
	return state
}

var textureReadStates = map[gpucore.TextureUsage]backend.State{
	gpucore.TextureUsageCopySource: StateCopySource,
	gpucore.TextureUsageSampled:    StateShaderResource,
}

var textureWriteStates = map[gpucore.TextureUsage]backend.State{
	gpucore.TextureUsageNone:                                                    StateCommon,
	gpucore.TextureUsageCopyDestination:                                         StateCopyDest,
	gpucore.TextureUsageStorage:                                                 StateUnorderedAccess,
	gpucore.TextureUsageColorAttachment:                                         StateRenderTarget,
	gpucore.TextureUsageDepthAttachment:                                         StateDepthWrite,
	gpucore.TextureUsageStencilAttachment:                                       StateDepthWrite,
	gpucore.TextureUsageDepthAttachment | gpucore.TextureUsageStencilAttachment: StateDepthWrite,
	gpucore.TextureUsagePresent:                                                 StatePresent,
}

// TextureState maps a texture usage. A depth or stencil attachment that is
// also sampled is read-only depth.
func (Mapper) TextureState(heap gpucore.HeapKind, usage gpucore.TextureUsage) backend.State {
	switch heap {
	case gpucore.HeapHostUpload:
		return StateGenericRead
	case gpucore.HeapHostReadback:
		return StateCopyDest
	case gpucore.HeapHostVisible:
		return StateCommon
	case gpucore.HeapDeviceLocal:
	default:
		panic(fmt.Sprintf("software: TextureState: invalid heap %v", heap))
	}

	if s, ok := textureWriteStates[usage]; ok {
		return s
	}
	depthStencil := gpucore.TextureUsageDepthAttachment | gpucore.TextureUsageStencilAttachment
	var state backend.State
	if usage&depthStencil != 0 {
		state = StateDepthRead
		usage &^= depthStencil
		if usage&gpucore.TextureUsageSampled == 0 {
			panic(fmt.Sprintf("software: TextureState: usage %v cannot be combined", usage|depthStencil))
		}
	}
	for rest := usage; rest != 0; {
		bit := gpucore.TextureUsage(1) << bits.TrailingZeros32(uint32(rest))
		rest &^= bit
		s, ok := textureReadStates[bit]
		if !ok {
			panic(fmt.Sprintf("software: TextureState: usage %v cannot be combined", usage))
		}
		state |= s
	}
	return state
}

// stateString names a state for error messages.
func stateString(s backend.State) string {
	switch s {
	case StateCommon:
		return "Common"
	case StateGenericRead:
		return "GenericRead"
	case StateCopyDest:
		return "CopyDest"
	case StateCopySource:
		return "CopySource"
	case StateRenderTarget:
		return "RenderTarget"
	case StateUnorderedAccess:
		return "UnorderedAccess"
	case StateDepthWrite:
		return "DepthWrite"
	}
	return fmt.Sprintf("0x%x", uint64(s))
}
