package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// Mapper is the StateMapper of wgpu devices. A state is a gputypes usage
// mask: buffer states hold gputypes.BufferUsage bits and texture states
// hold gputypes.TextureUsage bits.
type Mapper struct{}

// Buffer states of the host heaps.
const (
	StateUpload   = backend.State(gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc)
	StateReadback = backend.State(gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst)
	StateShared   = backend.State(gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite |
		gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst)
)

var bufferUsages = map[gpucore.BufferUsage]gputypes.BufferUsage{
	gpucore.BufferUsageCopySource:      gputypes.BufferUsageCopySrc,
	gpucore.BufferUsageCopyDestination: gputypes.BufferUsageCopyDst,
	gpucore.BufferUsageVertex:          gputypes.BufferUsageVertex,
	gpucore.BufferUsageIndex:           gputypes.BufferUsageIndex,
	gpucore.BufferUsageUniform:         gputypes.BufferUsageUniform,
	gpucore.BufferUsageStorage:         gputypes.BufferUsageStorage,
	gpucore.BufferUsageReadOnlyStorage: gputypes.BufferUsageStorage,
	gpucore.BufferUsageIndirect:        gputypes.BufferUsageIndirect,
	gpucore.BufferUsageGeneric: gputypes.BufferUsageCopySrc | gputypes.BufferUsageVertex |
		gputypes.BufferUsageIndex | gputypes.BufferUsageUniform | gputypes.BufferUsageIndirect,
}

var textureUsages = map[gpucore.TextureUsage]gputypes.TextureUsage{
	gpucore.TextureUsageCopySource:        gputypes.TextureUsageCopySrc,
	gpucore.TextureUsageCopyDestination:   gputypes.TextureUsageCopyDst,
	gpucore.TextureUsageSampled:           gputypes.TextureUsageTextureBinding,
	gpucore.TextureUsageStorage:           gputypes.TextureUsageStorageBinding,
	gpucore.TextureUsageColorAttachment:   gputypes.TextureUsageRenderAttachment,
	gpucore.TextureUsageDepthAttachment:   gputypes.TextureUsageRenderAttachment,
	gpucore.TextureUsageStencilAttachment: gputypes.TextureUsageRenderAttachment,
	gpucore.TextureUsagePresent:           gputypes.TextureUsageNone,
}

// bufferUsage translates every flag of u.
func bufferUsage(u gpucore.BufferUsage) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	for bit, g := range bufferUsages {
		if u&bit != 0 {
			out |= g
		}
	}
	return out
}

// textureUsage translates every flag of u.
func textureUsage(u gpucore.TextureUsage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	for bit, g := range textureUsages {
		if u&bit != 0 {
			out |= g
		}
	}
	return out
}

// BufferState maps a buffer usage. Host heaps have a fixed state; on
// device-local buffers a writable usage must stand alone.
func (Mapper) BufferState(heap gpucore.HeapKind, usage gpucore.BufferUsage) backend.State {
	switch heap {
	case gpucore.HeapHostUpload:
		return StateUpload
	case gpucore.HeapHostReadback:
		return StateReadback
	case gpucore.HeapHostVisible:
		return StateShared
	case gpucore.HeapDeviceLocal:
	default:
		panic(fmt.Sprintf("wgpu: BufferState: invalid heap %v", heap))
	}
	if usage == gpucore.BufferUsageNone {
		panic("wgpu: BufferState: empty usage for device-local buffer")
	}
	if usage.Writable() && usage&(usage-1) != 0 {
		panic(fmt.Sprintf("wgpu: BufferState: usage %v cannot be combined", usage))
	}
	return backend.State(bufferUsage(usage))
}

// TextureState maps a texture usage. Present and None share the undefined
// state. Attachments may only be combined with sampling when they are
// depth or stencil attachments.
func (Mapper) TextureState(heap gpucore.HeapKind, usage gpucore.TextureUsage) backend.State {
	switch heap {
	case gpucore.HeapHostUpload, gpucore.HeapHostReadback, gpucore.HeapHostVisible:
		return 0
	case gpucore.HeapDeviceLocal:
	default:
		panic(fmt.Sprintf("wgpu: TextureState: invalid heap %v", heap))
	}
	depthStencil := gpucore.TextureUsageDepthAttachment | gpucore.TextureUsageStencilAttachment
	rest := usage &^ depthStencil
	switch {
	case usage&depthStencil != 0 && rest != 0 && rest != gpucore.TextureUsageSampled:
		panic(fmt.Sprintf("wgpu: TextureState: usage %v cannot be combined", usage))
	case usage&depthStencil == 0 && rest.Writable() && rest&(rest-1) != 0:
		panic(fmt.Sprintf("wgpu: TextureState: usage %v cannot be combined", usage))
	}
	return backend.State(textureUsage(usage))
}
