package software

import (
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// resource is a buffer or texture stored in host memory.
// states and mapped are guarded by dev.mu.
type resource struct {
	dev   *Device
	id    uint64
	label string
	heap  gpucore.HeapKind
	size  uint64

	// Buffers.
	data   []byte
	mapped int

	// Textures.
	texture bool
	desc    backend.TextureDescriptor
	format  gpucore.FormatInfo
	subs    [][]byte

	states    []backend.State
	destroyed atomic.Bool
}

// Label returns the debug label.
func (r *resource) Label() string { return r.label }

// Destroy returns the resource memory to the device budget.
func (r *resource) Destroy() { r.dev.destroyResource(r) }

func (r *resource) mipLevels() uint32 { return r.desc.MipLevels }

// arrayLayers returns the number of array layers; 3D textures have one.
func (r *resource) arrayLayers() uint32 {
	if r.desc.Type == gpucore.TextureType3D {
		return 1
	}
	return r.desc.Size.DepthOrArrayLayers
}

func (r *resource) levelExtent(level uint32) gputypes.Extent3D {
	return gpucore.MipExtent(r.desc.Size, r.desc.Type, level)
}

// levelFootprint is the tight layout of one subresource in memory.
func (r *resource) levelFootprint(level uint32) gpucore.Footprint {
	return gpucore.FootprintFor(r.format, r.levelExtent(level), 1)
}

func (r *resource) subIndex(level, layer uint32) int {
	return int(gpucore.SubresourceIndex(level, layer, r.mipLevels()))
}

// validSub reports whether sub names an existing subresource.
func (r *resource) validSub(sub backend.Subresource) bool {
	if sub.All {
		return true
	}
	if !r.texture {
		return sub.MipLevel == 0 && sub.ArrayLayer == 0
	}
	return sub.MipLevel < r.mipLevels() && sub.ArrayLayer < r.arrayLayers()
}

// stateIndices returns the indices into states covered by sub.
func (r *resource) stateIndices(sub backend.Subresource) []int {
	if sub.All {
		idx := make([]int, len(r.states))
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if !r.texture {
		return []int{0}
	}
	return []int{r.subIndex(sub.MipLevel, sub.ArrayLayer)}
}

// textureBytes returns the memory needed by every subresource of desc.
func textureBytes(desc *backend.TextureDescriptor, fi gpucore.FormatInfo) uint64 {
	layers := desc.Size.DepthOrArrayLayers
	if desc.Type == gpucore.TextureType3D {
		layers = 1
	}
	var total uint64
	for level := range desc.MipLevels {
		fp := gpucore.FootprintFor(fi, gpucore.MipExtent(desc.Size, desc.Type, level), 1)
		total += fp.Size() * uint64(layers)
	}
	return total * uint64(max(1, desc.SampleCount))
}
