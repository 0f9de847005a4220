package wgpu

import (
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// resource wraps a hal buffer or texture.
type resource struct {
	dev   *Device
	label string
	heap  gpucore.HeapKind
	size  uint64

	buf hal.Buffer

	tex    hal.Texture
	desc   backend.TextureDescriptor
	format gpucore.FormatInfo

	mu        sync.Mutex
	mapped    int
	destroyed bool
}

var _ backend.Resource = (*resource)(nil)

func (r *resource) Label() string { return r.label }

func (r *resource) isTexture() bool { return r.tex != nil }

// Destroy returns the allocation to the device budget once.
func (r *resource) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	mapped := r.mapped
	r.mapped = 0
	r.mu.Unlock()

	d := r.dev
	if r.buf != nil {
		if mapped > 0 {
			_ = d.raw.UnmapBuffer(r.buf)
		}
		d.raw.DestroyBuffer(r.buf)
	} else {
		d.raw.DestroyTexture(r.tex)
	}
	d.unreserve(r.size)
}

func (r *resource) alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.destroyed
}

func (r *resource) arrayLayers() uint32 {
	if r.desc.Type == gpucore.TextureType3D {
		return 1
	}
	return r.desc.Size.DepthOrArrayLayers
}

func (r *resource) levelExtent(level uint32) gputypes.Extent3D {
	return gpucore.MipExtent(r.desc.Size, r.desc.Type, level)
}

// textureSize estimates the bytes a texture occupies with tight rows.
func textureSize(desc *backend.TextureDescriptor, fi gpucore.FormatInfo) uint64 {
	layers := desc.Size.DepthOrArrayLayers
	if desc.Type == gpucore.TextureType3D {
		layers = 1
	}
	var total uint64
	for level := range desc.MipLevels {
		total += gpucore.FootprintFor(fi, gpucore.MipExtent(desc.Size, desc.Type, level), 1).Size() * uint64(layers)
	}
	return total * uint64(max(1, desc.SampleCount))
}
