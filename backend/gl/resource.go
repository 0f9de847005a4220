package gl

import (
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// object is a buffer or texture. Its memory is touched only on the context
// goroutine, except through a mapping.
type object struct {
	dev   *Device
	label string
	heap  gpucore.HeapKind
	size  uint64

	data   []byte
	mapped int

	texture bool
	desc    backend.TextureDescriptor
	format  gpucore.FormatInfo
	subs    [][]byte

	deleted atomic.Bool
}

func (o *object) Label() string { return o.label }

// Destroy deletes the object on the context, after pending jobs.
func (o *object) Destroy() { o.dev.deleteObject(o) }

func (o *object) arrayLayers() uint32 {
	if o.desc.Type == gpucore.TextureType3D {
		return 1
	}
	return o.desc.Size.DepthOrArrayLayers
}

func (o *object) levelExtent(level uint32) gputypes.Extent3D {
	return gpucore.MipExtent(o.desc.Size, o.desc.Type, level)
}

func (o *object) sub(level, layer uint32) []byte {
	return o.subs[gpucore.SubresourceIndex(level, layer, o.desc.MipLevels)]
}

// textureSize returns the bytes of every subresource of desc.
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

// copyRows moves the block rows of a region between a subresource and a
// linear layout, in the direction chosen by upload.
func copyRows(tex *object, loc backend.TextureLocation, layout gpucore.Footprint, linear []byte, upload bool) {
	sub := tex.sub(loc.MipLevel, loc.ArrayLayer)
	level := gpucore.FootprintFor(tex.format, tex.levelExtent(loc.MipLevel), 1)
	fi := tex.format
	x := uint64(loc.Origin.X/fi.BlockWidth) * uint64(fi.BlockBytes)
	y := uint64(loc.Origin.Y / fi.BlockHeight)
	for z := range uint64(layout.Extent.DepthOrArrayLayers) {
		for row := range uint64(layout.Rows) {
			t := (uint64(loc.Origin.Z)+z)*level.SlicePitch + (y+row)*level.RowPitch + x
			l := layout.Offset + z*layout.SlicePitch + row*layout.RowPitch
			if upload {
				copy(sub[t:t+layout.RowBytes], linear[l:l+layout.RowBytes])
			} else {
				copy(linear[l:l+layout.RowBytes], sub[t:t+layout.RowBytes])
			}
		}
	}
}
