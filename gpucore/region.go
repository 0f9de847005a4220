package gpucore

import "github.com/gogpu/gputypes"

// Region3D is a box inside one mip level of a texture, in texels.
// For 3D textures Origin.Z and Extent.DepthOrArrayLayers address depth
// slices; for every other type they must be 0 and 1.
type Region3D struct {
	Origin gputypes.Origin3D
	Extent gputypes.Extent3D
}

// FullRegion returns the region covering all of e.
func FullRegion(e gputypes.Extent3D) Region3D {
	return Region3D{Extent: e}
}

// Empty reports whether the region covers no texels.
func (r Region3D) Empty() bool {
	return r.Extent.Width == 0 || r.Extent.Height == 0 || r.Extent.DepthOrArrayLayers == 0
}

// Within reports whether r lies entirely inside a level of extent e.
func (r Region3D) Within(e gputypes.Extent3D) bool {
	return uint64(r.Origin.X)+uint64(r.Extent.Width) <= uint64(e.Width) &&
		uint64(r.Origin.Y)+uint64(r.Extent.Height) <= uint64(e.Height) &&
		uint64(r.Origin.Z)+uint64(r.Extent.DepthOrArrayLayers) <= uint64(e.DepthOrArrayLayers)
}

// BlockAligned reports whether r starts on a block boundary of fi and
// either spans whole blocks or runs to the edge of the level extent e.
func (r Region3D) BlockAligned(fi FormatInfo, e gputypes.Extent3D) bool {
	if !fi.Compressed() {
		return true
	}
	if r.Origin.X%fi.BlockWidth != 0 || r.Origin.Y%fi.BlockHeight != 0 {
		return false
	}
	if r.Extent.Width%fi.BlockWidth != 0 && r.Origin.X+r.Extent.Width != e.Width {
		return false
	}
	if r.Extent.Height%fi.BlockHeight != 0 && r.Origin.Y+r.Extent.Height != e.Height {
		return false
	}
	return true
}

// MipExtent returns the extent of mip level of a texture whose level 0 is
// base. Array layers are not part of the result: 1D and 2D levels always
// have a depth of 1.
func MipExtent(base gputypes.Extent3D, typ TextureType, level uint32) gputypes.Extent3D {
	shrink := func(v uint32) uint32 {
		if level >= 32 {
			return 1
		}
		return max(1, v>>level)
	}
	e := gputypes.Extent3D{
		Width:              shrink(base.Width),
		Height:             1,
		DepthOrArrayLayers: 1,
	}
	if typ != TextureType1D {
		e.Height = shrink(base.Height)
	}
	if typ == TextureType3D {
		e.DepthOrArrayLayers = shrink(base.DepthOrArrayLayers)
	}
	return e
}

// SubresourceIndex flattens a (mip level, array layer) pair.
func SubresourceIndex(level, layer, mipLevels uint32) uint32 {
	return level + mipLevels*layer
}
