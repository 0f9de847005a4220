package gpucore

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
)

// ErrUnknownFormat is returned for formats without block information.
var ErrUnknownFormat = errors.New("gpucore: unknown texture format")

// Footprint is the linear layout of a texture region inside a buffer.
// Rows are block rows; compressed formats pack BlockHeight texel rows into
// one of them.
type Footprint struct {
	// Offset is the byte offset of the first block in the buffer.
	Offset uint64

	// RowBytes is the tight size of one block row.
	RowBytes uint64

	// RowPitch is the distance between consecutive block rows.
	RowPitch uint64

	// Rows is the number of block rows per depth slice.
	Rows uint32

	// SlicePitch is the distance between consecutive depth slices.
	SlicePitch uint64

	// Extent is the region size in texels.
	Extent gputypes.Extent3D
}

// Size returns the number of bytes the footprint spans, excluding Offset.
func (fp Footprint) Size() uint64 {
	return fp.SlicePitch * uint64(fp.Extent.DepthOrArrayLayers)
}

// Span returns the bytes from the first block to the end of the last
// block row, excluding Offset. The last row of the last slice is not
// padded. ok is false when the layout does not fit in uint64.
func (fp Footprint) Span() (span uint64, ok bool) {
	if fp.Rows == 0 || fp.Extent.DepthOrArrayLayers == 0 {
		return 0, true
	}
	hi1, slices := bits.Mul64(uint64(fp.Extent.DepthOrArrayLayers-1), fp.SlicePitch)
	hi2, rows := bits.Mul64(uint64(fp.Rows-1), fp.RowPitch)
	span, c1 := bits.Add64(slices, rows, 0)
	span, c2 := bits.Add64(span, fp.RowBytes, 0)
	return span, hi1|hi2|c1|c2 == 0
}

// MinSlicePitch returns RowPitch*Rows, the smallest slice pitch that keeps
// depth slices apart. ok is false on overflow.
func (fp Footprint) MinSlicePitch() (pitch uint64, ok bool) {
	hi, lo := bits.Mul64(fp.RowPitch, uint64(fp.Rows))
	return lo, hi == 0
}

// Tight reports whether the rows of the footprint follow each other with
// no padding.
func (fp Footprint) Tight() bool { return fp.RowPitch == fp.RowBytes }

// ComputeFootprint returns the layout of a region of extent e with each
// block row padded to rowAlignment bytes.
func ComputeFootprint(format gputypes.TextureFormat, e gputypes.Extent3D, rowAlignment uint64) (Footprint, error) {
	fi, ok := LookupFormat(format)
	if !ok {
		return Footprint{}, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
	return FootprintFor(fi, e, rowAlignment), nil
}

// FootprintFor is ComputeFootprint for a known block layout.
func FootprintFor(fi FormatInfo, e gputypes.Extent3D, rowAlignment uint64) Footprint {
	blocksWide := ceilDiv(e.Width, fi.BlockWidth)
	rows := ceilDiv(e.Height, fi.BlockHeight)
	rowBytes := uint64(blocksWide) * uint64(fi.BlockBytes)
	rowPitch := AlignUp(rowBytes, rowAlignment)
	return Footprint{
		RowBytes:   rowBytes,
		RowPitch:   rowPitch,
		Rows:       rows,
		SlicePitch: rowPitch * uint64(rows),
		Extent:     e,
	}
}

// AlignUp rounds v up to a multiple of alignment. Alignments of 0 and 1
// leave v unchanged.
func AlignUp(v, alignment uint64) uint64 {
	if alignment <= 1 {
		return v
	}
	return (v + alignment - 1) / alignment * alignment
}

// NextPowerOfTwo returns the smallest power of two >= v, and 1 for 0.
func NextPowerOfTwo(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len64(v-1)
}

func ceilDiv(v, d uint32) uint32 {
	if d <= 1 {
		return v
	}
	return (v + d - 1) / d
}
