package gpucore

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {255, 256}, {256, 256}, {257, 512},
		{2048 * 2048 * 4, 2048 * 2048 * 4},
		{2048*2048*4 + 1, 2 * 2048 * 2048 * 4},
	}
	for _, tt := range tests {
		if got := NextPowerOfTwo(tt.in); got != tt.want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, a, want uint64
	}{
		{0, 256, 0}, {1, 256, 256}, {256, 256, 256}, {257, 256, 512},
		{13, 0, 13}, {13, 1, 13}, {13, 4, 16},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.v, tt.a); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.v, tt.a, got, tt.want)
		}
	}
}

func TestComputeFootprint(t *testing.T) {
	tests := []struct {
		name      string
		format    gputypes.TextureFormat
		extent    gputypes.Extent3D
		align     uint64
		rowBytes  uint64
		rowPitch  uint64
		rows      uint32
		totalSize uint64
	}{
		{"rgba8 tight", gputypes.TextureFormatRGBA8Unorm, gputypes.NewExtent2D(64, 4), 256, 256, 256, 4, 1024},
		{"rgba8 padded", gputypes.TextureFormatRGBA8Unorm, gputypes.NewExtent2D(3, 2), 256, 12, 256, 2, 512},
		{"r8 no alignment", gputypes.TextureFormatR8Unorm, gputypes.NewExtent2D(5, 3), 1, 5, 5, 3, 15},
		{"bc1 partial block", gputypes.TextureFormatBC1RGBAUnorm, gputypes.NewExtent2D(6, 6), 4, 16, 16, 2, 32},
		{"rgba16f volume", gputypes.TextureFormatRGBA16Float, gputypes.NewExtent3D(4, 4, 3), 256, 32, 256, 4, 3072},
		{"astc 10x8", gputypes.TextureFormatASTC10x8Unorm, gputypes.NewExtent2D(20, 9), 1, 32, 32, 2, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, err := ComputeFootprint(tt.format, tt.extent, tt.align)
			if err != nil {
				t.Fatalf("ComputeFootprint() error = %v", err)
			}
			if fp.RowBytes != tt.rowBytes {
				t.Errorf("RowBytes = %d, want %d", fp.RowBytes, tt.rowBytes)
			}
			if fp.RowPitch != tt.rowPitch {
				t.Errorf("RowPitch = %d, want %d", fp.RowPitch, tt.rowPitch)
			}
			if fp.Rows != tt.rows {
				t.Errorf("Rows = %d, want %d", fp.Rows, tt.rows)
			}
			if fp.Size() != tt.totalSize {
				t.Errorf("Size() = %d, want %d", fp.Size(), tt.totalSize)
			}
		})
	}
}

func TestComputeFootprintUnknownFormat(t *testing.T) {
	_, err := ComputeFootprint(gputypes.TextureFormatUndefined, gputypes.NewExtent2D(1, 1), 1)
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ComputeFootprint(Undefined) error = %v, want ErrUnknownFormat", err)
	}
}

func TestFootprintSpan(t *testing.T) {
	rgba := gputypes.NewExtent2D(64, 4)
	tests := []struct {
		name  string
		fp    Footprint
		span  uint64
		slice uint64
		ok    bool
	}{
		{"padded rows", Footprint{RowBytes: 12, RowPitch: 256, Rows: 2, SlicePitch: 512, Extent: gputypes.NewExtent2D(3, 2)}, 268, 512, true},
		{"volume", Footprint{RowBytes: 8, RowPitch: 8, Rows: 2, SlicePitch: 32, Extent: gputypes.NewExtent3D(2, 2, 3)}, 80, 16, true},
		{"empty", Footprint{Extent: gputypes.Extent3D{}}, 0, 0, true},
		{"row pitch wraps", Footprint{RowBytes: 4, RowPitch: 1 << 62, Rows: 5, Extent: gputypes.NewExtent2D(1, 5)}, 4, 1 << 62, false},
		{"slice pitch wraps", Footprint{RowBytes: 4, RowPitch: 4, Rows: 1, SlicePitch: 1 << 63, Extent: gputypes.NewExtent3D(1, 1, 3)}, 4, 4, false},
		{"row bytes carry", Footprint{RowBytes: 8, RowPitch: ^uint64(0) - 3, Rows: 2, Extent: rgba}, 4, ^uint64(0) - 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, ok := tt.fp.Span()
			if ok != tt.ok {
				t.Fatalf("Span() ok = %v, want %v", ok, tt.ok)
			}
			if ok && span != tt.span {
				t.Errorf("Span() = %d, want %d", span, tt.span)
			}
			if slice, ok := tt.fp.MinSlicePitch(); ok && slice != tt.slice {
				t.Errorf("MinSlicePitch() = %d, want %d", slice, tt.slice)
			}
		})
	}
}

func TestFootprintTight(t *testing.T) {
	tight, _ := ComputeFootprint(gputypes.TextureFormatRGBA8Unorm, gputypes.NewExtent2D(64, 4), 256)
	padded, _ := ComputeFootprint(gputypes.TextureFormatRGBA8Unorm, gputypes.NewExtent2D(3, 2), 256)
	if !tight.Tight() {
		t.Error("256 byte rows at 256 alignment are not tight")
	}
	if padded.Tight() {
		t.Error("12 byte rows at 256 alignment are tight")
	}
}

func TestFormatCompressed(t *testing.T) {
	for _, tt := range []struct {
		format gputypes.TextureFormat
		want   bool
	}{
		{gputypes.TextureFormatRGBA8Unorm, false},
		{gputypes.TextureFormatR32Float, false},
		{gputypes.TextureFormatBC1RGBAUnorm, true},
		{gputypes.TextureFormatASTC10x8Unorm, true},
	} {
		fi, ok := LookupFormat(tt.format)
		if !ok {
			t.Fatalf("LookupFormat(%v) failed", tt.format)
		}
		if got := fi.Compressed(); got != tt.want {
			t.Errorf("%v: Compressed() = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestMipExtent(t *testing.T) {
	tests := []struct {
		name  string
		base  gputypes.Extent3D
		typ   TextureType
		level uint32
		want  gputypes.Extent3D
	}{
		{"2d level 0", gputypes.NewExtent2D(64, 32), TextureType2D, 0, gputypes.NewExtent2D(64, 32)},
		{"2d level 3", gputypes.NewExtent2D(64, 32), TextureType2D, 3, gputypes.NewExtent2D(8, 4)},
		{"2d clamps", gputypes.NewExtent2D(64, 32), TextureType2D, 6, gputypes.NewExtent2D(1, 1)},
		{"2d array ignores layers", gputypes.NewExtent3D(16, 16, 6), TextureType2D, 1, gputypes.NewExtent2D(8, 8)},
		{"1d", gputypes.NewExtent3D(16, 16, 1), TextureType1D, 2, gputypes.NewExtent2D(4, 1)},
		{"3d", gputypes.NewExtent3D(16, 8, 4), TextureType3D, 1, gputypes.NewExtent3D(8, 4, 2)},
		{"huge level", gputypes.NewExtent2D(16, 16), TextureType2D, 40, gputypes.NewExtent2D(1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MipExtent(tt.base, tt.typ, tt.level); got != tt.want {
				t.Errorf("MipExtent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRegionWithin(t *testing.T) {
	level := gputypes.NewExtent3D(8, 8, 4)
	tests := []struct {
		name string
		r    Region3D
		want bool
	}{
		{"full", FullRegion(level), true},
		{"inner", Region3D{Origin: gputypes.Origin3D{X: 2, Y: 2, Z: 1}, Extent: gputypes.NewExtent3D(4, 4, 2)}, true},
		{"x overflow", Region3D{Origin: gputypes.Origin3D{X: 6}, Extent: gputypes.NewExtent3D(4, 1, 1)}, false},
		{"z overflow", Region3D{Origin: gputypes.Origin3D{Z: 3}, Extent: gputypes.NewExtent3D(1, 1, 2)}, false},
		{"wraparound", Region3D{Origin: gputypes.Origin3D{X: ^uint32(0)}, Extent: gputypes.NewExtent3D(2, 1, 1)}, false},
	}
	for _, tt := range tests {
		if got := tt.r.Within(level); got != tt.want {
			t.Errorf("%s: Within() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRegionBlockAligned(t *testing.T) {
	fi, _ := LookupFormat(gputypes.TextureFormatBC3RGBAUnorm)
	level := gputypes.NewExtent2D(10, 10)
	tests := []struct {
		name string
		r    Region3D
		want bool
	}{
		{"whole blocks", Region3D{Extent: gputypes.NewExtent2D(8, 4)}, true},
		{"to the edge", Region3D{Origin: gputypes.Origin3D{X: 8, Y: 8}, Extent: gputypes.NewExtent2D(2, 2)}, true},
		{"misaligned origin", Region3D{Origin: gputypes.Origin3D{X: 2}, Extent: gputypes.NewExtent2D(4, 4)}, false},
		{"partial block inside", Region3D{Extent: gputypes.NewExtent2D(3, 4)}, false},
	}
	for _, tt := range tests {
		if got := tt.r.BlockAligned(fi, level); got != tt.want {
			t.Errorf("%s: BlockAligned() = %v, want %v", tt.name, got, tt.want)
		}
	}
	texels, _ := LookupFormat(gputypes.TextureFormatRGBA8Unorm)
	odd := Region3D{Origin: gputypes.Origin3D{X: 3, Y: 1}, Extent: gputypes.NewExtent2D(5, 7)}
	if !odd.BlockAligned(texels, level) {
		t.Error("uncompressed region reported unaligned")
	}
}

func TestSubresourceIndex(t *testing.T) {
	if got := SubresourceIndex(2, 3, 5); got != 17 {
		t.Errorf("SubresourceIndex(2, 3, 5) = %d, want 17", got)
	}
}
