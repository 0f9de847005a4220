package gpucore

import "github.com/gogpu/gputypes"

// FormatInfo describes the memory layout of one texel block.
// Uncompressed formats use 1x1 blocks.
type FormatInfo struct {
	BlockWidth  uint32
	BlockHeight uint32
	BlockBytes  uint32
}

// Compressed reports whether blocks span more than one texel.
func (fi FormatInfo) Compressed() bool {
	return fi.BlockWidth > 1 || fi.BlockHeight > 1
}

func texel(bytes uint32) FormatInfo { return FormatInfo{1, 1, bytes} }

func block(w, h, bytes uint32) FormatInfo { return FormatInfo{w, h, bytes} }

var formatTable = map[gputypes.TextureFormat]FormatInfo{
	gputypes.TextureFormatR8Unorm: texel(1),
	gputypes.TextureFormatR8Snorm: texel(1),
	gputypes.TextureFormatR8Uint:  texel(1),
	gputypes.TextureFormatR8Sint:  texel(1),

	gputypes.TextureFormatR16Unorm: texel(2),
	gputypes.TextureFormatR16Snorm: texel(2),
	gputypes.TextureFormatR16Uint:  texel(2),
	gputypes.TextureFormatR16Sint:  texel(2),
	gputypes.TextureFormatR16Float: texel(2),
	gputypes.TextureFormatRG8Unorm: texel(2),
	gputypes.TextureFormatRG8Snorm: texel(2),
	gputypes.TextureFormatRG8Uint:  texel(2),
	gputypes.TextureFormatRG8Sint:  texel(2),

	gputypes.TextureFormatR32Float:             texel(4),
	gputypes.TextureFormatR32Uint:              texel(4),
	gputypes.TextureFormatR32Sint:              texel(4),
	gputypes.TextureFormatRG16Unorm:            texel(4),
	gputypes.TextureFormatRG16Snorm:            texel(4),
	gputypes.TextureFormatRG16Uint:             texel(4),
	gputypes.TextureFormatRG16Sint:             texel(4),
	gputypes.TextureFormatRG16Float:            texel(4),
	gputypes.TextureFormatRGBA8Unorm:           texel(4),
	gputypes.TextureFormatRGBA8UnormSrgb:       texel(4),
	gputypes.TextureFormatRGBA8Snorm:           texel(4),
	gputypes.TextureFormatRGBA8Uint:            texel(4),
	gputypes.TextureFormatRGBA8Sint:            texel(4),
	gputypes.TextureFormatBGRA8Unorm:           texel(4),
	gputypes.TextureFormatBGRA8UnormSrgb:       texel(4),
	gputypes.TextureFormatRGB10A2Uint:          texel(4),
	gputypes.TextureFormatRGB10A2Unorm:         texel(4),
	gputypes.TextureFormatRG11B10Ufloat:        texel(4),
	gputypes.TextureFormatRGB9E5Ufloat:         texel(4),
	gputypes.TextureFormatRG32Float:            texel(8),
	gputypes.TextureFormatRG32Uint:             texel(8),
	gputypes.TextureFormatRG32Sint:             texel(8),
	gputypes.TextureFormatRGBA16Unorm:          texel(8),
	gputypes.TextureFormatRGBA16Snorm:          texel(8),
	gputypes.TextureFormatRGBA16Uint:           texel(8),
	gputypes.TextureFormatRGBA16Sint:           texel(8),
	gputypes.TextureFormatRGBA16Float:          texel(8),
	gputypes.TextureFormatRGBA32Float:          texel(16),
	gputypes.TextureFormatRGBA32Uint:           texel(16),
	gputypes.TextureFormatRGBA32Sint:           texel(16),
	gputypes.TextureFormatStencil8:             texel(1),
	gputypes.TextureFormatDepth16Unorm:         texel(2),
	gputypes.TextureFormatDepth24Plus:          texel(4),
	gputypes.TextureFormatDepth24PlusStencil8:  texel(4),
	gputypes.TextureFormatDepth32Float:         texel(4),
	gputypes.TextureFormatDepth32FloatStencil8: texel(8),

	gputypes.TextureFormatBC1RGBAUnorm:     block(4, 4, 8),
	gputypes.TextureFormatBC1RGBAUnormSrgb: block(4, 4, 8),
	gputypes.TextureFormatBC2RGBAUnorm:     block(4, 4, 16),
	gputypes.TextureFormatBC2RGBAUnormSrgb: block(4, 4, 16),
	gputypes.TextureFormatBC3RGBAUnorm:     block(4, 4, 16),
	gputypes.TextureFormatBC3RGBAUnormSrgb: block(4, 4, 16),
	gputypes.TextureFormatBC4RUnorm:        block(4, 4, 8),
	gputypes.TextureFormatBC4RSnorm:        block(4, 4, 8),
	gputypes.TextureFormatBC5RGUnorm:       block(4, 4, 16),
	gputypes.TextureFormatBC5RGSnorm:       block(4, 4, 16),
	gputypes.TextureFormatBC6HRGBUfloat:    block(4, 4, 16),
	gputypes.TextureFormatBC6HRGBFloat:     block(4, 4, 16),
	gputypes.TextureFormatBC7RGBAUnorm:     block(4, 4, 16),
	gputypes.TextureFormatBC7RGBAUnormSrgb: block(4, 4, 16),

	gputypes.TextureFormatETC2RGB8Unorm:       block(4, 4, 8),
	gputypes.TextureFormatETC2RGB8UnormSrgb:   block(4, 4, 8),
	gputypes.TextureFormatETC2RGB8A1Unorm:     block(4, 4, 8),
	gputypes.TextureFormatETC2RGB8A1UnormSrgb: block(4, 4, 8),
	gputypes.TextureFormatETC2RGBA8Unorm:      block(4, 4, 16),
	gputypes.TextureFormatETC2RGBA8UnormSrgb:  block(4, 4, 16),
	gputypes.TextureFormatEACR11Unorm:         block(4, 4, 8),
	gputypes.TextureFormatEACR11Snorm:         block(4, 4, 8),
	gputypes.TextureFormatEACRG11Unorm:        block(4, 4, 16),
	gputypes.TextureFormatEACRG11Snorm:        block(4, 4, 16),

	gputypes.TextureFormatASTC4x4Unorm:       block(4, 4, 16),
	gputypes.TextureFormatASTC4x4UnormSrgb:   block(4, 4, 16),
	gputypes.TextureFormatASTC5x4Unorm:       block(5, 4, 16),
	gputypes.TextureFormatASTC5x4UnormSrgb:   block(5, 4, 16),
	gputypes.TextureFormatASTC5x5Unorm:       block(5, 5, 16),
	gputypes.TextureFormatASTC5x5UnormSrgb:   block(5, 5, 16),
	gputypes.TextureFormatASTC6x5Unorm:       block(6, 5, 16),
	gputypes.TextureFormatASTC6x5UnormSrgb:   block(6, 5, 16),
	gputypes.TextureFormatASTC6x6Unorm:       block(6, 6, 16),
	gputypes.TextureFormatASTC6x6UnormSrgb:   block(6, 6, 16),
	gputypes.TextureFormatASTC8x5Unorm:       block(8, 5, 16),
	gputypes.TextureFormatASTC8x5UnormSrgb:   block(8, 5, 16),
	gputypes.TextureFormatASTC8x6Unorm:       block(8, 6, 16),
	gputypes.TextureFormatASTC8x6UnormSrgb:   block(8, 6, 16),
	gputypes.TextureFormatASTC8x8Unorm:       block(8, 8, 16),
	gputypes.TextureFormatASTC8x8UnormSrgb:   block(8, 8, 16),
	gputypes.TextureFormatASTC10x5Unorm:      block(10, 5, 16),
	gputypes.TextureFormatASTC10x5UnormSrgb:  block(10, 5, 16),
	gputypes.TextureFormatASTC10x6Unorm:      block(10, 6, 16),
	gputypes.TextureFormatASTC10x6UnormSrgb:  block(10, 6, 16),
	gputypes.TextureFormatASTC10x8Unorm:      block(10, 8, 16),
	gputypes.TextureFormatASTC10x8UnormSrgb:  block(10, 8, 16),
	gputypes.TextureFormatASTC10x10Unorm:     block(10, 10, 16),
	gputypes.TextureFormatASTC10x10UnormSrgb: block(10, 10, 16),
	gputypes.TextureFormatASTC12x10Unorm:     block(12, 10, 16),
	gputypes.TextureFormatASTC12x10UnormSrgb: block(12, 10, 16),
	gputypes.TextureFormatASTC12x12Unorm:     block(12, 12, 16),
	gputypes.TextureFormatASTC12x12UnormSrgb: block(12, 12, 16),
}

// LookupFormat returns the block layout of f.
// The second result is false for TextureFormatUndefined and unknown values.
func LookupFormat(f gputypes.TextureFormat) (FormatInfo, bool) {
	fi, ok := formatTable[f]
	return fi, ok
}
