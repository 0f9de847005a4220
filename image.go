package agpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/agpu/gpucore"
)

// imageLayout reports whether a format stores 8-bit channels in BGRA
// order; ok is false for formats images cannot be converted to.
func imageLayout(f gputypes.TextureFormat) (swizzled, ok bool) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		return false, true
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return true, true
	}
	return false, false
}

func swapRB(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}

func (t *Texture) imageFormat() (bool, error) {
	swizzled, ok := imageLayout(t.desc.Format)
	if !ok {
		return false, fmt.Errorf("%w: texture %q format %v holds no 8-bit color", ErrUnsupported, t.desc.Label, t.desc.Format)
	}
	return swizzled, nil
}

// uploadNRGBA writes straight-alpha pixels to the top-left corner of a
// subresource.
func (t *Texture) uploadNRGBA(level, layer uint32, px *image.NRGBA, swizzled bool) error {
	if swizzled {
		swapRB(px.Pix)
	}
	b := px.Bounds()
	region := gpucore.Region3D{Extent: gputypes.NewExtent2D(uint32(b.Dx()), uint32(b.Dy()))}
	return t.UploadSubData(level, layer, uint64(px.Stride), 0, nil, &region, px.Pix)
}

// UploadImage converts img to the texture format and writes it to the
// top-left corner of a subresource. The texture must be an RGBA8 or BGRA8
// texture.
func (t *Texture) UploadImage(level, arrayIndex uint32, img image.Image) error {
	swizzled, err := t.imageFormat()
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("%w: empty image", ErrInvalidParameter)
	}
	px := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(px, px.Bounds(), img, b.Min, draw.Src)
	return t.uploadNRGBA(level, arrayIndex, px, swizzled)
}

// UploadImageMips fills every mip level of an array layer with img scaled
// to the level extent.
func (t *Texture) UploadImageMips(arrayIndex uint32, img image.Image) error {
	swizzled, err := t.imageFormat()
	if err != nil {
		return err
	}
	src := img.Bounds()
	if src.Empty() {
		return fmt.Errorf("%w: empty image", ErrInvalidParameter)
	}
	for level := range t.desc.MipLevels {
		e := t.LevelExtent(level)
		px := image.NewNRGBA(image.Rect(0, 0, int(e.Width), int(e.Height)))
		if px.Bounds().Size() == src.Size() {
			draw.Draw(px, px.Bounds(), img, src.Min, draw.Src)
		} else {
			draw.BiLinear.Scale(px, px.Bounds(), img, src, draw.Src, nil)
		}
		if err := t.uploadNRGBA(level, arrayIndex, px, swizzled); err != nil {
			return fmt.Errorf("level %d: %w", level, err)
		}
	}
	return nil
}

// ReadImage reads a whole mip level of an array layer as an image.
func (t *Texture) ReadImage(level, arrayIndex uint32) (*image.NRGBA, error) {
	swizzled, err := t.imageFormat()
	if err != nil {
		return nil, err
	}
	if level >= t.desc.MipLevels {
		return nil, fmt.Errorf("%w: texture %q has %d mip levels", ErrOutOfBounds, t.desc.Label, t.desc.MipLevels)
	}
	e := t.LevelExtent(level)
	px := image.NewNRGBA(image.Rect(0, 0, int(e.Width), int(e.Height)))
	if err := t.ReadData(level, arrayIndex, uint64(px.Stride), 0, px.Pix); err != nil {
		return nil, err
	}
	if swizzled {
		swapRB(px.Pix)
	}
	return px, nil
}
