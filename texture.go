package agpu

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
	"github.com/gogpu/agpu/internal/transfer"
)

// TextureDescription describes a texture to create. Zero counts default
// to 1, except ArrayLayers of cube textures which defaults to 6.
type TextureDescription struct {
	Label  string
	Type   gpucore.TextureType
	Format gputypes.TextureFormat

	Width  uint32
	Height uint32

	// Depth is the depth of 3D textures; other types leave it 0.
	Depth uint32

	// ArrayLayers is the layer count of 1D, 2D and cube textures. Cube
	// textures use six layers per cube.
	ArrayLayers uint32

	MipLevels   uint32
	SampleCount uint32
	Heap        gpucore.HeapKind

	// AllowedUsages are every usage the texture may be put in.
	AllowedUsages gpucore.TextureUsage

	// MainUsage is the usage the texture rests in between operations.
	// Zero selects AllowedUsages without the copy usages.
	MainUsage gpucore.TextureUsage

	// Flags enable UploadSubData and ReadSubData.
	Flags gpucore.TextureFlags
}

// Texture is a reference-counted GPU texture.
//
// Texture is safe for concurrent use; transfers on one texture are
// serialized.
type Texture struct {
	dev    *Device
	res    backend.Resource
	desc   TextureDescription
	format gpucore.FormatInfo

	refs     atomic.Int32
	released atomic.Bool

	mu    sync.Mutex
	usage gpucore.TextureUsage
}

func (desc *TextureDescription) normalize() {
	one := func(v *uint32) {
		if *v == 0 {
			*v = 1
		}
	}
	one(&desc.Height)
	one(&desc.Depth)
	one(&desc.MipLevels)
	one(&desc.SampleCount)
	if desc.ArrayLayers == 0 && desc.Type == gpucore.TextureTypeCube {
		desc.ArrayLayers = 6
	}
	one(&desc.ArrayLayers)

	if desc.MainUsage == 0 {
		desc.MainUsage = desc.AllowedUsages &^ (gpucore.TextureUsageCopySource | gpucore.TextureUsageCopyDestination)
		if desc.MainUsage == 0 {
			desc.MainUsage = desc.AllowedUsages
		}
	}
}

func (desc *TextureDescription) validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: texture %q: %s", ErrInvalidParameter, desc.Label, fmt.Sprintf(format, args...))
	}
	if _, ok := gpucore.LookupFormat(desc.Format); !ok {
		return bad("unknown format %v", desc.Format)
	}
	if desc.Width == 0 {
		return bad("width 0")
	}
	switch desc.Type {
	case gpucore.TextureType1D:
		if desc.Height != 1 || desc.Depth != 1 {
			return bad("1D texture with height %d depth %d", desc.Height, desc.Depth)
		}
	case gpucore.TextureType2D:
		if desc.Depth != 1 {
			return bad("2D texture with depth %d", desc.Depth)
		}
	case gpucore.TextureType3D:
		if desc.ArrayLayers != 1 {
			return bad("3D texture with %d array layers", desc.ArrayLayers)
		}
	case gpucore.TextureTypeCube:
		if desc.Width != desc.Height || desc.ArrayLayers%6 != 0 || desc.Depth != 1 {
			return bad("cube texture %dx%d with %d layers", desc.Width, desc.Height, desc.ArrayLayers)
		}
	default:
		return bad("type %v", desc.Type)
	}
	largest := max(desc.Width, desc.Height)
	if desc.Type == gpucore.TextureType3D {
		largest = max(largest, desc.Depth)
	}
	if maxLevels := uint32(bits.Len32(largest)); desc.MipLevels > maxLevels {
		return bad("%d mip levels, at most %d", desc.MipLevels, maxLevels)
	}
	if desc.SampleCount > 1 && desc.Flags != 0 {
		return bad("multisampled textures cannot be uploaded or read back")
	}
	if !desc.AllowedUsages.Contains(desc.MainUsage) {
		return bad("main usage %v outside allowed %v", desc.MainUsage, desc.AllowedUsages)
	}
	return nil
}

// extent returns the level 0 extent in backend form.
func (desc *TextureDescription) extent() gputypes.Extent3D {
	if desc.Type == gpucore.TextureType3D {
		return gputypes.NewExtent3D(desc.Width, desc.Height, desc.Depth)
	}
	return gputypes.NewExtent3D(desc.Width, desc.Height, desc.ArrayLayers)
}

// CreateTexture creates a texture and moves it into desc.MainUsage.
func (d *Device) CreateTexture(desc *TextureDescription) (*Texture, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: nil texture description", ErrInvalidParameter)
	}
	td := *desc
	td.normalize()
	if err := td.validate(); err != nil {
		return nil, err
	}
	if d.explicit() && td.Heap != gpucore.HeapDeviceLocal {
		return nil, fmt.Errorf("%w: texture %q in %v on an explicit device", ErrUnsupported, td.Label, td.Heap)
	}

	m := d.bd.Mapper()
	initial := m.TextureState(td.Heap, gpucore.TextureUsageNone)
	main, err := mapState(func(m backend.StateMapper) backend.State {
		return m.TextureState(td.Heap, td.MainUsage)
	}, m)
	if err != nil {
		return nil, fmt.Errorf("%w: texture %q: %w", ErrInvalidParameter, td.Label, err)
	}

	usage := td.AllowedUsages
	if td.Flags.Has(gpucore.TextureFlagUploaded) {
		usage |= gpucore.TextureUsageCopyDestination
	}
	if td.Flags.Has(gpucore.TextureFlagReadback) {
		usage |= gpucore.TextureUsageCopySource
	}
	res, err := d.bd.CreateTexture(&backend.TextureDescriptor{
		Label:        td.Label,
		Type:         td.Type,
		Format:       td.Format,
		Size:         td.extent(),
		MipLevels:    td.MipLevels,
		SampleCount:  td.SampleCount,
		Heap:         td.Heap,
		Usage:        usage,
		InitialState: initial,
	})
	if err != nil {
		return nil, translate("create texture "+td.Label, err)
	}

	fi, _ := gpucore.LookupFormat(td.Format)
	t := &Texture{dev: d, res: res, desc: td, format: fi, usage: gpucore.TextureUsageNone}
	t.refs.Store(1)
	d.live.Add(1)

	if d.explicit() && initial != main {
		err = d.xfer.WithSetupListDo(func(l *transfer.List) error {
			if err := l.Begin(); err != nil {
				return err
			}
			if err := l.TransitionTexture(res, td.Heap, gpucore.TextureUsageNone, td.MainUsage, backend.AllSubresources); err != nil {
				return err
			}
			return l.SubmitAndWait()
		})
		if err != nil {
			t.Release()
			return nil, translate("set up "+td.Label, err)
		}
	}
	t.usage = td.MainUsage
	return t, nil
}

// Description returns the normalized description of the texture.
func (t *Texture) Description() TextureDescription { return t.desc }

// Usage returns the usage the texture is currently in.
func (t *Texture) Usage() gpucore.TextureUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// LevelExtent returns the extent of a mip level; the depth is 1 except
// for 3D textures.
func (t *Texture) LevelExtent(level uint32) gputypes.Extent3D {
	return gpucore.MipExtent(t.desc.extent(), t.desc.Type, level)
}

// Retain adds a reference.
func (t *Texture) Retain() *Texture {
	t.refs.Add(1)
	return t
}

// Release drops a reference. The native texture is destroyed with the
// last one.
func (t *Texture) Release() {
	if t.refs.Add(-1) != 0 || t.released.Swap(true) {
		return
	}
	t.res.Destroy()
	t.dev.live.Add(-1)
}

func (t *Texture) checkAlive() error {
	if t.released.Load() {
		return fmt.Errorf("%w: texture %q released", ErrInvalidOperation, t.desc.Label)
	}
	return t.dev.checkOpen()
}

// texturePlan is a validated texture transfer: the texture region and the
// layout of the caller's memory.
type texturePlan struct {
	loc    backend.TextureLocation
	sub    backend.Subresource
	extent gputypes.Extent3D
	caller gpucore.Footprint
}

// plan validates a transfer of region (nil for the whole level) between
// subresource (level, layer) and dataLen bytes of caller memory laid out
// with pitch and slicePitch. Zero pitches are derived from callerSize, or
// from the region when callerSize is nil.
func (t *Texture) plan(level, layer uint32, pitch, slicePitch uint64, region *gpucore.Region3D, callerSize *gputypes.Extent3D, dataLen int) (texturePlan, error) {
	layers := t.desc.ArrayLayers
	if level >= t.desc.MipLevels || layer >= layers {
		return texturePlan{}, fmt.Errorf("%w: texture %q has no subresource (level %d, layer %d)",
			ErrOutOfBounds, t.desc.Label, level, layer)
	}
	levelExtent := t.LevelExtent(level)
	r := gpucore.FullRegion(levelExtent)
	if region != nil {
		r = *region
	}
	switch {
	case r.Empty():
		return texturePlan{}, fmt.Errorf("%w: empty region %+v", ErrInvalidParameter, r)
	case !r.Within(levelExtent):
		return texturePlan{}, fmt.Errorf("%w: region %+v outside level %d extent %+v of %q",
			ErrOutOfBounds, r, level, levelExtent, t.desc.Label)
	case !r.BlockAligned(t.format, levelExtent):
		return texturePlan{}, fmt.Errorf("%w: region %+v not aligned to %dx%d blocks",
			ErrInvalidParameter, r, t.format.BlockWidth, t.format.BlockHeight)
	}

	shape := r.Extent
	if callerSize != nil {
		if callerSize.Width < shape.Width || callerSize.Height < shape.Height || callerSize.DepthOrArrayLayers < shape.DepthOrArrayLayers {
			return texturePlan{}, fmt.Errorf("%w: caller size %+v smaller than region %+v", ErrInvalidParameter, *callerSize, shape)
		}
		shape = *callerSize
	}
	tight := gpucore.FootprintFor(t.format, shape, 1)
	fp := gpucore.FootprintFor(t.format, r.Extent, 1)
	if pitch == 0 {
		pitch = tight.RowBytes
	}
	if pitch < fp.RowBytes {
		return texturePlan{}, fmt.Errorf("%w: pitch %d below row size %d", ErrInvalidParameter, pitch, fp.RowBytes)
	}
	fp.RowPitch = pitch
	minSlice, ok := fp.MinSlicePitch()
	if slicePitch == 0 {
		tight.RowPitch = pitch
		slicePitch, ok = tight.MinSlicePitch()
	}
	if !ok {
		return texturePlan{}, fmt.Errorf("%w: pitch %d overflows %d rows", ErrInvalidParameter, pitch, tight.Rows)
	}
	if r.Extent.DepthOrArrayLayers > 1 && slicePitch < minSlice {
		return texturePlan{}, fmt.Errorf("%w: slice pitch %d below %d rows of %d", ErrInvalidParameter, slicePitch, fp.Rows, pitch)
	}
	fp.SlicePitch = slicePitch

	span, ok := fp.Span()
	if !ok {
		return texturePlan{}, fmt.Errorf("%w: pitches %d/%d overflow the layout", ErrInvalidParameter, pitch, slicePitch)
	}
	if uint64(dataLen) < span {
		return texturePlan{}, fmt.Errorf("%w: %d bytes of data, layout needs %d", ErrInvalidParameter, dataLen, span)
	}
	return texturePlan{
		loc:    backend.TextureLocation{MipLevel: level, ArrayLayer: layer, Origin: r.Origin},
		sub:    backend.Subresource{MipLevel: level, ArrayLayer: layer},
		extent: r.Extent,
		caller: fp,
	}, nil
}

// packed reports whether a footprint has no row or slice padding.
func packed(fp gpucore.Footprint) bool {
	slice, _ := fp.MinSlicePitch()
	return fp.Tight() && (fp.Extent.DepthOrArrayLayers == 1 || fp.SlicePitch == slice)
}

// repack copies the block rows of a region between two layouts.
func repack(dst []byte, dl gpucore.Footprint, src []byte, sl gpucore.Footprint) {
	if packed(dl) && packed(sl) {
		n, _ := sl.Span()
		copy(dst[dl.Offset:dl.Offset+n], src[sl.Offset:sl.Offset+n])
		return
	}
	for z := range uint64(sl.Extent.DepthOrArrayLayers) {
		for row := range uint64(sl.Rows) {
			d := dl.Offset + z*dl.SlicePitch + row*dl.RowPitch
			s := sl.Offset + z*sl.SlicePitch + row*sl.RowPitch
			copy(dst[d:d+sl.RowBytes], src[s:s+sl.RowBytes])
		}
	}
}

// stagingFootprint is the hardware layout of a region in staging memory.
func (t *Texture) stagingFootprint(e gputypes.Extent3D) gpucore.Footprint {
	return gpucore.FootprintFor(t.format, e, t.dev.limits.RowPitchAlignment)
}

// UploadSubData writes a region of one subresource. data holds the region
// rows pitch bytes apart and depth slices slicePitch bytes apart; zero
// pitches mean tightly packed rows of srcSize (or of the region when
// srcSize is nil). A nil dstRegion selects the whole mip level. The texture
// must have been created with TextureFlagUploaded.
func (t *Texture) UploadSubData(level, arrayIndex uint32, pitch, slicePitch uint64, srcSize *gputypes.Extent3D, dstRegion *gpucore.Region3D, data []byte) error {
	if err := t.checkAlive(); err != nil {
		return err
	}
	if !t.desc.Flags.Has(gpucore.TextureFlagUploaded) {
		return fmt.Errorf("%w: texture %q not created for upload", ErrUnsupported, t.desc.Label)
	}
	p, err := t.plan(level, arrayIndex, pitch, slicePitch, dstRegion, srcSize, len(data))
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dev.explicit() {
		acc, ok := t.dev.bd.(backend.TextureAccessor)
		if !ok {
			return fmt.Errorf("%w: backend %q cannot write textures directly", ErrUnsupported, t.dev.bd.Name())
		}
		return translate("write "+t.desc.Label, acc.WriteTexture(t.res, p.loc, p.caller, data))
	}

	fp := t.stagingFootprint(p.extent)
	heap := t.desc.Heap
	err = t.dev.xfer.WithUploadListDo(fp.Size(), t.dev.limits.PlacementAlignment, func(l *transfer.List) error {
		repack(l.Staging().Bytes(), fp, data, p.caller)
		if err := l.Begin(); err != nil {
			return err
		}
		if err := l.TransitionTexture(t.res, heap, t.usage, gpucore.TextureUsageCopyDestination, p.sub); err != nil {
			return err
		}
		if err := l.CopyStagingToTexture(t.res, p.loc, fp); err != nil {
			return err
		}
		if err := l.TransitionTexture(t.res, heap, gpucore.TextureUsageCopyDestination, t.desc.MainUsage, p.sub); err != nil {
			return err
		}
		return l.SubmitAndWait()
	})
	if err != nil {
		return translate("upload to "+t.desc.Label, err)
	}
	t.usage = t.desc.MainUsage
	return nil
}

// UploadData writes a whole mip level of one array layer.
func (t *Texture) UploadData(level, arrayIndex uint32, pitch, slicePitch uint64, data []byte) error {
	return t.UploadSubData(level, arrayIndex, pitch, slicePitch, nil, nil, data)
}

// ReadSubData reads a region of one subresource into data, laid out like
// the data argument of UploadSubData with dstSize describing the caller's
// memory. A nil srcRegion selects the whole mip level. The texture must
// have been created with TextureFlagReadback.
func (t *Texture) ReadSubData(level, arrayIndex uint32, pitch, slicePitch uint64, srcRegion *gpucore.Region3D, dstSize *gputypes.Extent3D, data []byte) error {
	if err := t.checkAlive(); err != nil {
		return err
	}
	if !t.desc.Flags.Has(gpucore.TextureFlagReadback) {
		return fmt.Errorf("%w: texture %q not created for readback", ErrUnsupported, t.desc.Label)
	}
	p, err := t.plan(level, arrayIndex, pitch, slicePitch, srcRegion, dstSize, len(data))
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dev.explicit() {
		acc, ok := t.dev.bd.(backend.TextureAccessor)
		if !ok {
			return fmt.Errorf("%w: backend %q cannot read textures directly", ErrUnsupported, t.dev.bd.Name())
		}
		return translate("read "+t.desc.Label, acc.ReadTexture(t.res, p.loc, p.caller, data))
	}

	fp := t.stagingFootprint(p.extent)
	heap := t.desc.Heap
	err = t.dev.xfer.WithReadbackListDo(fp.Size(), t.dev.limits.PlacementAlignment, func(l *transfer.List) error {
		if err := l.Begin(); err != nil {
			return err
		}
		if err := l.TransitionTexture(t.res, heap, t.usage, gpucore.TextureUsageCopySource, p.sub); err != nil {
			return err
		}
		if err := l.CopyTextureToStaging(t.res, p.loc, fp); err != nil {
			return err
		}
		if err := l.TransitionTexture(t.res, heap, gpucore.TextureUsageCopySource, t.desc.MainUsage, p.sub); err != nil {
			return err
		}
		if err := l.SubmitAndWait(); err != nil {
			return err
		}
		repack(data, p.caller, l.Staging().Bytes(), fp)
		return nil
	})
	if err != nil {
		return translate("read back "+t.desc.Label, err)
	}
	t.usage = t.desc.MainUsage
	return nil
}

// ReadData reads a whole mip level of one array layer.
func (t *Texture) ReadData(level, arrayIndex uint32, pitch, slicePitch uint64, data []byte) error {
	return t.ReadSubData(level, arrayIndex, pitch, slicePitch, nil, nil, data)
}
