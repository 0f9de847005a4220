package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

type listState uint8

const (
	listInitial listState = iota
	listRecording
	listClosed
)

// commandList records into a hal command encoder. Arguments are checked
// before they reach the encoder; hal implementations do not validate.
type commandList struct {
	dev   *Device
	label string
	enc   hal.CommandEncoder

	mu    sync.Mutex
	state listState
	err   error

	// done holds command buffers ended by Close and not yet reset.
	done []hal.CommandBuffer
}

var _ backend.CommandList = (*commandList)(nil)

// Reset frees the command buffers of earlier recordings and begins a new
// one. Callers reset only after the previous submission completed.
func (c *commandList) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == listRecording {
		c.enc.DiscardEncoding()
	}
	if len(c.done) > 0 {
		c.enc.ResetAll(c.done)
		c.done = nil
	}
	c.err = nil
	if err := c.enc.BeginEncoding(c.label); err != nil {
		c.state = listInitial
		return fmt.Errorf("wgpu: %s: begin: %w", c.label, translate(err))
	}
	c.state = listRecording
	return nil
}

// fail keeps the first recording error. c.mu must be held.
func (c *commandList) fail(err error) {
	if c.err == nil {
		c.err = fmt.Errorf("wgpu: %s: %w", c.label, err)
	}
}

// recording reports whether commands may be encoded. c.mu must be held.
func (c *commandList) recording(what string) bool {
	if c.state != listRecording {
		c.fail(fmt.Errorf("%s outside recording: %w", what, backend.ErrCommandList))
		return false
	}
	return c.err == nil
}

func (c *commandList) Barrier(barriers ...backend.Barrier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording("Barrier") {
		return
	}
	var bufs []hal.BufferBarrier
	var texs []hal.TextureBarrier
	for _, b := range barriers {
		r, err := c.dev.lookup(b.Resource)
		if err != nil {
			c.fail(err)
			return
		}
		if b.Before == b.After {
			c.fail(fmt.Errorf("barrier on %q to the same state: %w", r.label, backend.ErrInvalidState))
			return
		}
		if !r.isTexture() {
			bufs = append(bufs, hal.BufferBarrier{
				Buffer: r.buf,
				Usage: hal.BufferUsageTransition{
					OldUsage: gputypes.BufferUsage(b.Before),
					NewUsage: gputypes.BufferUsage(b.After),
				},
			})
			continue
		}
		rng, err := textureRange(r, b.Subresource)
		if err != nil {
			c.fail(err)
			return
		}
		texs = append(texs, hal.TextureBarrier{
			Texture: r.tex,
			Range:   rng,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsage(b.Before),
				NewUsage: gputypes.TextureUsage(b.After),
			},
		})
	}
	if len(bufs) > 0 {
		c.enc.TransitionBuffers(bufs)
	}
	if len(texs) > 0 {
		c.enc.TransitionTextures(texs)
	}
}

func textureRange(r *resource, sub backend.Subresource) (hal.TextureRange, error) {
	rng := hal.TextureRange{Aspect: gputypes.TextureAspectAll}
	if sub.All {
		rng.MipLevelCount = r.desc.MipLevels
		rng.ArrayLayerCount = r.arrayLayers()
		return rng, nil
	}
	if sub.MipLevel >= r.desc.MipLevels || sub.ArrayLayer >= r.arrayLayers() {
		return rng, fmt.Errorf("barrier on %q subresource %+v: %w", r.label, sub, backend.ErrOutOfRange)
	}
	rng.BaseMipLevel, rng.MipLevelCount = sub.MipLevel, 1
	rng.BaseArrayLayer, rng.ArrayLayerCount = sub.ArrayLayer, 1
	return rng, nil
}

func (c *commandList) CopyBuffer(dst backend.Resource, dstOffset uint64, src backend.Resource, srcOffset, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording("CopyBuffer") {
		return
	}
	d, err := c.buffer(dst)
	if err != nil {
		c.fail(err)
		return
	}
	s, err := c.buffer(src)
	if err != nil {
		c.fail(err)
		return
	}
	if !inRange(dstOffset, size, d.size) || !inRange(srcOffset, size, s.size) {
		c.fail(fmt.Errorf("copy %d bytes %q@%d -> %q@%d: %w", size, s.label, srcOffset, d.label, dstOffset, backend.ErrOutOfRange))
		return
	}
	if d == s {
		c.fail(fmt.Errorf("copy within %q: %w", d.label, backend.ErrInvalidResource))
		return
	}
	c.enc.CopyBufferToBuffer(s.buf, d.buf, []hal.BufferCopy{{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size}})
}

func (c *commandList) CopyBufferToTexture(dst backend.Resource, loc backend.TextureLocation, src backend.Resource, layout gpucore.Footprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording("CopyBufferToTexture") {
		return
	}
	region, tex, buf, err := c.textureCopy(dst, loc, src, layout)
	if err != nil {
		c.fail(err)
		return
	}
	c.enc.CopyBufferToTexture(buf.buf, tex.tex, []hal.BufferTextureCopy{region})
}

func (c *commandList) CopyTextureToBuffer(dst backend.Resource, layout gpucore.Footprint, src backend.Resource, loc backend.TextureLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording("CopyTextureToBuffer") {
		return
	}
	region, tex, buf, err := c.textureCopy(src, loc, dst, layout)
	if err != nil {
		c.fail(err)
		return
	}
	c.enc.CopyTextureToBuffer(tex.tex, buf.buf, []hal.BufferTextureCopy{region})
}

// Close ends the encoding; the command buffer is kept for submission.
func (c *commandList) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != listRecording {
		c.fail(fmt.Errorf("close without recording: %w", backend.ErrCommandList))
		c.state = listClosed
		return c.err
	}
	c.state = listClosed
	if c.err != nil {
		c.enc.DiscardEncoding()
		return c.err
	}
	cb, err := c.enc.EndEncoding()
	if err != nil {
		c.fail(translate(err))
		return c.err
	}
	c.done = append(c.done, cb)
	return nil
}

func (c *commandList) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == listRecording {
		c.enc.DiscardEncoding()
	}
	for _, cb := range c.done {
		c.dev.raw.FreeCommandBuffer(cb)
	}
	c.done = nil
	c.enc.Destroy()
	c.state = listInitial
}

// submittable returns the command buffer of a closed, error-free list.
func (c *commandList) submittable() (hal.CommandBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != listClosed || c.err != nil || len(c.done) == 0 {
		return nil, fmt.Errorf("wgpu: submit %q: %w", c.label, backend.ErrCommandList)
	}
	return c.done[len(c.done)-1], nil
}

func (c *commandList) buffer(r backend.Resource) (*resource, error) {
	b, err := c.dev.lookup(r)
	if err != nil {
		return nil, err
	}
	if b.isTexture() {
		return nil, fmt.Errorf("%q is not a buffer: %w", b.label, backend.ErrInvalidResource)
	}
	return b, nil
}

// textureCopy validates a buffer footprint against a texture region and
// builds the hal copy. Array layers are addressed through Origin.Z.
func (c *commandList) textureCopy(texRes backend.Resource, loc backend.TextureLocation, bufRes backend.Resource, layout gpucore.Footprint) (hal.BufferTextureCopy, *resource, *resource, error) {
	var region hal.BufferTextureCopy
	tex, err := c.dev.lookup(texRes)
	if err != nil {
		return region, nil, nil, err
	}
	buf, err := c.buffer(bufRes)
	if err != nil {
		return region, nil, nil, err
	}
	if !tex.isTexture() {
		return region, nil, nil, fmt.Errorf("%q is not a texture: %w", tex.label, backend.ErrInvalidResource)
	}
	if loc.MipLevel >= tex.desc.MipLevels || loc.ArrayLayer >= tex.arrayLayers() {
		return region, nil, nil, fmt.Errorf("%q has no subresource (%d, %d): %w", tex.label, loc.MipLevel, loc.ArrayLayer, backend.ErrOutOfRange)
	}
	level := tex.levelExtent(loc.MipLevel)
	r := gpucore.Region3D{Origin: loc.Origin, Extent: layout.Extent}
	if r.Empty() || !r.Within(level) || !r.BlockAligned(tex.format, level) {
		return region, nil, nil, fmt.Errorf("region %+v of %q level %d: %w", r, tex.label, loc.MipLevel, backend.ErrOutOfRange)
	}
	limits := c.dev.Limits()
	if layout.RowPitch < layout.RowBytes || layout.RowPitch%limits.RowPitchAlignment != 0 {
		return region, nil, nil, fmt.Errorf("row pitch %d not a multiple of %d: %w", layout.RowPitch, limits.RowPitchAlignment, backend.ErrOutOfRange)
	}
	if minSlice, ok := layout.MinSlicePitch(); !ok || layout.SlicePitch < minSlice || layout.SlicePitch%layout.RowPitch != 0 {
		return region, nil, nil, fmt.Errorf("slice pitch %d for %d rows of %d: %w", layout.SlicePitch, layout.Rows, layout.RowPitch, backend.ErrOutOfRange)
	}
	span, ok := layout.Span()
	if !ok || !inRange(layout.Offset, span, buf.size) {
		return region, nil, nil, fmt.Errorf("footprint of %d bytes at %d exceeds %q: %w", span, layout.Offset, buf.label, backend.ErrOutOfRange)
	}

	region = hal.BufferTextureCopy{
		BufferLayout: hal.ImageDataLayout{
			Offset:       layout.Offset,
			BytesPerRow:  uint32(layout.RowPitch),
			RowsPerImage: uint32(layout.SlicePitch/layout.RowPitch) * tex.format.BlockHeight,
		},
		TextureBase: hal.ImageCopyTexture{
			Texture:  tex.tex,
			MipLevel: loc.MipLevel,
			Origin:   hal.Origin3D{X: loc.Origin.X, Y: loc.Origin.Y, Z: loc.Origin.Z + loc.ArrayLayer},
			Aspect:   gputypes.TextureAspectAll,
		},
		Size: hal.Extent3D{
			Width:              layout.Extent.Width,
			Height:             layout.Extent.Height,
			DepthOrArrayLayers: layout.Extent.DepthOrArrayLayers,
		},
	}
	return region, tex, buf, nil
}

func inRange(offset, size, limit uint64) bool {
	return offset <= limit && size <= limit-offset
}
