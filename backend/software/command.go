package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// CommandKind identifies a recorded command.
type CommandKind uint8

// Command kinds.
const (
	CommandBarrier CommandKind = iota
	CommandCopyBuffer
	CommandCopyBufferToTexture
	CommandCopyTextureToBuffer
)

// String returns the command name.
func (k CommandKind) String() string {
	switch k {
	case CommandBarrier:
		return "Barrier"
	case CommandCopyBuffer:
		return "CopyBuffer"
	case CommandCopyBufferToTexture:
		return "CopyBufferToTexture"
	case CommandCopyTextureToBuffer:
		return "CopyTextureToBuffer"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is the logged form of a recorded command. Resources are named
// by label; barriers leave Src empty.
type Command struct {
	Kind   CommandKind
	Dst    string
	Src    string
	Before backend.State
	After  backend.State
	Size   uint64
}

// Submission is one command list accepted by the queue.
type Submission struct {
	// Seq numbers submissions from 1 in acceptance order.
	Seq      uint64
	List     string
	Commands []Command
}

type op struct {
	kind    CommandKind
	dst     *resource
	src     *resource
	barrier backend.Barrier

	dstOffset uint64
	srcOffset uint64
	size      uint64

	loc    backend.TextureLocation
	layout gpucore.Footprint
}

func (o *op) command() Command {
	c := Command{Kind: o.kind, Size: o.size}
	if o.dst != nil {
		c.Dst = o.dst.label
	}
	if o.src != nil {
		c.Src = o.src.label
	}
	switch o.kind {
	case CommandBarrier:
		c.Before, c.After = o.barrier.Before, o.barrier.After
	case CommandCopyBufferToTexture, CommandCopyTextureToBuffer:
		c.Size = o.layout.Size()
	}
	return c
}

type listState uint8

const (
	listInitial listState = iota
	listRecording
	listClosed
)

// commandList records ops and validates their arguments. State checks are
// deferred to submission, when the states the GPU will see are known.
type commandList struct {
	dev   *Device
	label string

	mu    sync.Mutex
	state listState
	ops   []op
	err   error
}

var _ backend.CommandList = (*commandList)(nil)

func (c *commandList) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = listRecording
	c.ops = nil
	c.err = nil
	return nil
}

// fail keeps the first recording error. c.mu must be held.
func (c *commandList) fail(err error) {
	if c.err == nil {
		c.err = fmt.Errorf("software: %s: %w", c.label, err)
	}
}

// record appends o if the list is recording. c.mu must be held.
func (c *commandList) record(o op) {
	if c.state != listRecording {
		c.fail(fmt.Errorf("%v outside recording: %w", o.kind, backend.ErrCommandList))
		return
	}
	c.ops = append(c.ops, o)
}

func (c *commandList) Barrier(barriers ...backend.Barrier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range barriers {
		r, err := c.dev.lookup(b.Resource)
		if err != nil {
			c.fail(err)
			return
		}
		if !r.validSub(b.Subresource) {
			c.fail(fmt.Errorf("barrier on %q subresource %+v: %w", r.label, b.Subresource, backend.ErrOutOfRange))
			return
		}
		if b.Before == b.After {
			c.fail(fmt.Errorf("barrier on %q from %s to itself: %w", r.label, stateString(b.Before), backend.ErrInvalidState))
			return
		}
		c.record(op{kind: CommandBarrier, dst: r, barrier: b})
	}
}

func (c *commandList) CopyBuffer(dst backend.Resource, dstOffset uint64, src backend.Resource, srcOffset, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, s, err := c.buffers(dst, src)
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
	c.record(op{kind: CommandCopyBuffer, dst: d, src: s, dstOffset: dstOffset, srcOffset: srcOffset, size: size})
}

func (c *commandList) CopyBufferToTexture(dst backend.Resource, loc backend.TextureLocation, src backend.Resource, layout gpucore.Footprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tex, buf, err := c.textureAndBuffer(dst, src)
	if err == nil {
		err = c.checkTextureCopy(tex, loc, buf, layout)
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.record(op{kind: CommandCopyBufferToTexture, dst: tex, src: buf, loc: loc, layout: layout})
}

func (c *commandList) CopyTextureToBuffer(dst backend.Resource, layout gpucore.Footprint, src backend.Resource, loc backend.TextureLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tex, buf, err := c.textureAndBuffer(src, dst)
	if err == nil {
		err = c.checkTextureCopy(tex, loc, buf, layout)
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.record(op{kind: CommandCopyTextureToBuffer, dst: buf, src: tex, loc: loc, layout: layout})
}

func (c *commandList) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != listRecording {
		c.fail(fmt.Errorf("close without recording: %w", backend.ErrCommandList))
	}
	c.state = listClosed
	return c.err
}

func (c *commandList) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = nil
	c.state = listInitial
}

func (c *commandList) buffers(dst, src backend.Resource) (*resource, *resource, error) {
	d, err := c.dev.lookup(dst)
	if err != nil {
		return nil, nil, err
	}
	s, err := c.dev.lookup(src)
	if err != nil {
		return nil, nil, err
	}
	if d.texture || s.texture {
		return nil, nil, fmt.Errorf("buffer copy between %q and %q: %w", s.label, d.label, backend.ErrInvalidResource)
	}
	return d, s, nil
}

func (c *commandList) textureAndBuffer(tex, buf backend.Resource) (*resource, *resource, error) {
	t, err := c.dev.lookup(tex)
	if err != nil {
		return nil, nil, err
	}
	b, err := c.dev.lookup(buf)
	if err != nil {
		return nil, nil, err
	}
	if !t.texture || b.texture {
		return nil, nil, fmt.Errorf("texture copy between %q and %q: %w", t.label, b.label, backend.ErrInvalidResource)
	}
	return t, b, nil
}

// checkTextureCopy validates a buffer footprint against a texture region
// and the device alignment rules.
func (c *commandList) checkTextureCopy(tex *resource, loc backend.TextureLocation, buf *resource, layout gpucore.Footprint) error {
	if loc.MipLevel >= tex.mipLevels() || loc.ArrayLayer >= tex.arrayLayers() {
		return fmt.Errorf("%q has no subresource (%d, %d): %w", tex.label, loc.MipLevel, loc.ArrayLayer, backend.ErrOutOfRange)
	}
	level := tex.levelExtent(loc.MipLevel)
	region := gpucore.Region3D{Origin: loc.Origin, Extent: layout.Extent}
	if region.Empty() || !region.Within(level) {
		return fmt.Errorf("region %+v outside %q level %d %+v: %w", region, tex.label, loc.MipLevel, level, backend.ErrOutOfRange)
	}
	if !region.BlockAligned(tex.format, level) {
		return fmt.Errorf("region %+v not block aligned: %w", region, backend.ErrOutOfRange)
	}

	want := gpucore.FootprintFor(tex.format, layout.Extent, 1)
	if layout.RowBytes != want.RowBytes || layout.Rows != want.Rows {
		return fmt.Errorf("footprint rows %dx%d, want %dx%d: %w", layout.RowBytes, layout.Rows, want.RowBytes, want.Rows, backend.ErrOutOfRange)
	}
	align := c.dev.opts
	if layout.RowPitch < layout.RowBytes || layout.RowPitch%align.RowPitchAlignment != 0 {
		return fmt.Errorf("row pitch %d not a multiple of %d: %w", layout.RowPitch, align.RowPitchAlignment, backend.ErrOutOfRange)
	}
	if layout.Offset%align.PlacementAlignment != 0 {
		return fmt.Errorf("placement offset %d not a multiple of %d: %w", layout.Offset, align.PlacementAlignment, backend.ErrOutOfRange)
	}
	if minSlice, ok := layout.MinSlicePitch(); !ok || layout.SlicePitch < minSlice {
		return fmt.Errorf("slice pitch %d too small: %w", layout.SlicePitch, backend.ErrOutOfRange)
	}
	span, ok := layout.Span()
	if !ok || !inRange(layout.Offset, span, buf.size) {
		return fmt.Errorf("footprint of %d bytes at %d exceeds %q (%d bytes): %w",
			span, layout.Offset, buf.label, buf.size, backend.ErrOutOfRange)
	}
	return nil
}

func inRange(offset, size, limit uint64) bool {
	return offset <= limit && size <= limit-offset
}
