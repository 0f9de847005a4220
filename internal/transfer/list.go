package transfer

import (
	"fmt"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

// ListState is the recording state of a List.
type ListState uint8

// List states.
const (
	ListIdle ListState = iota
	ListRecording
	ListSubmitted
)

// String returns the state name.
func (s ListState) String() string {
	switch s {
	case ListIdle:
		return "Idle"
	case ListRecording:
		return "Recording"
	case ListSubmitted:
		return "Submitted"
	default:
		return fmt.Sprintf("ListState(%d)", int(s))
	}
}

// List is the command list, fence and staging buffer of one Role.
//
// A List cycles Idle -> Recording -> Submitted -> Idle. Any failure returns
// it to Idle; recorded commands are discarded by the next Begin.
type List struct {
	role    Role
	dev     backend.Device
	mapper  backend.StateMapper
	cmd     backend.CommandList
	fence   backend.Fence
	staging *StagingPool

	state       ListState
	fenceValue  uint64
	submissions uint64
}

// NewList creates the list of role. Upload and Readback lists get a
// staging pool with the given initial capacity.
func NewList(dev backend.Device, role Role, stagingInitial uint64) (*List, error) {
	cmd, err := dev.CreateCommandList(role.String() + " transfer")
	if err != nil {
		return nil, fmt.Errorf("transfer: %v command list: %w", role, err)
	}
	fence, err := dev.CreateFence()
	if err != nil {
		cmd.Destroy()
		return nil, fmt.Errorf("transfer: %v fence: %w", role, err)
	}
	l := &List{
		role:   role,
		dev:    dev,
		mapper: dev.Mapper(),
		cmd:    cmd,
		fence:  fence,
	}
	if _, _, ok := role.stagingHeap(); ok {
		l.staging, _ = NewStagingPool(dev, role, stagingInitial)
	}
	return l, nil
}

// Role returns the list's role.
func (l *List) Role() Role { return l.role }

// State returns the recording state.
func (l *List) State() ListState { return l.state }

// Staging returns the staging pool, nil for RoleSetup.
func (l *List) Staging() *StagingPool { return l.staging }

// FenceValue returns the value of the last fence signal.
func (l *List) FenceValue() uint64 { return l.fenceValue }

// Submissions returns the number of completed SubmitAndWait calls.
func (l *List) Submissions() uint64 { return l.submissions }

// Begin resets the command list and starts recording.
func (l *List) Begin() error {
	if l.state != ListIdle {
		return fmt.Errorf("%w: Begin in %v", ErrListState, l.state)
	}
	if err := l.cmd.Reset(); err != nil {
		return fmt.Errorf("transfer: %v reset: %w", l.role, err)
	}
	l.state = ListRecording
	return nil
}

func (l *List) requireRecording(op string) error {
	if l.state != ListRecording {
		return fmt.Errorf("%w: %s in %v", ErrListState, op, l.state)
	}
	return nil
}

// TransitionBuffer records a barrier moving res from one usage to another.
// Nothing is recorded when the usages, or the states they map to, match.
func (l *List) TransitionBuffer(res backend.Resource, heap gpucore.HeapKind, from, to gpucore.BufferUsage) error {
	if err := l.requireRecording("TransitionBuffer"); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	before, after := l.mapper.BufferState(heap, from), l.mapper.BufferState(heap, to)
	if before == after {
		return nil
	}
	l.cmd.Barrier(backend.Barrier{Resource: res, Before: before, After: after, Subresource: backend.AllSubresources})
	return nil
}

// TransitionTexture records a barrier on one subresource of a texture, or
// all of them. Equal usages or states record nothing.
func (l *List) TransitionTexture(res backend.Resource, heap gpucore.HeapKind, from, to gpucore.TextureUsage, sub backend.Subresource) error {
	if err := l.requireRecording("TransitionTexture"); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	before, after := l.mapper.TextureState(heap, from), l.mapper.TextureState(heap, to)
	if before == after {
		return nil
	}
	l.cmd.Barrier(backend.Barrier{Resource: res, Before: before, After: after, Subresource: sub})
	return nil
}

func (l *List) requireStaging(op string, size uint64) error {
	if err := l.requireRecording(op); err != nil {
		return err
	}
	if l.staging == nil {
		return fmt.Errorf("%w: %s on %v", ErrNoStaging, op, l.role)
	}
	if size > l.staging.Capacity() {
		return fmt.Errorf("%w: %d > %d", ErrStagingTooSmall, size, l.staging.Capacity())
	}
	return nil
}

// CopyFromStaging copies the first size staging bytes into dst at dstOffset.
func (l *List) CopyFromStaging(dst backend.Resource, dstOffset, size uint64) error {
	if err := l.requireStaging("CopyFromStaging", size); err != nil {
		return err
	}
	l.cmd.CopyBuffer(dst, dstOffset, l.staging.Resource(), 0, size)
	return nil
}

// CopyToStaging copies size bytes of src at srcOffset to the start of staging.
func (l *List) CopyToStaging(src backend.Resource, srcOffset, size uint64) error {
	if err := l.requireStaging("CopyToStaging", size); err != nil {
		return err
	}
	l.cmd.CopyBuffer(l.staging.Resource(), 0, src, srcOffset, size)
	return nil
}

// CopyStagingToTexture copies a footprint laid out in staging into a
// texture region starting at loc.
func (l *List) CopyStagingToTexture(dst backend.Resource, loc backend.TextureLocation, layout gpucore.Footprint) error {
	if err := l.requireStaging("CopyStagingToTexture", layout.Offset+layout.Size()); err != nil {
		return err
	}
	l.cmd.CopyBufferToTexture(dst, loc, l.staging.Resource(), layout)
	return nil
}

// CopyTextureToStaging copies a texture region starting at loc into a
// footprint in staging.
func (l *List) CopyTextureToStaging(src backend.Resource, loc backend.TextureLocation, layout gpucore.Footprint) error {
	if err := l.requireStaging("CopyTextureToStaging", layout.Offset+layout.Size()); err != nil {
		return err
	}
	l.cmd.CopyTextureToBuffer(l.staging.Resource(), layout, src, loc)
	return nil
}

// SubmitAndWait closes the recording, executes it, signals the list fence
// with its next value and blocks until the GPU reaches it.
func (l *List) SubmitAndWait() error {
	if err := l.requireRecording("SubmitAndWait"); err != nil {
		return err
	}
	l.state = ListSubmitted
	defer func() { l.state = ListIdle }()

	if err := l.cmd.Close(); err != nil {
		return fmt.Errorf("transfer: %v close: %w", l.role, err)
	}
	q := l.dev.Queue()
	if err := q.Submit(l.cmd); err != nil {
		return fmt.Errorf("transfer: %v submit: %w", l.role, err)
	}
	l.fenceValue++
	if err := q.Signal(l.fence, l.fenceValue); err != nil {
		return fmt.Errorf("transfer: %v signal: %w", l.role, err)
	}
	if err := l.fence.Wait(l.fenceValue); err != nil {
		return fmt.Errorf("transfer: %v wait for %d: %w", l.role, l.fenceValue, err)
	}
	l.submissions++
	slogger().Debug("transfer: list completed", "role", l.role.String(), "fence", l.fenceValue)
	return nil
}

// abort returns a list left mid-recording to Idle. The pending commands
// are discarded by the reset in the next Begin.
func (l *List) abort() {
	if l.state == ListIdle {
		return
	}
	slogger().Warn("transfer: discarding unsubmitted commands", "role", l.role.String(), "state", l.state.String())
	l.state = ListIdle
}

// destroy frees the list's device objects.
func (l *List) destroy() {
	if l.staging != nil {
		l.staging.Release()
	}
	l.fence.Destroy()
	l.cmd.Destroy()
}
