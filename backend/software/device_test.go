package software

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/gpucore"
)

func newTestDevice(t *testing.T, opts Options) *Device {
	t.Helper()
	d := New(opts)
	t.Cleanup(d.Destroy)
	return d
}

func mustBuffer(t *testing.T, d *Device, label string, size uint64, heap gpucore.HeapKind, state backend.State) backend.Resource {
	t.Helper()
	buf, err := d.CreateBuffer(&backend.BufferDescriptor{
		Label:        label,
		Size:         size,
		Heap:         heap,
		Usage:        gpucore.BufferUsageCopySource | gpucore.BufferUsageCopyDestination,
		InitialState: state,
	})
	if err != nil {
		t.Fatalf("CreateBuffer(%s) error = %v", label, err)
	}
	return buf
}

func record(t *testing.T, d *Device, label string, fn func(cl backend.CommandList)) backend.CommandList {
	t.Helper()
	cl, err := d.CreateCommandList(label)
	if err != nil {
		t.Fatalf("CreateCommandList() error = %v", err)
	}
	if err := cl.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	fn(cl)
	if err := cl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return cl
}

func submitAndWait(t *testing.T, d *Device, cl backend.CommandList) {
	t.Helper()
	f, err := d.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence() error = %v", err)
	}
	defer f.Destroy()
	if err := d.Queue().Submit(cl); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := d.Queue().Signal(f, 1); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if err := f.Wait(1); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestMapHostHeaps(t *testing.T) {
	d := newTestDevice(t, Options{})
	upload := mustBuffer(t, d, "upload", 64, gpucore.HeapHostUpload, StateGenericRead)
	local := mustBuffer(t, d, "local", 64, gpucore.HeapDeviceLocal, StateCommon)

	p, err := d.Map(upload, 16, 32)
	if err != nil {
		t.Fatalf("Map(upload) error = %v", err)
	}
	if len(p) != 32 {
		t.Errorf("len(Map()) = %d, want 32", len(p))
	}
	if err := d.Unmap(upload); err != nil {
		t.Errorf("Unmap() error = %v", err)
	}
	if err := d.Unmap(upload); !errors.Is(err, backend.ErrInvalidState) {
		t.Errorf("second Unmap() error = %v, want ErrInvalidState", err)
	}

	if _, err := d.Map(local, 0, 64); !errors.Is(err, backend.ErrNotMappable) {
		t.Errorf("Map(local) error = %v, want ErrNotMappable", err)
	}
	if _, err := d.Map(upload, 60, 8); !errors.Is(err, backend.ErrOutOfRange) {
		t.Errorf("Map(60, 8) error = %v, want ErrOutOfRange", err)
	}
}

func TestMemoryBudget(t *testing.T) {
	d := newTestDevice(t, Options{MemoryBudget: 1024})
	first := mustBuffer(t, d, "first", 1000, gpucore.HeapHostUpload, StateGenericRead)

	_, err := d.CreateBuffer(&backend.BufferDescriptor{Label: "second", Size: 100, Heap: gpucore.HeapHostUpload})
	if !errors.Is(err, backend.ErrOutOfMemory) {
		t.Fatalf("CreateBuffer over budget error = %v, want ErrOutOfMemory", err)
	}
	if got := d.Stats().Allocated; got != 1000 {
		t.Errorf("Allocated = %d, want 1000", got)
	}

	first.Destroy()
	first.Destroy()
	if got := d.Stats(); got.Allocated != 0 || got.Buffers != 0 {
		t.Errorf("Stats() after Destroy = %v", got)
	}
	mustBuffer(t, d, "second", 100, gpucore.HeapHostUpload, StateGenericRead)
}

func TestCopyBufferThroughDeviceLocal(t *testing.T) {
	d := newTestDevice(t, Options{})
	upload := mustBuffer(t, d, "upload", 256, gpucore.HeapHostUpload, StateGenericRead)
	local := mustBuffer(t, d, "local", 256, gpucore.HeapDeviceLocal, StateCopyDest)
	readback := mustBuffer(t, d, "readback", 256, gpucore.HeapHostReadback, StateCopyDest)

	src, _ := d.Map(upload, 0, 256)
	for i := range src {
		src[i] = byte(i)
	}

	cl := record(t, d, "round trip", func(cl backend.CommandList) {
		cl.CopyBuffer(local, 0, upload, 0, 256)
		cl.Barrier(backend.Barrier{Resource: local, Before: StateCopyDest, After: StateCopySource, Subresource: backend.AllSubresources})
		cl.CopyBuffer(readback, 0, local, 0, 256)
	})
	submitAndWait(t, d, cl)

	got, _ := d.Map(readback, 0, 256)
	if !bytes.Equal(got, src) {
		t.Error("readback contents differ from upload")
	}
	if s, _ := d.ResourceState(local, backend.AllSubresources); s != StateCopySource {
		t.Errorf("ResourceState(local) = %s, want CopySource", stateString(s))
	}
}

func TestSubmitRejectsWrongBeforeState(t *testing.T) {
	d := newTestDevice(t, Options{})
	local := mustBuffer(t, d, "local", 16, gpucore.HeapDeviceLocal, StateVertexAndConstantBuffer)

	cl := record(t, d, "bad barrier", func(cl backend.CommandList) {
		cl.Barrier(backend.Barrier{Resource: local, Before: StateCopySource, After: StateCopyDest, Subresource: backend.AllSubresources})
	})
	if err := d.Queue().Submit(cl); !errors.Is(err, backend.ErrInvalidState) {
		t.Fatalf("Submit() error = %v, want ErrInvalidState", err)
	}
	if s, _ := d.ResourceState(local, backend.AllSubresources); s != StateVertexAndConstantBuffer {
		t.Errorf("state changed to %s after rejected submit", stateString(s))
	}
	if n := len(d.Submissions()); n != 0 {
		t.Errorf("len(Submissions()) = %d, want 0", n)
	}
}

func TestSubmitRejectsCopyOutsideCopyState(t *testing.T) {
	d := newTestDevice(t, Options{})
	upload := mustBuffer(t, d, "upload", 16, gpucore.HeapHostUpload, StateGenericRead)
	local := mustBuffer(t, d, "local", 16, gpucore.HeapDeviceLocal, StateVertexAndConstantBuffer)

	cl := record(t, d, "copy", func(cl backend.CommandList) {
		cl.CopyBuffer(local, 0, upload, 0, 16)
	})
	if err := d.Queue().Submit(cl); !errors.Is(err, backend.ErrInvalidState) {
		t.Fatalf("Submit() error = %v, want ErrInvalidState", err)
	}
}

func TestRecordingErrors(t *testing.T) {
	d := newTestDevice(t, Options{})
	a := mustBuffer(t, d, "a", 16, gpucore.HeapDeviceLocal, StateCommon)
	b := mustBuffer(t, d, "b", 16, gpucore.HeapDeviceLocal, StateCommon)

	tests := []struct {
		name string
		fn   func(cl backend.CommandList)
		want error
	}{
		{"redundant barrier", func(cl backend.CommandList) {
			cl.Barrier(backend.Barrier{Resource: a, Before: StateCopyDest, After: StateCopyDest, Subresource: backend.AllSubresources})
		}, backend.ErrInvalidState},
		{"copy out of range", func(cl backend.CommandList) { cl.CopyBuffer(a, 8, b, 0, 16) }, backend.ErrOutOfRange},
		{"copy to itself", func(cl backend.CommandList) { cl.CopyBuffer(a, 0, a, 8, 8) }, backend.ErrInvalidResource},
		{"foreign resource", func(cl backend.CommandList) { cl.CopyBuffer(a, 0, nil, 0, 8) }, backend.ErrInvalidResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl, _ := d.CreateCommandList(tt.name)
			if err := cl.Reset(); err != nil {
				t.Fatal(err)
			}
			tt.fn(cl)
			if err := cl.Close(); !errors.Is(err, tt.want) {
				t.Errorf("Close() error = %v, want %v", err, tt.want)
			}
			if err := d.Queue().Submit(cl); !errors.Is(err, backend.ErrCommandList) {
				t.Errorf("Submit() error = %v, want ErrCommandList", err)
			}
		})
	}
}

func TestCommandOutsideRecording(t *testing.T) {
	d := newTestDevice(t, Options{})
	a := mustBuffer(t, d, "a", 16, gpucore.HeapDeviceLocal, StateCommon)
	cl, _ := d.CreateCommandList("idle")
	cl.Barrier(backend.Barrier{Resource: a, Before: StateCommon, After: StateCopyDest, Subresource: backend.AllSubresources})
	if err := cl.Close(); !errors.Is(err, backend.ErrCommandList) {
		t.Errorf("Close() error = %v, want ErrCommandList", err)
	}
}

func TestTextureRegionRoundTrip(t *testing.T) {
	d := newTestDevice(t, Options{})
	tex, err := d.CreateTexture(&backend.TextureDescriptor{
		Label:        "array",
		Type:         gpucore.TextureType2D,
		Format:       gputypes.TextureFormatRGBA8Unorm,
		Size:         gputypes.NewExtent3D(8, 8, 3),
		MipLevels:    2,
		Heap:         gpucore.HeapDeviceLocal,
		InitialState: StateCopyDest,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	fp := gpucore.FootprintFor(gpucore.FormatInfo{BlockWidth: 1, BlockHeight: 1, BlockBytes: 4}, gputypes.NewExtent2D(2, 3), 256)
	upload := mustBuffer(t, d, "upload", fp.Size(), gpucore.HeapHostUpload, StateGenericRead)
	readback := mustBuffer(t, d, "readback", fp.Size(), gpucore.HeapHostReadback, StateCopyDest)

	src, _ := d.Map(upload, 0, fp.Size())
	for row := range uint64(3) {
		for i := range uint64(8) {
			src[row*fp.RowPitch+i] = byte(10*row + i + 1)
		}
	}

	sub := backend.Subresource{MipLevel: 1, ArrayLayer: 2}
	loc := backend.TextureLocation{MipLevel: 1, ArrayLayer: 2, Origin: gputypes.Origin3D{X: 1, Y: 1}}
	cl := record(t, d, "texture", func(cl backend.CommandList) {
		cl.CopyBufferToTexture(tex, loc, upload, fp)
		cl.Barrier(backend.Barrier{Resource: tex, Before: StateCopyDest, After: StateCopySource, Subresource: sub})
		cl.CopyTextureToBuffer(readback, fp, tex, loc)
	})
	submitAndWait(t, d, cl)

	got, _ := d.Map(readback, 0, fp.Size())
	for row := range uint64(3) {
		want := src[row*fp.RowPitch : row*fp.RowPitch+8]
		if !bytes.Equal(got[row*fp.RowPitch:row*fp.RowPitch+8], want) {
			t.Errorf("row %d = %v, want %v", row, got[row*fp.RowPitch:row*fp.RowPitch+8], want)
		}
	}
	if s, _ := d.ResourceState(tex, sub); s != StateCopySource {
		t.Errorf("ResourceState(level 1, layer 2) = %s, want CopySource", stateString(s))
	}
	if s, _ := d.ResourceState(tex, backend.Subresource{}); s != StateCopyDest {
		t.Errorf("ResourceState(level 0, layer 0) = %s, want CopyDest", stateString(s))
	}
}

func TestTextureCopyValidation(t *testing.T) {
	d := newTestDevice(t, Options{})
	tex, err := d.CreateTexture(&backend.TextureDescriptor{
		Label:     "tex",
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Size:      gputypes.NewExtent2D(4, 4),
		MipLevels: 1,
		Heap:      gpucore.HeapDeviceLocal,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	buf := mustBuffer(t, d, "buf", 4096, gpucore.HeapHostUpload, StateGenericRead)
	good := gpucore.FootprintFor(gpucore.FormatInfo{BlockWidth: 1, BlockHeight: 1, BlockBytes: 4}, gputypes.NewExtent2D(4, 4), 256)

	unaligned := good
	unaligned.RowPitch = 16
	unaligned.SlicePitch = 64
	misplaced := good
	misplaced.Offset = 4
	tooBig := good
	tooBig.Extent = gputypes.NewExtent2D(5, 4)
	wrapped := good
	wrapped.RowPitch = 1 << 63
	wrapped.SlicePitch = 0

	tests := []struct {
		name   string
		loc    backend.TextureLocation
		layout gpucore.Footprint
	}{
		{"row pitch", backend.TextureLocation{}, unaligned},
		{"placement", backend.TextureLocation{}, misplaced},
		{"region", backend.TextureLocation{}, tooBig},
		{"wrapping pitch", backend.TextureLocation{}, wrapped},
		{"mip level", backend.TextureLocation{MipLevel: 1}, good},
		{"origin", backend.TextureLocation{Origin: gputypes.Origin3D{X: 1}}, good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl, _ := d.CreateCommandList(tt.name)
			_ = cl.Reset()
			cl.CopyBufferToTexture(tex, tt.loc, buf, tt.layout)
			if err := cl.Close(); !errors.Is(err, backend.ErrOutOfRange) {
				t.Errorf("Close() error = %v, want ErrOutOfRange", err)
			}
		})
	}
}

func TestCreateTextureValidation(t *testing.T) {
	d := newTestDevice(t, Options{})
	base := backend.TextureDescriptor{
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Size:      gputypes.NewExtent2D(4, 4),
		MipLevels: 1,
		Heap:      gpucore.HeapDeviceLocal,
	}
	tests := []struct {
		name string
		edit func(*backend.TextureDescriptor)
	}{
		{"undefined format", func(d *backend.TextureDescriptor) { d.Format = gputypes.TextureFormatUndefined }},
		{"host heap", func(d *backend.TextureDescriptor) { d.Heap = gpucore.HeapHostUpload }},
		{"zero mips", func(d *backend.TextureDescriptor) { d.MipLevels = 0 }},
		{"tall 1D", func(d *backend.TextureDescriptor) { d.Type = gpucore.TextureType1D }},
		{"cube layers", func(d *backend.TextureDescriptor) { d.Type = gpucore.TextureTypeCube }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := base
			tt.edit(&desc)
			if _, err := d.CreateTexture(&desc); !errors.Is(err, backend.ErrInvalidResource) {
				t.Errorf("CreateTexture() error = %v, want ErrInvalidResource", err)
			}
		})
	}
}

func TestFailNextSubmit(t *testing.T) {
	d := newTestDevice(t, Options{})
	a := mustBuffer(t, d, "a", 16, gpucore.HeapDeviceLocal, StateCommon)
	cl := record(t, d, "barrier", func(cl backend.CommandList) {
		cl.Barrier(backend.Barrier{Resource: a, Before: StateCommon, After: StateCopyDest, Subresource: backend.AllSubresources})
	})

	injected := errors.New("boom")
	d.FailNextSubmit(injected)
	if err := d.Queue().Submit(cl); !errors.Is(err, injected) {
		t.Fatalf("Submit() error = %v, want injected", err)
	}
	if s, _ := d.ResourceState(a, backend.AllSubresources); s != StateCommon {
		t.Errorf("state after failed submit = %s, want Common", stateString(s))
	}
	submitAndWait(t, d, cl)
	if got := d.Stats().Submissions; got != 1 {
		t.Errorf("Submissions = %d, want 1", got)
	}
}

func TestSubmissionLog(t *testing.T) {
	d := newTestDevice(t, Options{})
	upload := mustBuffer(t, d, "upload", 16, gpucore.HeapHostUpload, StateGenericRead)
	local := mustBuffer(t, d, "local", 16, gpucore.HeapDeviceLocal, StateCommon)

	cl := record(t, d, "upload list", func(cl backend.CommandList) {
		cl.Barrier(backend.Barrier{Resource: local, Before: StateCommon, After: StateCopyDest, Subresource: backend.AllSubresources})
		cl.CopyBuffer(local, 0, upload, 0, 16)
	})
	submitAndWait(t, d, cl)

	subs := d.Submissions()
	if len(subs) != 1 {
		t.Fatalf("len(Submissions()) = %d, want 1", len(subs))
	}
	s := subs[0]
	if s.Seq != 1 || s.List != "upload list" || len(s.Commands) != 2 {
		t.Fatalf("Submission = %+v", s)
	}
	if c := s.Commands[1]; c.Kind != CommandCopyBuffer || c.Dst != "local" || c.Src != "upload" || c.Size != 16 {
		t.Errorf("Commands[1] = %+v", c)
	}
	d.ResetSubmissions()
	if len(d.Submissions()) != 0 {
		t.Error("ResetSubmissions() left entries")
	}
}

func TestDestroyReleasesFenceWaiters(t *testing.T) {
	d := New(Options{})
	f, err := d.CreateFence()
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- f.Wait(5) }()

	d.Destroy()
	select {
	case err := <-done:
		if !errors.Is(err, backend.ErrDeviceLost) {
			t.Errorf("Wait() error = %v, want ErrDeviceLost", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() still blocked after Destroy")
	}
	if err := d.Queue().Submit(); !errors.Is(err, backend.ErrDeviceLost) {
		t.Errorf("Submit() after Destroy error = %v, want ErrDeviceLost", err)
	}
}

func TestFenceSignalOrder(t *testing.T) {
	d := newTestDevice(t, Options{})
	f, _ := d.CreateFence()
	for v := uint64(1); v <= 3; v++ {
		if err := d.Queue().Signal(f, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Wait(3); err != nil {
		t.Fatal(err)
	}
	if got := f.CompletedValue(); got != 3 {
		t.Errorf("CompletedValue() = %d, want 3", got)
	}
	if err := d.WaitIdle(); err != nil {
		t.Errorf("WaitIdle() error = %v", err)
	}
}
