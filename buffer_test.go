package agpu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/backend/software"
	"github.com/gogpu/agpu/gpucore"
)

func deadbeef(n int) []byte {
	p := make([]byte, n)
	for i := 0; i+4 <= n; i += 4 {
		binary.LittleEndian.PutUint32(p[i:], 0xdeadbeef)
	}
	return p
}

func TestBufferMapStateString(t *testing.T) {
	tests := []struct {
		s    BufferMapState
		want string
	}{
		{BufferMapStateUnmapped, "Unmapped"},
		{BufferMapStateMapped, "Mapped"},
		{BufferMapState(7), "Unknown(7)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("BufferMapState(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestBufferRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		heap   gpucore.HeapKind
		usage  gpucore.BufferUsage
		offset uint64
		size   int
	}{
		{"device local vertex", gpucore.HeapDeviceLocal, gpucore.BufferUsageVertex, 0, 1024},
		{"device local storage at offset", gpucore.HeapDeviceLocal, gpucore.BufferUsageStorage, 64, 200},
		{"device local uniform tail", gpucore.HeapDeviceLocal, gpucore.BufferUsageUniform, 1020, 4},
		{"host upload", gpucore.HeapHostUpload, gpucore.BufferUsageVertex, 8, 512},
		{"host visible", gpucore.HeapHostVisible, gpucore.BufferUsageGeneric, 0, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newSoftwareDevice(t, software.Options{})
			b, err := d.CreateBuffer(&BufferDescription{
				Label:         tt.name,
				Size:          1024,
				Heap:          tt.heap,
				AllowedUsages: tt.usage,
				MappingFlags:  gpucore.MapDynamicStorage | gpucore.MapRead,
			}, nil)
			if err != nil {
				t.Fatalf("CreateBuffer() error = %v", err)
			}
			defer b.Release()

			want := pattern(tt.size, 0x40)
			if err := b.UploadData(tt.offset, want); err != nil {
				t.Fatalf("UploadData() error = %v", err)
			}
			got := make([]byte, tt.size)
			if err := b.ReadData(tt.offset, got); err != nil {
				t.Fatalf("ReadData() error = %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("ReadData() = %x..., want %x...", got[:4], want[:4])
			}
			if b.Usage() != tt.usage {
				t.Errorf("Usage() = %v, want %v", b.Usage(), tt.usage)
			}
		})
	}
}

func TestBufferHostUploadDeadbeef(t *testing.T) {
	d, sd := newSoftwareDevice(t, software.Options{})
	want := deadbeef(256)

	writeOnly, err := d.CreateBuffer(&BufferDescription{
		Label:        "upload only",
		Size:         256,
		Heap:         gpucore.HeapHostUpload,
		MappingFlags: gpucore.MapDynamicStorage,
	}, nil)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer writeOnly.Release()
	if err := writeOnly.UploadData(0, want); err != nil {
		t.Fatalf("UploadData() error = %v", err)
	}
	if err := writeOnly.ReadData(0, make([]byte, 256)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ReadData() without MapRead error = %v, want ErrUnsupported", err)
	}

	readable, err := d.CreateBuffer(&BufferDescription{
		Label:        "upload readable",
		Size:         256,
		Heap:         gpucore.HeapHostUpload,
		MappingFlags: gpucore.MapDynamicStorage | gpucore.MapRead,
	}, nil)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer readable.Release()
	sd.ResetSubmissions()
	if err := readable.UploadData(0, want); err != nil {
		t.Fatalf("UploadData() error = %v", err)
	}
	if got := len(sd.Submissions()); got != 0 {
		t.Errorf("host upload write submitted %d lists, want 0", got)
	}
	got := make([]byte, 256)
	if err := readable.ReadData(0, got); err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadData() = %x, want deadbeef pattern", got[:8])
	}
	if n := len(sd.Submissions()); n != 1 {
		t.Errorf("readback of upload heap submitted %d lists, want 1", n)
	}
}

func TestBufferOutOfBounds(t *testing.T) {
	d, sd := newSoftwareDevice(t, software.Options{})
	b := vertexBuffer(t, d, "vb", 256)
	want := pattern(256, 5)
	if err := b.UploadData(0, want); err != nil {
		t.Fatalf("UploadData() error = %v", err)
	}
	sd.ResetSubmissions()

	tests := []struct {
		name   string
		offset uint64
		size   int
	}{
		{"past end", 252, 8},
		{"offset beyond size", 300, 1},
		{"whole plus one", 0, 257},
		{"huge offset", ^uint64(0) - 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.UploadData(tt.offset, make([]byte, tt.size)); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("UploadData() error = %v, want ErrOutOfBounds", err)
			}
			if err := b.ReadData(tt.offset, make([]byte, tt.size)); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("ReadData() error = %v, want ErrOutOfBounds", err)
			}
		})
	}
	if got := len(sd.Submissions()); got != 0 {
		t.Errorf("out-of-bounds calls submitted %d lists, want 0", got)
	}
	got := make([]byte, 256)
	if err := b.ReadData(0, got); err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("out-of-bounds upload changed buffer contents")
	}
}

func TestBufferCapabilityGating(t *testing.T) {
	d, sd := newSoftwareDevice(t, software.Options{})
	b, err := d.CreateBuffer(&BufferDescription{
		Label:         "static",
		Size:          64,
		Heap:          gpucore.HeapDeviceLocal,
		AllowedUsages: gpucore.BufferUsageIndex,
	}, pattern(64, 1))
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer b.Release()
	sd.ResetSubmissions()

	if err := b.UploadData(0, make([]byte, 4)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("UploadData() error = %v, want ErrUnsupported", err)
	}
	if err := b.ReadData(0, make([]byte, 4)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ReadData() error = %v, want ErrUnsupported", err)
	}
	if _, err := b.Map(gpucore.MapAccessWrite); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Map() error = %v, want ErrUnsupported", err)
	}
	if got := len(sd.Submissions()); got != 0 {
		t.Errorf("gated calls submitted %d lists, want 0", got)
	}
}

func TestBufferUsageRestored(t *testing.T) {
	d, sd := newSoftwareDevice(t, software.Options{})
	b := vertexBuffer(t, d, "vb", 128)
	sd.ResetSubmissions()

	if err := b.UploadData(0, pattern(128, 2)); err != nil {
		t.Fatalf("UploadData() error = %v", err)
	}
	if err := b.ReadData(0, make([]byte, 128)); err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	state, err := sd.ResourceState(b.res, backend.AllSubresources)
	if err != nil {
		t.Fatalf("ResourceState() error = %v", err)
	}
	if state != software.StateVertexAndConstantBuffer {
		t.Errorf("state = %#x, want %#x", state, software.StateVertexAndConstantBuffer)
	}

	subs := sd.Submissions()
	if len(subs) != 2 {
		t.Fatalf("len(Submissions()) = %d, want 2", len(subs))
	}
	wantKinds := [][]software.CommandKind{
		{software.CommandBarrier, software.CommandCopyBuffer, software.CommandBarrier},
		{software.CommandBarrier, software.CommandCopyBuffer, software.CommandBarrier},
	}
	wantAfter := []backend.State{software.StateCopyDest, software.StateCopySource}
	for i, s := range subs {
		for j, c := range s.Commands {
			if c.Kind != wantKinds[i][j] {
				t.Errorf("submission %d command %d = %v, want %v", i, j, c.Kind, wantKinds[i][j])
			}
		}
		if first := s.Commands[0]; first.Before != software.StateVertexAndConstantBuffer || first.After != wantAfter[i] {
			t.Errorf("submission %d barrier %#x -> %#x, want %#x -> %#x",
				i, first.Before, first.After, software.StateVertexAndConstantBuffer, wantAfter[i])
		}
		if last := s.Commands[2]; last.After != software.StateVertexAndConstantBuffer {
			t.Errorf("submission %d ends in %#x, want %#x", i, last.After, software.StateVertexAndConstantBuffer)
		}
	}
}

func TestBufferInitialData(t *testing.T) {
	d, _ := newSoftwareDevice(t, software.Options{})
	want := pattern(100, 11)
	b, err := d.CreateBuffer(&BufferDescription{
		Label:         "init",
		Size:          100,
		Heap:          gpucore.HeapDeviceLocal,
		AllowedUsages: gpucore.BufferUsageVertex | gpucore.BufferUsageIndex,
		MappingFlags:  gpucore.MapRead,
	}, want)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer b.Release()
	if got := b.Usage(); got != gpucore.BufferUsageVertex|gpucore.BufferUsageIndex {
		t.Errorf("Usage() = %v, want Vertex|Index", got)
	}
	got := make([]byte, 100)
	if err := b.ReadData(0, got); err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("ReadData() differs from initial data")
	}
}

func TestCreateBufferValidation(t *testing.T) {
	d, _ := newSoftwareDevice(t, software.Options{})
	tests := []struct {
		name string
		desc *BufferDescription
		init []byte
		want error
	}{
		{"nil", nil, nil, ErrInvalidParameter},
		{"zero size", &BufferDescription{Heap: gpucore.HeapHostVisible}, nil, ErrInvalidParameter},
		{"bad heap", &BufferDescription{Size: 4, Heap: gpucore.HeapKind(9)}, nil, ErrInvalidParameter},
		{"device local without usage", &BufferDescription{Size: 4}, nil, ErrInvalidParameter},
		{"main outside allowed", &BufferDescription{Size: 4, AllowedUsages: gpucore.BufferUsageVertex, MainUsage: gpucore.BufferUsageIndex}, nil, ErrInvalidParameter},
		{"unmappable usage", &BufferDescription{Size: 4, AllowedUsages: gpucore.BufferUsageVertex | gpucore.BufferUsageStorage}, nil, ErrInvalidParameter},
		{"initial data too long", &BufferDescription{Size: 4, Heap: gpucore.HeapHostVisible}, make([]byte, 5), ErrOutOfBounds},
		{"over budget", &BufferDescription{Size: 4 << 30, Heap: gpucore.HeapHostVisible}, nil, ErrOutOfMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := d.CreateBuffer(tt.desc, tt.init)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateBuffer() error = %v, want %v", err, tt.want)
			}
			if b != nil {
				t.Error("CreateBuffer() returned a buffer with an error")
			}
		})
	}
	if got := d.Stats().LiveResources; got != 0 {
		t.Errorf("LiveResources = %d, want 0", got)
	}
}

func TestBufferMap(t *testing.T) {
	d, _ := newSoftwareDevice(t, software.Options{})
	b, err := d.CreateBuffer(&BufferDescription{
		Label:        "visible",
		Size:         64,
		Heap:         gpucore.HeapHostVisible,
		MappingFlags: gpucore.MapRead | gpucore.MapWrite | gpucore.MapDynamicStorage,
	}, nil)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer b.Release()

	p, err := b.Map(gpucore.MapAccessReadWrite)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if len(p) != 64 {
		t.Fatalf("len(Map()) = %d, want 64", len(p))
	}
	if b.MapState() != BufferMapStateMapped {
		t.Errorf("MapState() = %v, want Mapped", b.MapState())
	}
	if _, err := b.Map(gpucore.MapAccessRead); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("nested Map() error = %v, want ErrInvalidOperation", err)
	}
	copy(p, deadbeef(64))
	if err := b.Unmap(); err != nil {
		t.Fatalf("Unmap() error = %v", err)
	}
	if err := b.Unmap(); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("second Unmap() error = %v, want ErrInvalidOperation", err)
	}

	got := make([]byte, 64)
	if err := b.ReadData(0, got); err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if !bytes.Equal(got, deadbeef(64)) {
		t.Error("ReadData() does not see mapped writes")
	}
	if _, err := b.Map(gpucore.MapAccess(0)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Map(0) error = %v, want ErrInvalidParameter", err)
	}
}

func TestBufferMapHeapRules(t *testing.T) {
	d, _ := newSoftwareDevice(t, software.Options{})
	tests := []struct {
		heap   gpucore.HeapKind
		access gpucore.MapAccess
		ok     bool
	}{
		{gpucore.HeapHostUpload, gpucore.MapAccessWrite, true},
		{gpucore.HeapHostUpload, gpucore.MapAccessRead, false},
		{gpucore.HeapHostReadback, gpucore.MapAccessRead, true},
		{gpucore.HeapHostReadback, gpucore.MapAccessWrite, false},
		{gpucore.HeapDeviceLocal, gpucore.MapAccessRead, false},
		{gpucore.HeapDeviceLocal, gpucore.MapAccessWrite, false},
	}
	for _, tt := range tests {
		t.Run(tt.heap.String()+"/"+tt.access.String(), func(t *testing.T) {
			b, err := d.CreateBuffer(&BufferDescription{
				Size:          16,
				Heap:          tt.heap,
				AllowedUsages: gpucore.BufferUsageVertex,
				MappingFlags:  gpucore.MapRead | gpucore.MapWrite,
			}, nil)
			if err != nil {
				t.Fatalf("CreateBuffer() error = %v", err)
			}
			defer b.Release()
			_, err = b.Map(tt.access)
			if tt.ok && err != nil {
				t.Errorf("Map() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrUnsupported) {
				t.Errorf("Map() error = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestBufferRetainRelease(t *testing.T) {
	d, _ := newSoftwareDevice(t, software.Options{})
	b, err := d.CreateBuffer(&BufferDescription{Size: 16, Heap: gpucore.HeapHostVisible, MappingFlags: gpucore.MapRead}, nil)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	b.Retain()
	b.Release()
	if err := b.ReadData(0, make([]byte, 4)); err != nil {
		t.Errorf("ReadData() with a reference left error = %v", err)
	}
	b.Release()
	if err := b.ReadData(0, make([]byte, 4)); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("ReadData() after Release error = %v, want ErrInvalidOperation", err)
	}
	b.Release()
	if got := d.Stats().LiveResources; got != 0 {
		t.Errorf("LiveResources = %d, want 0", got)
	}
}

func TestBufferTransfersWhileMapped(t *testing.T) {
	d, _ := newSoftwareDevice(t, software.Options{})
	tests := []struct {
		name  string
		flags gpucore.MappingFlags
		want  error
	}{
		{"transient", gpucore.MapRead | gpucore.MapWrite | gpucore.MapDynamicStorage, ErrInvalidOperation},
		{"persistent", gpucore.MapRead | gpucore.MapWrite | gpucore.MapDynamicStorage | gpucore.MapPersistent, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := d.CreateBuffer(&BufferDescription{
				Label:        tt.name,
				Size:         64,
				Heap:         gpucore.HeapHostVisible,
				MappingFlags: tt.flags,
			}, nil)
			if err != nil {
				t.Fatalf("CreateBuffer() error = %v", err)
			}
			defer b.Release()

			p, err := b.Map(gpucore.MapAccessReadWrite)
			if err != nil {
				t.Fatalf("Map() error = %v", err)
			}
			if err := b.UploadData(16, deadbeef(8)); !errors.Is(err, tt.want) {
				t.Fatalf("UploadData() while mapped error = %v, want %v", err, tt.want)
			}
			copy(p[32:], pattern(8, 9))
			got := make([]byte, 8)
			if err := b.ReadData(32, got); !errors.Is(err, tt.want) {
				t.Fatalf("ReadData() while mapped error = %v, want %v", err, tt.want)
			}
			if tt.want == nil {
				if !bytes.Equal(p[16:24], deadbeef(8)) {
					t.Errorf("mapping = %x after UploadData, want deadbeef", p[16:24])
				}
				if !bytes.Equal(got, pattern(8, 9)) {
					t.Errorf("ReadData() = %x, want mapped writes %x", got, pattern(8, 9))
				}
			}
			if b.MapState() != BufferMapStateMapped {
				t.Errorf("MapState() = %v after transfers, want Mapped", b.MapState())
			}
			if err := b.Unmap(); err != nil {
				t.Fatalf("Unmap() error = %v", err)
			}
			if err := b.UploadData(16, deadbeef(8)); err != nil {
				t.Errorf("UploadData() after Unmap error = %v", err)
			}
		})
	}
}

func TestBufferReleaseLogsUnmapFailure(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	var buf syncBuffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))

	d, _ := newSoftwareDevice(t, software.Options{})
	b, err := d.CreateBuffer(&BufferDescription{
		Label:        "unbalanced",
		Size:         16,
		Heap:         gpucore.HeapHostVisible,
		MappingFlags: gpucore.MapWrite,
	}, nil)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if _, err := b.Map(gpucore.MapAccessWrite); err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	// Drop the native mapping underneath the buffer so the release-time
	// unmap fails.
	if err := d.bd.Unmap(b.res); err != nil {
		t.Fatalf("backend Unmap() error = %v", err)
	}
	b.Release()

	out := buf.String()
	if !strings.Contains(out, "agpu: unmap on release failed") || !strings.Contains(out, "label=unbalanced") {
		t.Errorf("log output missing unmap warning:\n%s", out)
	}
	if got := d.Stats().LiveResources; got != 0 {
		t.Errorf("LiveResources = %d after Release, want 0", got)
	}
}
