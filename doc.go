// Package agpu moves data between host memory and GPU resources over
// several native graphics backends.
//
// # Overview
//
// agpu hides how a backend reaches its memory. A Buffer or Texture is
// created in a heap (see gpucore.HeapKind); when the CPU can address that
// heap the transfer is a plain map and copy, otherwise agpu stages the data
// through a host buffer, brackets the copy with usage-state transitions and
// blocks until the GPU has finished.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/agpu"
//		"github.com/gogpu/agpu/gpucore"
//		_ "github.com/gogpu/agpu/backend/software"
//	)
//
//	dev, err := agpu.Open("software")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	buf, err := dev.CreateBuffer(&agpu.BufferDescription{
//		Size:          1024,
//		Heap:          gpucore.HeapDeviceLocal,
//		AllowedUsages: gpucore.BufferUsageStorage,
//		MainUsage:     gpucore.BufferUsageStorage,
//		MappingFlags:  gpucore.MapDynamicStorage | gpucore.MapRead,
//	}, nil)
//	...
//	err = buf.UploadData(0, payload)
//	err = buf.ReadData(0, out)
//
// # Backends
//
// Backends register themselves on import (see package backend). Explicit
// backends (software, wgpu) use staging and barriers. Implicit backends
// (gl) synchronize internally; agpu accesses their memory directly.
//
// # Concurrency
//
// Every method is safe for concurrent use. Transfers of one kind (uploads,
// readbacks, resource setup) are serialized device-wide; transfers of
// different kinds run in parallel. Callers order dependent transfers
// themselves.
//
// # Logging
//
// agpu is silent by default. Use SetLogger to route diagnostics to slog.
package agpu
