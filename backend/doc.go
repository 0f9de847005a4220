// Package backend defines the native device surface agpu drives and a
// registry of the backends that implement it.
//
// A backend turns the neutral vocabulary of gpucore into calls on a real
// (or simulated) graphics API. Three implementations ship with agpu:
//
//	software  explicit reference device with D3D12-style states
//	wgpu      gogpu/wgpu HAL (Vulkan, Metal, DX12, GLES, software)
//	gl        implicit GL-style device with a single serialized job queue
//
// # Backend Registration
//
// Backends register themselves from init() functions:
//
//	import _ "github.com/gogpu/agpu/backend/software"
//
// # Backend Selection
//
// Use OpenDefault to open the best available backend, or Open to request
// one by name:
//
//	dev, err := backend.Open("software", backend.Config{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Destroy()
//
// # Variants
//
// Explicit devices track a hardware state per resource and require
// barriers between usages; CPU access to device-local memory goes through
// staging buffers. Implicit devices hide both: every resource is reachable
// through Map and, for textures, the optional TextureAccessor interface.
package backend
