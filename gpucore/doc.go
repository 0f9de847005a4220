// Package gpucore holds the backend-neutral vocabulary shared by agpu and
// its native backends: heap kinds, usage masks, mapping flags, texture
// regions, format block information and copy footprints.
//
// Nothing in this package talks to a GPU. The types here are small value
// types that can be passed freely between goroutines.
//
// # Heaps
//
// Every resource is placed in exactly one [HeapKind] chosen at creation:
//
//	HeapDeviceLocal   GPU-only memory, reached through staged copies
//	HeapHostUpload    CPU-writable, used for host to device traffic
//	HeapHostReadback  CPU-readable, used for device to host traffic
//	HeapHostVisible   CPU-readable and CPU-writable
//
// # Footprints
//
// Texture copies go through linear staging memory whose row pitch must
// honor the backend's alignment. [ComputeFootprint] derives that layout for
// a region, measuring compressed formats in blocks.
package gpucore
