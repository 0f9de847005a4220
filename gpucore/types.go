package gpucore

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// HeapKind is the memory placement class of a resource.
type HeapKind uint8

// Heap kinds.
const (
	// HeapDeviceLocal is GPU-local memory that the CPU cannot address.
	HeapDeviceLocal HeapKind = iota

	// HeapHostUpload is CPU-writable memory used for host to device copies.
	HeapHostUpload

	// HeapHostReadback is CPU-readable memory used for device to host copies.
	HeapHostReadback

	// HeapHostVisible is CPU-readable and CPU-writable memory.
	HeapHostVisible
)

// String returns the heap name.
func (h HeapKind) String() string {
	switch h {
	case HeapDeviceLocal:
		return "DeviceLocal"
	case HeapHostUpload:
		return "HostUpload"
	case HeapHostReadback:
		return "HostReadback"
	case HeapHostVisible:
		return "HostVisible"
	default:
		return fmt.Sprintf("HeapKind(%d)", int(h))
	}
}

// CPUWritable reports whether the CPU may write the heap through a mapping.
func (h HeapKind) CPUWritable() bool {
	return h == HeapHostUpload || h == HeapHostVisible
}

// CPUReadable reports whether the CPU may read the heap through a mapping.
func (h HeapKind) CPUReadable() bool {
	return h == HeapHostReadback || h == HeapHostVisible
}

// Valid reports whether h is one of the defined heap kinds.
func (h HeapKind) Valid() bool { return h <= HeapHostVisible }

// BufferUsage is a bitmask of the ways a buffer may be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageCopySource allows the buffer to be read by copy commands.
	BufferUsageCopySource BufferUsage = 1 << iota

	// BufferUsageCopyDestination allows the buffer to be written by copy commands.
	BufferUsageCopyDestination

	// BufferUsageVertex allows the buffer to be bound as a vertex buffer.
	BufferUsageVertex

	// BufferUsageIndex allows the buffer to be bound as an index buffer.
	BufferUsageIndex

	// BufferUsageUniform allows the buffer to be bound as a uniform buffer.
	BufferUsageUniform

	// BufferUsageStorage allows read-write shader storage access.
	BufferUsageStorage

	// BufferUsageReadOnlyStorage allows read-only shader storage access.
	BufferUsageReadOnlyStorage

	// BufferUsageIndirect allows the buffer to hold indirect draw arguments.
	BufferUsageIndirect

	// BufferUsageGeneric is the catch-all usage of host-visible buffers.
	BufferUsageGeneric
)

// BufferUsageNone is the empty mask.
const BufferUsageNone BufferUsage = 0

var bufferUsageNames = []string{
	"CopySource", "CopyDestination", "Vertex", "Index", "Uniform",
	"Storage", "ReadOnlyStorage", "Indirect", "Generic",
}

// String returns the '|'-joined flag names.
func (u BufferUsage) String() string {
	return flagString(uint32(u), bufferUsageNames)
}

// Contains reports whether every flag of other is set in u.
func (u BufferUsage) Contains(other BufferUsage) bool { return u&other == other }

// Writable reports whether u includes a mode that lets the GPU write the buffer.
func (u BufferUsage) Writable() bool {
	return u&(BufferUsageCopyDestination|BufferUsageStorage) != 0
}

// TextureUsage is a bitmask of the ways a texture may be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySource allows the texture to be read by copy commands.
	TextureUsageCopySource TextureUsage = 1 << iota

	// TextureUsageCopyDestination allows the texture to be written by copy commands.
	TextureUsageCopyDestination

	// TextureUsageSampled allows sampling from shaders.
	TextureUsageSampled

	// TextureUsageStorage allows read-write shader image access.
	TextureUsageStorage

	// TextureUsageColorAttachment allows rendering into the texture.
	TextureUsageColorAttachment

	// TextureUsageDepthAttachment allows depth testing against the texture.
	TextureUsageDepthAttachment

	// TextureUsageStencilAttachment allows stencil testing against the texture.
	TextureUsageStencilAttachment

	// TextureUsagePresent marks a texture handed to the presentation engine.
	TextureUsagePresent
)

// TextureUsageNone is the usage of a texture that has just been created and
// whose contents are undefined.
const TextureUsageNone TextureUsage = 0

var textureUsageNames = []string{
	"CopySource", "CopyDestination", "Sampled", "Storage",
	"ColorAttachment", "DepthAttachment", "StencilAttachment", "Present",
}

// String returns the '|'-joined flag names.
func (u TextureUsage) String() string {
	return flagString(uint32(u), textureUsageNames)
}

// Contains reports whether every flag of other is set in u.
func (u TextureUsage) Contains(other TextureUsage) bool { return u&other == other }

// Writable reports whether u includes a mode that lets the GPU write the texture.
func (u TextureUsage) Writable() bool {
	return u&(TextureUsageCopyDestination|TextureUsageStorage|TextureUsageColorAttachment) != 0
}

// MappingFlags describe how the CPU may access a buffer.
type MappingFlags uint32

// Mapping flags.
const (
	// MapDynamicStorage allows UploadData after creation.
	MapDynamicStorage MappingFlags = 1 << iota

	// MapRead allows mapping for reading and ReadData.
	MapRead

	// MapWrite allows mapping for writing.
	MapWrite

	// MapPersistent keeps a mapping alive across UploadData and ReadData
	// while the GPU uses the buffer.
	MapPersistent
)

var mappingFlagNames = []string{"DynamicStorage", "Read", "Write", "Persistent"}

// String returns the '|'-joined flag names.
func (f MappingFlags) String() string { return flagString(uint32(f), mappingFlagNames) }

// Has reports whether every flag of other is set in f.
func (f MappingFlags) Has(other MappingFlags) bool { return f&other == other }

// MapAccess is the CPU access requested when mapping a buffer.
type MapAccess uint8

// Map access modes.
const (
	MapAccessRead MapAccess = iota + 1
	MapAccessWrite
	MapAccessReadWrite
)

// String returns the access mode name.
func (a MapAccess) String() string {
	switch a {
	case MapAccessRead:
		return "Read"
	case MapAccessWrite:
		return "Write"
	case MapAccessReadWrite:
		return "ReadWrite"
	default:
		return fmt.Sprintf("MapAccess(%d)", int(a))
	}
}

// Reads reports whether the access includes reading.
func (a MapAccess) Reads() bool { return a == MapAccessRead || a == MapAccessReadWrite }

// Writes reports whether the access includes writing.
func (a MapAccess) Writes() bool { return a == MapAccessWrite || a == MapAccessReadWrite }

// TextureType is the dimensionality of a texture.
type TextureType uint8

// Texture types.
const (
	TextureType2D TextureType = iota
	TextureType1D
	TextureType3D
	TextureTypeCube
)

// String returns the texture type name.
func (t TextureType) String() string {
	switch t {
	case TextureType1D:
		return "1D"
	case TextureType2D:
		return "2D"
	case TextureType3D:
		return "3D"
	case TextureTypeCube:
		return "Cube"
	default:
		return fmt.Sprintf("TextureType(%d)", int(t))
	}
}

// Dimension returns the gputypes dimension backing the texture type.
// Cube textures are 2D arrays with six layers per cube.
func (t TextureType) Dimension() gputypes.TextureDimension {
	switch t {
	case TextureType1D:
		return gputypes.TextureDimension1D
	case TextureType3D:
		return gputypes.TextureDimension3D
	default:
		return gputypes.TextureDimension2D
	}
}

// TextureFlags enable CPU transfer paths on a texture.
type TextureFlags uint32

// Texture flags.
const (
	// TextureFlagUploaded allows UploadSubData.
	TextureFlagUploaded TextureFlags = 1 << iota

	// TextureFlagReadback allows ReadSubData.
	TextureFlagReadback
)

var textureFlagNames = []string{"Uploaded", "Readback"}

// String returns the '|'-joined flag names.
func (f TextureFlags) String() string { return flagString(uint32(f), textureFlagNames) }

// Has reports whether every flag of other is set in f.
func (f TextureFlags) Has(other TextureFlags) bool { return f&other == other }

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "None"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<uint(i)) != 0 {
			parts = append(parts, name)
			v &^= 1 << uint(i)
		}
	}
	if v != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", v))
	}
	return strings.Join(parts, "|")
}
