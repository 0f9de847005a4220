package gl

import "github.com/gogpu/agpu/backend"

func init() {
	backend.Register(backend.BackendGL, func() backend.Backend {
		return Backend{}
	})
}

// UnpackAlignment is the row alignment of texture copies recorded in
// command lists, the default of GL_UNPACK_ALIGNMENT.
const UnpackAlignment = 4

// Backend opens GL devices.
type Backend struct{}

// Name returns "gl".
func (Backend) Name() string { return backend.BackendGL }

// Open creates a device. A zero budget leaves allocations unlimited.
func (Backend) Open(cfg backend.Config) (backend.Device, error) {
	return New(Options{Label: cfg.Label, MemoryBudget: cfg.MemoryBudget}), nil
}

// Options configure a GL device.
type Options struct {
	Label string

	// MemoryBudget caps allocated bytes; 0 means no cap.
	MemoryBudget uint64
}
