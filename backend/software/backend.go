package software

import "github.com/gogpu/agpu/backend"

func init() {
	backend.Register(backend.BackendSoftware, func() backend.Backend {
		return Backend{}
	})
}

// Default device limits.
const (
	// DefaultMemoryBudget is the allocation cap of a device (1 GiB).
	DefaultMemoryBudget = 1 << 30

	// DefaultRowPitchAlignment matches D3D12_TEXTURE_DATA_PITCH_ALIGNMENT.
	DefaultRowPitchAlignment = 256

	// DefaultPlacementAlignment matches D3D12_TEXTURE_DATA_PLACEMENT_ALIGNMENT.
	DefaultPlacementAlignment = 512
)

// Backend opens software devices.
type Backend struct{}

// Name returns "software".
func (Backend) Name() string { return backend.BackendSoftware }

// Open creates a device with the budget from cfg.
func (Backend) Open(cfg backend.Config) (backend.Device, error) {
	return New(Options{Label: cfg.Label, MemoryBudget: cfg.MemoryBudget}), nil
}

// Options configure a software device.
type Options struct {
	Label string

	// MemoryBudget caps allocated bytes. Defaults to DefaultMemoryBudget if 0.
	MemoryBudget uint64

	// RowPitchAlignment defaults to DefaultRowPitchAlignment if 0.
	RowPitchAlignment uint64

	// PlacementAlignment defaults to DefaultPlacementAlignment if 0.
	PlacementAlignment uint64
}

func (o *Options) normalize() {
	if o.Label == "" {
		o.Label = "software"
	}
	if o.MemoryBudget == 0 {
		o.MemoryBudget = DefaultMemoryBudget
	}
	if o.RowPitchAlignment == 0 {
		o.RowPitchAlignment = DefaultRowPitchAlignment
	}
	if o.PlacementAlignment == 0 {
		o.PlacementAlignment = DefaultPlacementAlignment
	}
}
