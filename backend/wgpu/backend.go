package wgpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/agpu/backend"
)

func init() {
	backend.Register(backend.BackendWGPU, func() backend.Backend {
		return Backend{}
	})
}

// ErrNoAdapter is returned when no registered hal backend exposes an adapter.
var ErrNoAdapter = errors.New("wgpu: no adapter found")

// adapterPriority is the order native APIs are tried in when no adapter
// is named. The CPU implementation comes last.
var adapterPriority = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

// ParseAdapter maps a config adapter name to a hal backend. The CPU
// implementation registers as gputypes.BackendEmpty and is named "software".
func ParseAdapter(name string) (gputypes.Backend, error) {
	switch strings.ToLower(name) {
	case "vulkan":
		return gputypes.BackendVulkan, nil
	case "metal":
		return gputypes.BackendMetal, nil
	case "dx12":
		return gputypes.BackendDX12, nil
	case "gl", "gles":
		return gputypes.BackendGL, nil
	case "software", "empty":
		return gputypes.BackendEmpty, nil
	}
	return 0, fmt.Errorf("wgpu: unknown adapter %q: %w", name, backend.ErrBackendNotAvailable)
}

// Backend opens devices on hal adapters.
type Backend struct{}

// Name returns "wgpu".
func (Backend) Name() string { return backend.BackendWGPU }

// Open creates a device on the adapter named by cfg.Adapter, or on the
// first registered native API in priority order.
func (Backend) Open(cfg backend.Config) (backend.Device, error) {
	opts := Options{Label: cfg.Label, MemoryBudget: cfg.MemoryBudget}
	if cfg.Adapter != "" {
		v, err := ParseAdapter(cfg.Adapter)
		if err != nil {
			return nil, err
		}
		hb, ok := hal.GetBackend(v)
		if !ok {
			return nil, fmt.Errorf("wgpu: adapter %q not registered: %w", cfg.Adapter, backend.ErrBackendNotAvailable)
		}
		return New(hb, opts)
	}

	var errs []error
	for _, v := range adapterPriority {
		hb, ok := hal.GetBackend(v)
		if !ok {
			continue
		}
		d, err := New(hb, opts)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no hal backend registered", ErrNoAdapter)
	}
	return nil, errors.Join(errs...)
}

// Options configure a wgpu device.
type Options struct {
	Label string

	// MemoryBudget caps allocated bytes; 0 means no cap.
	MemoryBudget uint64
}

// New opens the first adapter of hb.
func New(hb hal.Backend, opts Options) (*Device, error) {
	if opts.Label == "" {
		opts.Label = "wgpu"
	}
	inst, err := hb.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.BackendsAll,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: %v instance: %w", hb.Variant(), err)
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		inst.Destroy()
		return nil, fmt.Errorf("%w on %v", ErrNoAdapter, hb.Variant())
	}
	exposed := adapters[0]
	open, err := exposed.Adapter.Open(0, exposed.Capabilities.Limits)
	if err != nil {
		inst.Destroy()
		return nil, fmt.Errorf("wgpu: open %q: %w", exposed.Info.Name, err)
	}
	d := &Device{
		opts:     opts,
		instance: inst,
		adapter:  exposed,
		raw:      open.Device,
		rawQueue: open.Queue,
	}
	d.q = &queue{dev: d}
	return d, nil
}
