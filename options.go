package agpu

import (
	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/internal/transfer"
)

// Option configures a Device during Open.
//
// Example:
//
//	dev, err := agpu.Open("software",
//		agpu.WithLabel("tools"),
//		agpu.WithStagingInitialCapacity(1<<20))
type Option func(*options)

// options holds optional configuration for Device creation.
type options struct {
	label          string
	adapter        string
	memoryBudget   uint64
	stagingInitial uint64
	onAcquire      func(transfer.Role)
}

// defaultOptions returns the default device options.
func defaultOptions() options {
	return options{
		label:          "agpu",
		stagingInitial: transfer.DefaultInitialCapacity,
	}
}

func newOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) backendConfig() backend.Config {
	return backend.Config{Label: o.label, MemoryBudget: o.memoryBudget, Adapter: o.adapter}
}

// WithLabel names the device in logs and backend debug labels.
func WithLabel(label string) Option {
	return func(o *options) {
		if label != "" {
			o.label = label
		}
	}
}

// WithStagingInitialCapacity sets the smallest staging buffer the upload and
// readback paths allocate. Values of 0 keep the default of 16 MiB.
func WithStagingInitialCapacity(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.stagingInitial = n
		}
	}
}

// WithMemoryBudget caps device allocations on backends that support it.
func WithMemoryBudget(n uint64) Option {
	return func(o *options) {
		o.memoryBudget = n
	}
}

// WithAdapter selects a native sub-backend, such as "vulkan" for wgpu.
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// withAcquireHook observes transfer lock acquisition.
func withAcquireHook(fn func(transfer.Role)) Option {
	return func(o *options) {
		o.onAcquire = fn
	}
}
