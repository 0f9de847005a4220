package agpu

import (
	"testing"

	"github.com/gogpu/agpu/internal/transfer"
)

func TestDefaultOptions(t *testing.T) {
	o := newOptions(nil)
	if o.label != "agpu" {
		t.Errorf("label = %q, want %q", o.label, "agpu")
	}
	if o.stagingInitial != transfer.DefaultInitialCapacity {
		t.Errorf("stagingInitial = %d, want %d", o.stagingInitial, transfer.DefaultInitialCapacity)
	}
	if o.memoryBudget != 0 || o.adapter != "" || o.onAcquire != nil {
		t.Errorf("unexpected non-zero defaults: %+v", o)
	}
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		check func(options) bool
	}{
		{"label", []Option{WithLabel("probe")}, func(o options) bool { return o.label == "probe" }},
		{"empty label keeps default", []Option{WithLabel("")}, func(o options) bool { return o.label == "agpu" }},
		{"staging", []Option{WithStagingInitialCapacity(1 << 20)}, func(o options) bool { return o.stagingInitial == 1<<20 }},
		{"zero staging keeps default", []Option{WithStagingInitialCapacity(0)}, func(o options) bool {
			return o.stagingInitial == transfer.DefaultInitialCapacity
		}},
		{"budget", []Option{WithMemoryBudget(4096)}, func(o options) bool { return o.memoryBudget == 4096 }},
		{"adapter", []Option{WithAdapter("vulkan")}, func(o options) bool { return o.adapter == "vulkan" }},
		{"last wins", []Option{WithLabel("a"), WithLabel("b")}, func(o options) bool { return o.label == "b" }},
		{"hook", []Option{withAcquireHook(func(transfer.Role) {})}, func(o options) bool { return o.onAcquire != nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if o := newOptions(tt.opts); !tt.check(o) {
				t.Errorf("newOptions() = %+v", o)
			}
		})
	}
}

func TestBackendConfig(t *testing.T) {
	o := newOptions([]Option{WithLabel("x"), WithMemoryBudget(10), WithAdapter("gl")})
	cfg := o.backendConfig()
	if cfg.Label != "x" || cfg.MemoryBudget != 10 || cfg.Adapter != "gl" {
		t.Errorf("backendConfig() = %+v", cfg)
	}
}
