package agpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/internal/transfer"
)

// Device is an open backend device together with its transfer machinery.
//
// Device is safe for concurrent use.
type Device struct {
	bd     backend.Device
	label  string
	owned  bool
	xfer   *transfer.Coordinator
	limits backend.Limits

	closeOnce sync.Once
	closed    atomic.Bool
	live      atomic.Int64
}

// Stats describe transfer activity and live resources of a device.
type Stats struct {
	Transfer      transfer.Stats
	LiveResources int64
}

// Open opens a device on the named backend. The backend package must have
// been imported for its registration side effect.
func Open(name string, opts ...Option) (*Device, error) {
	o := newOptions(opts)
	bd, err := backend.Open(name, o.backendConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrUnsupported, name, err)
	}
	return newDevice(bd, o, true)
}

// OpenDefault opens a device on the best backend that opens successfully.
func OpenDefault(opts ...Option) (*Device, error) {
	o := newOptions(opts)
	bd, err := backend.OpenDefault(o.backendConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return newDevice(bd, o, true)
}

// NewDevice wraps an already open backend device. The caller keeps
// ownership of bd and destroys it after Close.
func NewDevice(bd backend.Device, opts ...Option) (*Device, error) {
	if bd == nil {
		return nil, fmt.Errorf("%w: nil backend device", ErrInvalidParameter)
	}
	return newDevice(bd, newOptions(opts), false)
}

func newDevice(bd backend.Device, o options, owned bool) (*Device, error) {
	d := &Device{
		bd:     bd,
		label:  o.label,
		owned:  owned,
		limits: bd.Limits(),
	}
	if bd.Variant() == backend.Explicit {
		xfer, err := transfer.New(bd, transfer.Options{
			StagingInitialCapacity: o.stagingInitial,
			OnAcquire:              o.onAcquire,
		})
		if err != nil {
			if owned {
				bd.Destroy()
			}
			return nil, translate("create transfer lists", err)
		}
		d.xfer = xfer
	}
	Logger().Info("agpu: device opened",
		"label", d.label, "backend", bd.Name(), "variant", bd.Variant().String(),
		"adapter", bd.AdapterInfo().Name)
	return d, nil
}

// Backend returns the native device.
func (d *Device) Backend() backend.Device { return d.bd }

// AdapterInfo describes the physical adapter behind the device.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo { return d.bd.AdapterInfo() }

// Variant reports whether the backend is explicit or implicit.
func (d *Device) Variant() backend.Variant { return d.bd.Variant() }

func (d *Device) explicit() bool { return d.xfer != nil }

func (d *Device) checkOpen() error {
	if d.closed.Load() {
		return fmt.Errorf("%w: device %q closed", ErrInvalidOperation, d.label)
	}
	return nil
}

// Finish blocks until all work submitted to the device has completed.
func (d *Device) Finish() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	return translate("finish", d.bd.WaitIdle())
}

// Stats returns a snapshot of transfer counters.
func (d *Device) Stats() Stats {
	s := Stats{LiveResources: d.live.Load()}
	if d.xfer != nil {
		s.Transfer = d.xfer.Stats()
	}
	return s
}

// Close waits for in-flight transfers, frees the transfer lists and, for
// devices from Open, destroys the backend device. Resources still alive
// are logged; they must not be used afterwards.
func (d *Device) Close() error {
	err := fmt.Errorf("%w: device %q already closed", ErrInvalidOperation, d.label)
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		if d.xfer != nil {
			d.xfer.Close()
		}
		err = translate("close", d.bd.WaitIdle())
		if n := d.live.Load(); n > 0 {
			Logger().Warn("agpu: device closed with live resources", "label", d.label, "count", n)
		}
		if d.owned {
			d.bd.Destroy()
		}
		Logger().Info("agpu: device closed", "label", d.label)
	})
	return err
}
