package backend

import (
	"errors"
	"slices"
	"testing"
)

type fakeBackend struct {
	name string
	err  error
}

func (b fakeBackend) Name() string { return b.name }

func (b fakeBackend) Open(Config) (Device, error) {
	if b.err != nil {
		return nil, b.err
	}
	return nil, nil
}

func withBackends(t *testing.T, bs ...fakeBackend) {
	t.Helper()
	registryMu.Lock()
	saved := backends
	backends = make(map[string]BackendFactory)
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
	for _, b := range bs {
		Register(b.name, func() Backend { return b })
	}
}

func TestRegistry(t *testing.T) {
	withBackends(t, fakeBackend{name: "zeta"}, fakeBackend{name: BackendSoftware})

	if got := Available(); !slices.Equal(got, []string{BackendSoftware, "zeta"}) {
		t.Errorf("Available() = %v", got)
	}
	if !IsRegistered("zeta") {
		t.Error("IsRegistered(zeta) = false")
	}
	if Get("missing") != nil {
		t.Error("Get(missing) != nil")
	}
	Unregister("zeta")
	if IsRegistered("zeta") {
		t.Error("zeta still registered after Unregister")
	}
}

func TestOpenUnknown(t *testing.T) {
	withBackends(t)
	if _, err := Open("nope", Config{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(nope) error = %v, want ErrBackendNotAvailable", err)
	}
	if _, err := OpenDefault(Config{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("OpenDefault() error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestOpenDefaultFallsBack(t *testing.T) {
	broken := errors.New("no adapter")
	opened := ""
	withBackends(t, fakeBackend{name: BackendWGPU, err: broken})
	Register(BackendSoftware, func() Backend {
		opened = BackendSoftware
		return fakeBackend{name: BackendSoftware}
	})

	if _, err := OpenDefault(Config{}); err != nil {
		t.Fatalf("OpenDefault() error = %v", err)
	}
	if opened != BackendSoftware {
		t.Errorf("OpenDefault() opened %q, want software", opened)
	}
}

func TestOpenDefaultJoinsErrors(t *testing.T) {
	broken := errors.New("no adapter")
	withBackends(t, fakeBackend{name: BackendWGPU, err: broken}, fakeBackend{name: "custom", err: broken})

	_, err := OpenDefault(Config{})
	if !errors.Is(err, ErrBackendNotAvailable) || !errors.Is(err, broken) {
		t.Errorf("OpenDefault() error = %v, want both sentinels", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("MustOpenDefault() did not panic")
		}
	}()
	MustOpenDefault(Config{})
}

func TestVariantString(t *testing.T) {
	if Explicit.String() != "Explicit" || Implicit.String() != "Implicit" {
		t.Error("unexpected variant names")
	}
}
