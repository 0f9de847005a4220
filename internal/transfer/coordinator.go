package transfer

import (
	"fmt"
	"sync"

	"github.com/gogpu/agpu/backend"
)

// Options configure a Coordinator.
type Options struct {
	// StagingInitialCapacity defaults to DefaultInitialCapacity if 0.
	StagingInitialCapacity uint64

	// OnAcquire, if set, runs right after a role lock is taken.
	OnAcquire func(Role)
}

// RoleStats describe one role.
type RoleStats struct {
	StagingCapacity uint64
	StagingGrows    int
	Submissions     uint64
	FenceValue      uint64
}

// Stats describe every role.
type Stats struct {
	Setup    RoleStats
	Upload   RoleStats
	Readback RoleStats
}

type slot struct {
	mu     sync.Mutex
	list   *List
	closed bool
}

// Coordinator serializes access to the transfer lists of a device, one
// lock per role.
//
// Coordinator is safe for concurrent use.
type Coordinator struct {
	onAcquire func(Role)
	slots     [3]slot
}

// New creates the lists of all roles on dev.
func New(dev backend.Device, opts Options) (*Coordinator, error) {
	c := &Coordinator{onAcquire: opts.OnAcquire}
	for _, role := range []Role{RoleSetup, RoleUpload, RoleReadback} {
		l, err := NewList(dev, role, opts.StagingInitialCapacity)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.slots[role].list = l
	}
	return c, nil
}

// WithSetupListDo runs fn with exclusive use of the Setup list.
func (c *Coordinator) WithSetupListDo(fn func(*List) error) error {
	return c.do(RoleSetup, 0, 0, fn)
}

// WithUploadListDo ensures size bytes of upload staging, aligned to
// alignment, and runs fn with exclusive use of the Upload list.
func (c *Coordinator) WithUploadListDo(size, alignment uint64, fn func(*List) error) error {
	return c.do(RoleUpload, size, alignment, fn)
}

// WithReadbackListDo ensures size bytes of readback staging, aligned to
// alignment, and runs fn with exclusive use of the Readback list.
func (c *Coordinator) WithReadbackListDo(size, alignment uint64, fn func(*List) error) error {
	return c.do(RoleReadback, size, alignment, fn)
}

func (c *Coordinator) do(role Role, size, alignment uint64, fn func(*List) error) error {
	s := &c.slots[role]
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.list == nil {
		return ErrClosed
	}
	if c.onAcquire != nil {
		c.onAcquire(role)
	}
	l := s.list
	if l.staging != nil {
		if err := l.staging.EnsureCapacity(size, alignment); err != nil {
			return err
		}
	}
	defer l.abort()
	if err := fn(l); err != nil {
		return fmt.Errorf("transfer: %v: %w", role, err)
	}
	return nil
}

// Stats returns a snapshot of every role. It waits for in-flight
// transfers of each role in turn.
func (c *Coordinator) Stats() Stats {
	read := func(role Role) RoleStats {
		s := &c.slots[role]
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.list == nil {
			return RoleStats{}
		}
		rs := RoleStats{Submissions: s.list.submissions, FenceValue: s.list.fenceValue}
		if p := s.list.staging; p != nil {
			rs.StagingCapacity = p.Capacity()
			rs.StagingGrows = p.Grows()
		}
		return rs
	}
	return Stats{Setup: read(RoleSetup), Upload: read(RoleUpload), Readback: read(RoleReadback)}
}

// Close waits for in-flight transfers and frees every list. Later calls
// fail with ErrClosed.
func (c *Coordinator) Close() {
	for i := range c.slots {
		s := &c.slots[i]
		s.mu.Lock()
		if !s.closed && s.list != nil {
			s.list.destroy()
		}
		s.closed = true
		s.mu.Unlock()
	}
}
